package buftree

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect[K cmp.Ordered, V any](t *Tree[K, V]) ([]K, []V) {
	var ks []K
	var vs []V
	for k, v := range t.Iter() {
		ks = append(ks, k)
		vs = append(vs, v)
	}
	return ks, vs
}

func TestEmpty(t *testing.T) {
	buf := make([]byte, 1024)
	tr, err := New[int, int](buf)
	require.NoError(t, err)

	ks, _ := collect(tr)
	require.Empty(t, ks)

	_, ok := tr.Get(1)
	require.False(t, ok)
	require.NoError(t, tr.CheckInvariants())
}

func TestSingle(t *testing.T) {
	buf := make([]byte, 1024)
	tr, err := New[int, int](buf)
	require.NoError(t, err)

	_, had, err := tr.Insert(1, 2)
	require.NoError(t, err)
	require.False(t, had)

	ks, vs := collect(tr)
	require.Equal(t, []int{1}, ks)
	require.Equal(t, []int{2}, vs)

	v, ok := tr.Get(1)
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.NoError(t, tr.CheckInvariants())
}

func TestAscending32(t *testing.T) {
	buf := make([]byte, 64*1024)
	tr, err := New[int, int](buf)
	require.NoError(t, err)

	for i := 31; i >= 0; i-- {
		_, _, err := tr.Insert(i, i*i)
		require.NoError(t, err)
		require.NoError(t, tr.CheckInvariants())
	}

	for i := 0; i < 32; i++ {
		v, ok := tr.Get(i)
		require.True(t, ok)
		require.Equal(t, i*i, v)
	}

	ks, _ := collect(tr)
	for i := 1; i < len(ks); i++ {
		require.Less(t, ks[i-1], ks[i])
	}
	require.Len(t, ks, 32)
}

func TestMutateInPlace(t *testing.T) {
	buf := make([]byte, 16*1024)
	tr, err := New[int, int](buf)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, _, err := tr.Insert(i, i)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		want := 0
		if i > 5 {
			want = 10
		}
		_, had, err := tr.Insert(i, want)
		require.NoError(t, err)
		require.True(t, had)
	}
	for i := 0; i < 10; i++ {
		v, ok := tr.Get(i)
		require.True(t, ok)
		want := 0
		if i > 5 {
			want = 10
		}
		require.Equal(t, want, v)
	}
	require.NoError(t, tr.CheckInvariants())
}

func TestRemoveRange(t *testing.T) {
	buf := make([]byte, 64*1024)
	tr, err := New[int, int](buf)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, _, err := tr.Insert(i, i)
		require.NoError(t, err)
	}
	for i := 0; i < 15; i++ {
		v, had := tr.Remove(i)
		require.True(t, had)
		require.Equal(t, i, v)
		require.NoError(t, tr.CheckInvariants())
	}
	for i := 0; i < 25; i++ {
		v, ok := tr.Get(i)
		if i >= 15 {
			require.True(t, ok, "key %d", i)
			require.Equal(t, i, v)
		} else {
			require.False(t, ok, "key %d", i)
		}
	}

	_, had := tr.Remove(1000)
	require.False(t, had)
}

func TestReattach(t *testing.T) {
	buf := make([]byte, 64*1024)
	tr, err := New[int, int](buf)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, _, err := tr.Insert(i, i)
		require.NoError(t, err)
	}
	for i := 0; i < 15; i++ {
		_, _ = tr.Remove(i)
	}
	want, _ := collect(tr)

	tr2, err := Load[int, int](buf)
	require.NoError(t, err)
	got, _ := collect(tr2)
	require.Equal(t, want, got)
	require.NoError(t, tr2.CheckInvariants())
}

func TestLoadRejectsForeignBuffer(t *testing.T) {
	buf := make([]byte, 1024)
	_, err := Load[int, int](buf)
	require.ErrorIs(t, err, ErrInvalidBuffer)
}

func TestInsertReportsPriorValue(t *testing.T) {
	buf := make([]byte, 1024)
	tr, err := New[int, string](buf)
	require.NoError(t, err)

	_, had, err := tr.Insert(5, "a")
	require.NoError(t, err)
	require.False(t, had)

	old, had, err := tr.Insert(5, "b")
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, "a", old)
}

func TestOutOfSpaceLeavesTreeUnchanged(t *testing.T) {
	buf := make([]byte, 200)
	tr, err := New[int, int](buf)
	require.NoError(t, err)

	inserted := 0
	for i := 0; i < 1000; i++ {
		_, _, err := tr.Insert(i, i)
		if err != nil {
			require.ErrorIs(t, err, ErrOutOfSpace)
			break
		}
		inserted++
	}
	require.NoError(t, tr.CheckInvariants())
	for i := 0; i < inserted; i++ {
		v, ok := tr.Get(i)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}
