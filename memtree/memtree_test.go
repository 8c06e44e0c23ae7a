package memtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	tr := New[int, string]()

	_, had := tr.Insert(3, "c")
	require.False(t, had)
	_, had = tr.Insert(1, "a")
	require.False(t, had)
	_, had = tr.Insert(2, "b")
	require.False(t, had)

	old, had := tr.Insert(2, "B")
	require.True(t, had)
	require.Equal(t, "b", old)

	var ks []int
	for k := range tr.Iter() {
		ks = append(ks, k)
	}
	require.Equal(t, []int{1, 2, 3}, ks)

	v, had := tr.Remove(1)
	require.True(t, had)
	require.Equal(t, "a", v)

	_, had = tr.Get(1)
	require.False(t, had)
	require.Equal(t, 2, tr.Len())
}
