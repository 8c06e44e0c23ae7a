package buftree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"buftree/memtree"
)

// TestDifferentialAgainstMemtree drives a buftree.Tree and a memtree.Tree
// through the same randomized sequence of inserts and removes and asserts
// they always agree, checking the buffer tree's structural invariants
// after every mutation.
func TestDifferentialAgainstMemtree(t *testing.T) {
	buf := make([]byte, 256*1024)
	bt, err := New[int, int](buf)
	require.NoError(t, err)
	mt := memtree.New[int, int]()

	rng := rand.New(rand.NewSource(1))
	const universe = 200

	for i := 0; i < 4000; i++ {
		key := rng.Intn(universe)
		if rng.Intn(3) == 0 {
			wantVal, wantHad := mt.Remove(key)
			gotVal, gotHad := bt.Remove(key)
			require.Equal(t, wantHad, gotHad, "remove(%d) hadOld mismatch", key)
			if wantHad {
				require.Equal(t, wantVal, gotVal, "remove(%d) value mismatch", key)
			}
		} else {
			val := rng.Intn(1_000_000)
			wantOld, wantHad := mt.Insert(key, val)
			gotOld, gotHad, err := bt.Insert(key, val)
			require.NoError(t, err)
			require.Equal(t, wantHad, gotHad, "insert(%d) hadOld mismatch", key)
			if wantHad {
				require.Equal(t, wantOld, gotOld, "insert(%d) old value mismatch", key)
			}
		}
		require.NoError(t, bt.CheckInvariants())
	}

	var wantKeys, gotKeys []int
	for k := range mt.Iter() {
		wantKeys = append(wantKeys, k)
	}
	for k := range bt.Iter() {
		gotKeys = append(gotKeys, k)
	}
	require.Equal(t, wantKeys, gotKeys)

	for k := 0; k < universe; k++ {
		wantVal, wantOK := mt.Get(k)
		gotVal, gotOK := bt.Get(k)
		require.Equal(t, wantOK, gotOK, "get(%d)", k)
		if wantOK {
			require.Equal(t, wantVal, gotVal, "get(%d)", k)
		}
	}
}
