package buftree

import (
	"cmp"

	"buftree/bnode"
)

// leafSearch returns the index of key within the leaf if present, else the
// index at which it would be inserted to keep the leaf sorted.
func leafSearch[K cmp.Ordered, V any](v bnode.LeafView[K, V], key K) (int, bool) {
	lo, hi := 0, v.Len()
	for lo < hi {
		mid := (lo + hi) / 2
		k := v.Key(mid)
		switch {
		case k == key:
			return mid, true
		case k < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// findChildIndex returns the index of the child responsible for key: the
// largest i such that branch.Separator(i) <= key, or 0 if key is smaller
// than every real separator (i.e. belongs under the sentinel, index 0).
// Ties — key exactly equal to a separator — resolve to that separator's
// index, per spec.md's "ties go to the higher index" rule.
func findChildIndex[K cmp.Ordered](v bnode.BranchView[K], key K) int {
	n := v.Len()
	if n <= 1 {
		return 0
	}
	lo, hi := 1, n
	result := 0
	for lo < hi {
		mid := (lo + hi) / 2
		if v.Separator(mid) <= key {
			result = mid
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return result
}

// Get looks up key and reports whether it is present.
func (t *Tree[K, V]) Get(key K) (V, bool) {
	var zero V
	id := t.rootOffset()
	for {
		if t.tag(id) == bnode.TagLeaf {
			lv := t.leafView(id)
			idx, found := leafSearch(lv, key)
			if !found {
				return zero, false
			}
			return lv.Value(idx), true
		}
		bv := t.branchView(id)
		if bv.Len() == 0 {
			return zero, false
		}
		idx := findChildIndex[K](bv, key)
		id = bv.Child(idx)
	}
}
