package buftree

import "buftree/bnode"

// Remove deletes key if present and reports its value and whether it
// existed.
//
// Unlike Insert, Remove exposes no error: every allocation it performs
// shrinks or holds steady the amount of live data, so in practice it only
// fails under heap exhaustion so severe that even a smaller replacement
// node has nowhere to land. Should that happen, the attempt is rolled back
// and Remove reports the key as not found rather than leaving the tree in
// a partially updated state.
func (t *Tree[K, V]) Remove(key K) (V, bool) {
	var zero V
	tx := &txn[K]{}
	root := t.rootOffset()
	rootView := t.branchView(root)
	if rootView.Len() == 0 {
		return zero, false
	}

	res, oldVal, hadOld, err := t.removeRec(tx, root, key)
	if err != nil {
		t.rollback(tx)
		return zero, false
	}
	if res == nil {
		return zero, false
	}

	newRoot := res.id
	// Root collapse: while the root is a branch with exactly one child
	// that is itself a branch, drop a level. A root whose sole child is a
	// leaf stays as-is — the root must always be a branch.
	for {
		v := t.branchView(newRoot)
		if v.Len() != 1 {
			break
		}
		child := v.Child(0)
		if t.tag(child) != bnode.TagBranch {
			break
		}
		t.supersede(tx, newRoot)
		newRoot = child
	}

	t.setRootOffset(newRoot)
	t.commit(tx)
	return oldVal, hadOld
}

func (t *Tree[K, V]) removeRec(tx *txn[K], id uint64, key K) (*stepResult[K], V, bool, error) {
	if t.tag(id) == bnode.TagLeaf {
		return t.removeLeaf(tx, id, key)
	}
	return t.removeBranch(tx, id, key)
}

func (t *Tree[K, V]) removeLeaf(tx *txn[K], id uint64, key K) (*stepResult[K], V, bool, error) {
	var zero V
	lv := t.leafView(id)
	n := lv.Len()
	idx, found := leafSearch(lv, key)
	if !found {
		return nil, zero, false, nil
	}
	old := lv.Value(idx)

	newLen := n - 1
	newID, newV, err := t.allocLeaf(tx, newLen)
	if err != nil {
		return nil, zero, false, err
	}
	for i := 0; i < idx; i++ {
		newV.SetEntry(i, lv.Entry(i))
	}
	for i := idx + 1; i < n; i++ {
		newV.SetEntry(i-1, lv.Entry(i))
	}
	t.supersede(tx, id)
	return &stepResult[K]{single: true, id: newID}, old, true, nil
}

func (t *Tree[K, V]) removeBranch(tx *txn[K], id uint64, key K) (*stepResult[K], V, bool, error) {
	var zero V
	bv := t.branchView(id)
	n := bv.Len()
	if n == 0 {
		return nil, zero, false, nil
	}
	idx := findChildIndex[K](bv, key)
	childID := bv.Child(idx)

	childRes, oldVal, hadOld, err := t.removeRec(tx, childID, key)
	if err != nil {
		return nil, zero, false, err
	}
	if childRes == nil {
		return nil, zero, false, nil
	}

	newChildID := childRes.id
	// The tree's last key is gone: the root's sole leaf is now empty, so the
	// root goes back to being an empty branch, the shape New creates.
	if n == 1 && t.entryCount(newChildID) == 0 {
		newID, _, err := t.allocBranch(tx, 0)
		if err != nil {
			return nil, zero, false, err
		}
		t.supersede(tx, newChildID)
		t.supersede(tx, id)
		return &stepResult[K]{single: true, id: newID}, oldVal, hadOld, nil
	}
	// n==1 means id is the root with its one and only child (the only
	// branch shape allowed to have fewer than MIN entries): there is no
	// sibling to merge with, so the underfull child is kept as-is. Every
	// other branch satisfies MIN<=n<=MAX and so is never the root's sole
	// child, which is why this case can only arise at the root.
	if n == 1 || t.entryCount(newChildID) >= MIN {
		newID, newV, err := t.allocBranch(tx, n)
		if err != nil {
			return nil, zero, false, err
		}
		for i := 0; i < n; i++ {
			if i == idx {
				newV.SetEntry(i, bnode.BranchEntry[K]{Separator: t.minKey(newChildID), Child: newChildID})
			} else {
				newV.SetEntry(i, bv.Entry(i))
			}
		}
		t.supersede(tx, id)
		return &stepResult[K]{single: true, id: newID}, oldVal, hadOld, nil
	}

	// Underflow with a sibling available: every non-root branch satisfies
	// MIN<=n<=MAX, so n>=2 here and a sibling always exists.
	var sibIdx int
	var mergeLeft bool
	if idx > 0 {
		sibIdx, mergeLeft = idx-1, true
	} else {
		sibIdx, mergeLeft = idx+1, false
	}
	sibID := bv.Child(sibIdx)

	merged, err := t.mergeSiblings(tx, newChildID, sibID, mergeLeft)
	if err != nil {
		return nil, zero, false, err
	}

	lo, hi := lowerOf(idx, sibIdx), higherOf(idx, sibIdx)

	if merged.single {
		newLen := n - 1
		newID, newV, err := t.allocBranch(tx, newLen)
		if err != nil {
			return nil, zero, false, err
		}
		w := 0
		for i := 0; i < n; i++ {
			switch i {
			case lo:
				newV.SetEntry(w, bnode.BranchEntry[K]{Separator: t.minKey(merged.id), Child: merged.id})
				w++
			case hi:
				// dropped: absorbed into the merged node
			default:
				newV.SetEntry(w, bv.Entry(i))
				w++
			}
		}
		t.supersede(tx, id)
		return &stepResult[K]{single: true, id: newID}, oldVal, hadOld, nil
	}

	// Redistribution: the sibling pair overflowed MAX when concatenated,
	// so both slots keep a child but their contents were rebalanced.
	newID, newV, err := t.allocBranch(tx, n)
	if err != nil {
		return nil, zero, false, err
	}
	for i := 0; i < n; i++ {
		switch i {
		case lo:
			newV.SetEntry(i, bnode.BranchEntry[K]{Separator: t.minKey(merged.left), Child: merged.left})
		case hi:
			newV.SetEntry(i, bnode.BranchEntry[K]{Separator: merged.sep, Child: merged.right})
		default:
			newV.SetEntry(i, bv.Entry(i))
		}
	}
	t.supersede(tx, id)
	return &stepResult[K]{single: true, id: newID}, oldVal, hadOld, nil
}

// mergeSiblings combines child and sib, which are adjacent nodes of the
// same kind at the same depth. If mergeLeft, sib is the left neighbor (its
// entries precede child's); otherwise sib is the right neighbor.
func (t *Tree[K, V]) mergeSiblings(tx *txn[K], child, sib uint64, mergeLeft bool) (*stepResult[K], error) {
	if t.tag(child) == bnode.TagLeaf {
		return t.mergeLeaves(tx, child, sib, mergeLeft)
	}
	return t.mergeBranches(tx, child, sib, mergeLeft)
}

func (t *Tree[K, V]) mergeLeaves(tx *txn[K], child, sib uint64, mergeLeft bool) (*stepResult[K], error) {
	a, b := sib, child
	if !mergeLeft {
		a, b = child, sib
	}
	av, bv := t.leafView(a), t.leafView(b)
	total := av.Len() + bv.Len()

	if total <= MAX {
		mergedID, mergedV, err := t.allocLeaf(tx, total)
		if err != nil {
			return nil, err
		}
		for i := 0; i < av.Len(); i++ {
			mergedV.SetEntry(i, av.Entry(i))
		}
		for i := 0; i < bv.Len(); i++ {
			mergedV.SetEntry(av.Len()+i, bv.Entry(i))
		}
		t.supersede(tx, a)
		t.supersede(tx, b)
		return &stepResult[K]{single: true, id: mergedID}, nil
	}

	m := total / 2
	leftID, leftV, err := t.allocLeaf(tx, m)
	if err != nil {
		return nil, err
	}
	rightID, rightV, err := t.allocLeaf(tx, total-m)
	if err != nil {
		return nil, err
	}
	w := 0
	for i := 0; i < av.Len(); i++ {
		setLeafSplitEntry(leftV, rightV, m, w, av.Entry(i))
		w++
	}
	for i := 0; i < bv.Len(); i++ {
		setLeafSplitEntry(leftV, rightV, m, w, bv.Entry(i))
		w++
	}
	t.supersede(tx, a)
	t.supersede(tx, b)
	return &stepResult[K]{single: false, sep: rightV.Key(0), left: leftID, right: rightID}, nil
}

func setLeafSplitEntry[K any, V any](leftV, rightV bnode.LeafView[K, V], m, w int, e bnode.LeafEntry[K, V]) {
	if w < m {
		leftV.SetEntry(w, e)
	} else {
		rightV.SetEntry(w-m, e)
	}
}

func (t *Tree[K, V]) mergeBranches(tx *txn[K], child, sib uint64, mergeLeft bool) (*stepResult[K], error) {
	a, b := sib, child
	if !mergeLeft {
		a, b = child, sib
	}
	av, bv := t.branchView(a), t.branchView(b)
	total := av.Len() + bv.Len()

	if total <= MAX {
		mergedID, mergedV, err := t.allocBranch(tx, total)
		if err != nil {
			return nil, err
		}
		for i := 0; i < av.Len(); i++ {
			mergedV.SetEntry(i, av.Entry(i))
		}
		for i := 0; i < bv.Len(); i++ {
			mergedV.SetEntry(av.Len()+i, bv.Entry(i))
		}
		t.supersede(tx, a)
		t.supersede(tx, b)
		return &stepResult[K]{single: true, id: mergedID}, nil
	}

	m := total / 2
	leftID, leftV, err := t.allocBranch(tx, m)
	if err != nil {
		return nil, err
	}
	rightID, rightV, err := t.allocBranch(tx, total-m)
	if err != nil {
		return nil, err
	}
	w := 0
	for i := 0; i < av.Len(); i++ {
		setBranchSplitEntry(leftV, rightV, m, w, av.Entry(i))
		w++
	}
	for i := 0; i < bv.Len(); i++ {
		setBranchSplitEntry(leftV, rightV, m, w, bv.Entry(i))
		w++
	}
	t.supersede(tx, a)
	t.supersede(tx, b)
	return &stepResult[K]{single: false, sep: rightV.Separator(0), left: leftID, right: rightID}, nil
}

func setBranchSplitEntry[K any](leftV, rightV bnode.BranchView[K], m, w int, e bnode.BranchEntry[K]) {
	if w < m {
		leftV.SetEntry(w, e)
	} else {
		rightV.SetEntry(w-m, e)
	}
}
