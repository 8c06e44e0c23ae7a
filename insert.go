package buftree

import "buftree/bnode"

// Insert sets key to value, creating the entry if absent. It reports the
// previous value and whether one existed.
//
// On ErrOutOfSpace the tree is left exactly as it was: every node allocated
// during the attempt is freed before the error is returned, and the root
// pointer is never touched until the whole operation has succeeded.
func (t *Tree[K, V]) Insert(key K, value V) (V, bool, error) {
	var zero V
	tx := &txn[K]{}
	root := t.rootOffset()
	rootView := t.branchView(root)

	if rootView.Len() == 0 {
		leafID, leafV, err := t.allocLeaf(tx, 1)
		if err != nil {
			t.rollback(tx)
			return zero, false, err
		}
		leafV.SetEntry(0, bnode.LeafEntry[K, V]{Key: key, Value: value})

		newRootID, newRootV, err := t.allocBranch(tx, 1)
		if err != nil {
			t.rollback(tx)
			return zero, false, err
		}
		newRootV.SetEntry(0, bnode.BranchEntry[K]{Separator: key, Child: leafID})

		t.supersede(tx, root)
		t.setRootOffset(newRootID)
		t.commit(tx)
		return zero, false, nil
	}

	// Reserve the worst-case top-level wrapper up front: if the recursive
	// insert causes the root to split, wiring the two halves together
	// under a fresh 2-entry root can then never fail midway.
	wrapID, wrapV, err := t.allocBranch(tx, 2)
	if err != nil {
		t.rollback(tx)
		return zero, false, err
	}

	res, oldVal, hadOld, err := t.insertRec(tx, root, key, value)
	if err != nil {
		t.rollback(tx)
		return zero, false, err
	}
	if res == nil {
		// Pure value overwrite somewhere below; the reserved wrapper was
		// never needed.
		t.freeNodeRaw(wrapID)
		return oldVal, hadOld, nil
	}
	if res.single {
		t.freeNodeRaw(wrapID)
		t.setRootOffset(res.id)
		t.commit(tx)
		return oldVal, hadOld, nil
	}

	wrapV.SetEntry(0, bnode.BranchEntry[K]{Separator: t.minKey(res.left), Child: res.left})
	wrapV.SetEntry(1, bnode.BranchEntry[K]{Separator: res.sep, Child: res.right})
	t.setRootOffset(wrapID)
	t.commit(tx)
	return oldVal, hadOld, nil
}

// insertRec inserts into the subtree rooted at id, returning nil when the
// change was a pure in-place value overwrite that requires nothing from the
// caller, or a stepResult describing the (possibly split) replacement for
// id otherwise.
func (t *Tree[K, V]) insertRec(tx *txn[K], id uint64, key K, value V) (*stepResult[K], V, bool, error) {
	if t.tag(id) == bnode.TagLeaf {
		return t.insertLeaf(tx, id, key, value)
	}
	return t.insertBranch(tx, id, key, value)
}

func (t *Tree[K, V]) insertLeaf(tx *txn[K], id uint64, key K, value V) (*stepResult[K], V, bool, error) {
	var zero V
	lv := t.leafView(id)
	n := lv.Len()
	idx, found := leafSearch(lv, key)
	if found {
		old := lv.Value(idx)
		lv.SetValue(idx, value)
		return nil, old, true, nil
	}

	newLen := n + 1
	newID, newV, err := t.allocLeaf(tx, newLen)
	if err != nil {
		return nil, zero, false, err
	}
	for i := 0; i < idx; i++ {
		newV.SetEntry(i, lv.Entry(i))
	}
	newV.SetEntry(idx, bnode.LeafEntry[K, V]{Key: key, Value: value})
	for i := idx; i < n; i++ {
		newV.SetEntry(i+1, lv.Entry(i))
	}
	t.supersede(tx, id)

	if newLen <= MAX {
		return &stepResult[K]{single: true, id: newID}, zero, false, nil
	}

	left, right, sep, err := t.splitLeaf(tx, newID, newLen)
	if err != nil {
		return nil, zero, false, err
	}
	t.supersede(tx, newID)
	return &stepResult[K]{single: false, sep: sep, left: left, right: right}, zero, false, nil
}

func (t *Tree[K, V]) splitLeaf(tx *txn[K], id uint64, n int) (left, right uint64, sep K, err error) {
	lv := t.leafView(id)
	m := n / 2
	leftID, leftV, err := t.allocLeaf(tx, m)
	if err != nil {
		return 0, 0, sep, err
	}
	rightID, rightV, err := t.allocLeaf(tx, n-m)
	if err != nil {
		return 0, 0, sep, err
	}
	for i := 0; i < m; i++ {
		leftV.SetEntry(i, lv.Entry(i))
	}
	for i := m; i < n; i++ {
		rightV.SetEntry(i-m, lv.Entry(i))
	}
	return leftID, rightID, rightV.Key(0), nil
}

func (t *Tree[K, V]) insertBranch(tx *txn[K], id uint64, key K, value V) (*stepResult[K], V, bool, error) {
	var zero V
	bv := t.branchView(id)
	n := bv.Len()
	idx := findChildIndex[K](bv, key)
	childID := bv.Child(idx)

	childRes, oldVal, hadOld, err := t.insertRec(tx, childID, key, value)
	if err != nil {
		return nil, zero, false, err
	}
	if childRes == nil {
		return nil, oldVal, hadOld, nil
	}

	if childRes.single {
		newID, newV, err := t.allocBranch(tx, n)
		if err != nil {
			return nil, zero, false, err
		}
		for i := 0; i < n; i++ {
			if i == idx {
				newV.SetEntry(i, bnode.BranchEntry[K]{Separator: t.minKey(childRes.id), Child: childRes.id})
			} else {
				newV.SetEntry(i, bv.Entry(i))
			}
		}
		t.supersede(tx, id)
		return &stepResult[K]{single: true, id: newID}, oldVal, hadOld, nil
	}

	newLen := n + 1
	newID, newV, err := t.allocBranch(tx, newLen)
	if err != nil {
		return nil, zero, false, err
	}
	for i := 0; i < idx; i++ {
		newV.SetEntry(i, bv.Entry(i))
	}
	newV.SetEntry(idx, bnode.BranchEntry[K]{Separator: t.minKey(childRes.left), Child: childRes.left})
	newV.SetEntry(idx+1, bnode.BranchEntry[K]{Separator: childRes.sep, Child: childRes.right})
	for i := idx + 1; i < n; i++ {
		newV.SetEntry(i+1, bv.Entry(i))
	}
	t.supersede(tx, id)

	if newLen <= MAX {
		return &stepResult[K]{single: true, id: newID}, oldVal, hadOld, nil
	}

	left, right, sep, err := t.splitBranch(tx, newID, newLen)
	if err != nil {
		return nil, zero, false, err
	}
	t.supersede(tx, newID)
	return &stepResult[K]{single: false, sep: sep, left: left, right: right}, oldVal, hadOld, nil
}

func (t *Tree[K, V]) splitBranch(tx *txn[K], id uint64, n int) (left, right uint64, sep K, err error) {
	bv := t.branchView(id)
	m := n / 2
	leftID, leftV, err := t.allocBranch(tx, m)
	if err != nil {
		return 0, 0, sep, err
	}
	rightID, rightV, err := t.allocBranch(tx, n-m)
	if err != nil {
		return 0, 0, sep, err
	}
	for i := 0; i < m; i++ {
		leftV.SetEntry(i, bv.Entry(i))
	}
	for i := m; i < n; i++ {
		rightV.SetEntry(i-m, bv.Entry(i))
	}
	return leftID, rightID, rightV.Separator(0), nil
}
