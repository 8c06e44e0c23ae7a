package buftree

import (
	"iter"

	"buftree/bnode"
)

// frame is one level of an explicit traversal stack: a node together with
// the index of the next child to descend into (branches) or nothing left
// to track once a leaf has been fully yielded.
type frame struct {
	id   uint64
	next int
}

// Iter returns a lazy, non-restartable sequence of every (key, value) pair
// in ascending key order. Mutating the tree while an Iter sequence is in
// progress is undefined: the sequence holds node views that a structural
// change can invalidate.
func (t *Tree[K, V]) Iter() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		root := t.rootOffset()
		if t.branchView(root).Len() == 0 {
			return
		}
		stack := []frame{{id: root, next: 0}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if t.tag(top.id) == bnode.TagLeaf {
				lv := t.leafView(top.id)
				for i := 0; i < lv.Len(); i++ {
					if !yield(lv.Key(i), lv.Value(i)) {
						return
					}
				}
				stack = stack[:len(stack)-1]
				continue
			}
			bv := t.branchView(top.id)
			if top.next >= bv.Len() {
				stack = stack[:len(stack)-1]
				continue
			}
			child := bv.Child(top.next)
			top.next++
			stack = append(stack, frame{id: child, next: 0})
		}
	}
}
