// Package buftree implements an ordered key-value map as a B-tree whose
// entire state — every node, every header, every entry — lives inside a
// single contiguous byte buffer supplied by the caller. When the buffer is
// persisted and later reopened, the tree is recoverable without any
// deserialization step: the in-memory representation is the on-disk
// representation.
package buftree

import (
	"cmp"
	"encoding/binary"
	"errors"

	"buftree/bnode"
	"buftree/heap"
)

// MIN and MAX bound the number of entries in every non-root node. The root
// may have fewer than MIN entries.
const (
	MIN = 2
	MAX = 4
)

// ErrBufferTooSmall is returned by New when buf cannot hold the control
// blocks plus a minimal root node.
var ErrBufferTooSmall = heap.ErrBufferTooSmall

// ErrInvalidBuffer is returned by Load when buf's magic/version does not
// identify it as a buffer written by New.
var ErrInvalidBuffer = errors.New("buftree: invalid or uninitialized buffer")

// ErrOutOfSpace is returned by Insert when the heap cannot satisfy an
// allocation the operation requires.
var ErrOutOfSpace = heap.ErrOutOfSpace

const (
	ctlMagic   = uint32(0xB7E3B7E3)
	ctlVersion = uint16(1)
	// ctlSize: magic(4) + version(2) + reserved(2) + rootOffset(8).
	ctlSize = 16
)

// Tree is a handle onto a B-tree living inside buf. K must be an ordered,
// fixed-size, trivially-copyable type; V must be fixed-size and
// trivially-copyable. Two handles must never be opened over the same buffer
// concurrently; the tree provides no internal locking (spec.md §5).
type Tree[K cmp.Ordered, V any] struct {
	h   *heap.Heap
	buf []byte
}

// controlOffset is the fixed offset of the tree control block: right after
// the heap's own control block.
const controlOffset = heap.ControlSize

func (t *Tree[K, V]) rootOffset() uint64 {
	return binary.LittleEndian.Uint64(t.buf[controlOffset+8 : controlOffset+16])
}

func (t *Tree[K, V]) setRootOffset(off uint64) {
	binary.LittleEndian.PutUint64(t.buf[controlOffset+8:controlOffset+16], off)
}

// New initializes buf as an empty tree and returns a handle. Calling New on
// a buffer that already holds a tree destroys it; use Load to reattach to
// an existing tree instead.
func New[K cmp.Ordered, V any](buf []byte) (*Tree[K, V], error) {
	h, err := heap.Init(buf, ctlSize)
	if err != nil {
		return nil, err
	}
	t := &Tree[K, V]{h: h, buf: buf}

	binary.LittleEndian.PutUint32(buf[controlOffset:controlOffset+4], ctlMagic)
	binary.LittleEndian.PutUint16(buf[controlOffset+4:controlOffset+6], ctlVersion)
	binary.LittleEndian.PutUint16(buf[controlOffset+6:controlOffset+8], 0)

	rootID, _, err := t.allocBranchRaw(0)
	if err != nil {
		return nil, err
	}
	t.setRootOffset(rootID)
	return t, nil
}

// Load reattaches a handle to a buffer previously written by New (and any
// subsequent operations). It requires that every allocation made before the
// buffer was last persisted is still present in buf.
func Load[K cmp.Ordered, V any](buf []byte) (*Tree[K, V], error) {
	h, err := heap.Load(buf)
	if err != nil {
		return nil, ErrInvalidBuffer
	}
	if len(buf) < controlOffset+ctlSize {
		return nil, ErrInvalidBuffer
	}
	if binary.LittleEndian.Uint32(buf[controlOffset:controlOffset+4]) != ctlMagic {
		return nil, ErrInvalidBuffer
	}
	if binary.LittleEndian.Uint16(buf[controlOffset+4:controlOffset+6]) != ctlVersion {
		return nil, ErrInvalidBuffer
	}
	return &Tree[K, V]{h: h, buf: buf}, nil
}

// --- node access helpers ---

func (t *Tree[K, V]) tag(id uint64) bnode.Tag {
	return bnode.ReadTag(t.buf[id : id+bnode.HeaderSize])
}

func (t *Tree[K, V]) entryCount(id uint64) int {
	return bnode.ReadLen(t.buf[id : id+bnode.HeaderSize])
}

func (t *Tree[K, V]) nodeSize(id uint64) int {
	n := t.entryCount(id)
	if t.tag(id) == bnode.TagLeaf {
		return bnode.LeafSize[K, V](n)
	}
	return bnode.BranchSize[K](n)
}

func (t *Tree[K, V]) leafView(id uint64) bnode.LeafView[K, V] {
	size := t.nodeSize(id)
	return bnode.NewLeafView[K, V](t.buf[id : id+uint64(size)])
}

func (t *Tree[K, V]) branchView(id uint64) bnode.BranchView[K] {
	size := t.nodeSize(id)
	return bnode.NewBranchView[K](t.buf[id : id+uint64(size)])
}

// minKey returns the smallest key reachable under the subtree rooted at id.
// Branch entry 0's separator is kept synchronized to this value even though
// it is never compared against (spec.md §3), which makes this O(1) at every
// level instead of requiring a descent to the leftmost leaf.
func (t *Tree[K, V]) minKey(id uint64) K {
	if t.tag(id) == bnode.TagLeaf {
		return t.leafView(id).Key(0)
	}
	return t.branchView(id).Separator(0)
}

// allocLeafRaw/allocBranchRaw allocate a node with no rollback bookkeeping;
// used only where the caller has no ongoing transaction (tree construction).
func (t *Tree[K, V]) allocLeafRaw(n int) (uint64, bnode.LeafView[K, V], error) {
	size := bnode.LeafSize[K, V](n)
	off, err := t.h.Alloc(uint64(size), heap.Align)
	if err != nil {
		return 0, bnode.LeafView[K, V]{}, err
	}
	buf := t.buf[off : off+uint64(size)]
	bnode.WriteHeader(buf, bnode.TagLeaf, n)
	return off, bnode.NewLeafView[K, V](buf), nil
}

func (t *Tree[K, V]) allocBranchRaw(n int) (uint64, bnode.BranchView[K], error) {
	size := bnode.BranchSize[K](n)
	off, err := t.h.Alloc(uint64(size), heap.Align)
	if err != nil {
		return 0, bnode.BranchView[K]{}, err
	}
	buf := t.buf[off : off+uint64(size)]
	bnode.WriteHeader(buf, bnode.TagBranch, n)
	return off, bnode.NewBranchView[K](buf), nil
}

func (t *Tree[K, V]) freeNodeRaw(id uint64) {
	size := t.nodeSize(id)
	t.h.Free(id, uint64(size), heap.Align)
}

// txn accumulates the bookkeeping for one Insert/Remove call so that it can
// either fully commit or fully roll back, preserving spec.md §7's "a failed
// operation leaves the tree unchanged" contract even though the recursive
// algorithms allocate and supersede nodes level by level.
//
//   - fresh holds every node allocated so far during this call. On any
//     error, every node in fresh is freed and the operation reports the
//     error without having touched the root pointer or freed any node that
//     predates the call.
//   - toFree holds every node superseded (replaced by a fresh one) so far.
//     These are only freed once the whole operation has committed its new
//     root pointer — at that point nothing still references them.
type txn[K any] struct {
	fresh  []uint64
	toFree []uint64
}

func (t *Tree[K, V]) allocLeaf(tx *txn[K], n int) (uint64, bnode.LeafView[K, V], error) {
	id, v, err := t.allocLeafRaw(n)
	if err != nil {
		return 0, bnode.LeafView[K, V]{}, err
	}
	tx.fresh = append(tx.fresh, id)
	return id, v, nil
}

func (t *Tree[K, V]) allocBranch(tx *txn[K], n int) (uint64, bnode.BranchView[K], error) {
	id, v, err := t.allocBranchRaw(n)
	if err != nil {
		return 0, bnode.BranchView[K]{}, err
	}
	tx.fresh = append(tx.fresh, id)
	return id, v, nil
}

func (t *Tree[K, V]) supersede(tx *txn[K], id uint64) {
	tx.toFree = append(tx.toFree, id)
}

func (t *Tree[K, V]) rollback(tx *txn[K]) {
	for _, id := range tx.fresh {
		t.freeNodeRaw(id)
	}
}

func (t *Tree[K, V]) commit(tx *txn[K]) {
	for _, id := range tx.toFree {
		t.freeNodeRaw(id)
	}
}

// stepResult describes, to the caller of a recursive insert/remove step,
// what changed in the subtree it owns a pointer to.
type stepResult[K any] struct {
	single bool // true: the subtree is now one node, id
	id     uint64

	// valid when !single: the subtree is now two nodes, either from an
	// insert split or from a remove redistributing two siblings' entries.
	sep         K
	left, right uint64
}

func lowerOf(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func higherOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}
