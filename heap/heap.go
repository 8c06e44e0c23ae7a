// Package heap implements a free-list suballocator over a caller-supplied
// byte buffer. It partitions the buffer into variable-size allocations
// addressable by offset, and its own bookkeeping lives inside the buffer it
// manages so that a heap can be re-attached after the buffer is reopened.
package heap

import (
	"encoding/binary"
	"errors"
)

// ErrBufferTooSmall is returned by Init when the supplied buffer cannot hold
// even the control block and a minimal free region.
var ErrBufferTooSmall = errors.New("heap: buffer too small")

// ErrInvalidBuffer is returned by Load when the buffer's magic does not
// match, i.e. it was never written by Init.
var ErrInvalidBuffer = errors.New("heap: invalid or uninitialized buffer")

// ErrOutOfSpace is returned by Alloc when no free region is large enough to
// satisfy the request.
var ErrOutOfSpace = errors.New("heap: out of space")

const (
	magic      = uint32(0xB7A1B7A1)
	headerSize = 32 // magic(4) + version(2) + reserved(2) + size(8) + freeListHead(8) + used(8)
	version    = uint16(1)

	// blockHeaderSize is the size of the intrusive free-block header
	// (size uint64 + next uint64) written into the start of every free
	// region. It doubles as the minimum allocation granularity so that
	// any allocation, once freed, always has room to hold that header.
	blockHeaderSize = 16
	minAlloc        = blockHeaderSize

	// Align is the alignment every allocation offset is guaranteed to
	// satisfy. Requested alignments greater than this are not honoured:
	// Alloc clamps them to Align, so the offset is only Align-aligned.
	// spec.md's fixed-size K/V types never need more than 8-byte
	// alignment on little-endian 64-bit platforms.
	Align = 8
)

// Heap is a handle onto the free-list allocator living inside a buffer.
type Heap struct {
	buf []byte
}

// ControlSize is the number of bytes at the start of the buffer reserved for
// the heap's own control block. Callers that lay out additional fixed
// records (such as buftree's tree control block) must place them starting
// at this offset.
const ControlSize = headerSize

// Init writes a fresh heap control block into buf and returns a handle.
// reserve bytes immediately following the heap's own control block
// (ControlSize bytes) are excluded from the free list, left for the caller
// to store its own fixed-offset records (e.g. buftree's tree control
// block) at offset ControlSize.
//
// Init must only be called on a buffer that is either freshly zeroed or
// whose previous contents are meant to be discarded: calling Init over an
// in-use tree destroys it.
func Init(buf []byte, reserve uint64) (*Heap, error) {
	if uint64(len(buf)) < headerSize+reserve+blockHeaderSize {
		return nil, ErrBufferTooSmall
	}
	h := &Heap{buf: buf}
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], version)
	binary.LittleEndian.PutUint16(buf[6:8], 0) // reserved
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(buf)))
	binary.LittleEndian.PutUint64(buf[24:32], 0) // used bytes

	firstFree := uint64(headerSize) + reserve
	firstSize := uint64(len(buf)) - firstFree
	h.setFreeListHead(firstFree)
	h.writeBlock(firstFree, firstSize, 0)
	return h, nil
}

// Load recovers a heap handle from a buffer previously written by Init (and
// any subsequent Alloc/Free calls). All allocations made before the buffer
// was last persisted must still be live in buf.
func Load(buf []byte) (*Heap, error) {
	if len(buf) < headerSize {
		return nil, ErrInvalidBuffer
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != magic {
		return nil, ErrInvalidBuffer
	}
	if binary.LittleEndian.Uint16(buf[4:6]) != version {
		return nil, ErrInvalidBuffer
	}
	size := binary.LittleEndian.Uint64(buf[8:16])
	if size != uint64(len(buf)) {
		return nil, ErrInvalidBuffer
	}
	return &Heap{buf: buf}, nil
}

func (h *Heap) freeListHead() uint64 {
	return binary.LittleEndian.Uint64(h.buf[16:24])
}

func (h *Heap) setFreeListHead(off uint64) {
	binary.LittleEndian.PutUint64(h.buf[16:24], off)
}

func (h *Heap) used() uint64 {
	return binary.LittleEndian.Uint64(h.buf[24:32])
}

func (h *Heap) addUsed(delta int64) {
	u := int64(h.used()) + delta
	binary.LittleEndian.PutUint64(h.buf[24:32], uint64(u))
}

func (h *Heap) readBlock(off uint64) (size, next uint64) {
	size = binary.LittleEndian.Uint64(h.buf[off : off+8])
	next = binary.LittleEndian.Uint64(h.buf[off+8 : off+16])
	return
}

func (h *Heap) writeBlock(off, size, next uint64) {
	binary.LittleEndian.PutUint64(h.buf[off:off+8], size)
	binary.LittleEndian.PutUint64(h.buf[off+8:off+16], next)
}

func roundUp(size, align uint64) uint64 {
	if r := size % align; r != 0 {
		size += align - r
	}
	return size
}

func allocUnit(size uint64) uint64 {
	u := roundUp(size, Align)
	if u < minAlloc {
		u = minAlloc
	}
	return u
}

// Alloc returns an offset into the buffer of at least size bytes, aligned
// to align (which must be <= Align). It is first-fit: the free list is
// walked in address order and the first region large enough is used,
// splitting off any remainder back into the list.
func (h *Heap) Alloc(size uint64, align uint64) (uint64, error) {
	if align == 0 {
		align = 1
	}
	if align > Align {
		align = Align
	}
	need := allocUnit(size)

	var prev uint64 // offset of previous free block, 0 = none (list head)
	cur := h.freeListHead()
	for cur != 0 {
		blockSize, next := h.readBlock(cur)
		if blockSize >= need {
			remainder := blockSize - need
			if remainder >= minAlloc {
				// Split: shrink this block in place, keep it (now
				// shorter) linked where it was.
				newFreeOff := cur + need
				h.writeBlock(newFreeOff, remainder, next)
				if prev == 0 {
					h.setFreeListHead(newFreeOff)
				} else {
					h.relink(prev, newFreeOff)
				}
			} else {
				// Use the whole block; unlink it.
				if prev == 0 {
					h.setFreeListHead(next)
				} else {
					h.relink(prev, next)
				}
			}
			h.addUsed(int64(need))
			return cur, nil
		}
		prev = cur
		cur = next
	}
	return 0, ErrOutOfSpace
}

// relink rewrites prev's next pointer to newNext, preserving prev's size.
func (h *Heap) relink(prev, newNext uint64) {
	size, _ := h.readBlock(prev)
	h.writeBlock(prev, size, newNext)
}

// Free marks the region [offset, offset+size) as available for reuse. It is
// a usage error to free a region twice or one that was never allocated; the
// heap does not detect this.
func (h *Heap) Free(offset uint64, size uint64, align uint64) {
	_ = align
	need := allocUnit(size)
	h.addUsed(-int64(need))
	h.insertFree(offset, need)
}

// insertFree inserts a free block in address order and coalesces it with an
// immediately adjacent predecessor and/or successor.
func (h *Heap) insertFree(offset, size uint64) {
	var prev uint64
	cur := h.freeListHead()
	for cur != 0 && cur < offset {
		prev = cur
		_, next := h.readBlock(cur)
		cur = next
	}

	// Try to coalesce with the successor.
	if cur != 0 {
		curSize, curNext := h.readBlock(cur)
		if offset+size == cur {
			size += curSize
			cur = curNext
		}
	}

	// Try to coalesce with the predecessor.
	if prev != 0 {
		prevSize, _ := h.readBlock(prev)
		if prev+prevSize == offset {
			offset = prev
			size += prevSize
			h.writeBlock(offset, size, cur)
			// prev's own predecessor already points at prev; nothing
			// else to relink.
			return
		}
	}

	h.writeBlock(offset, size, cur)
	if prev == 0 {
		h.setFreeListHead(offset)
	} else {
		h.relink(prev, offset)
	}
}

// Len reports the total size of the managed buffer.
func (h *Heap) Len() uint64 {
	return binary.LittleEndian.Uint64(h.buf[8:16])
}

// Used reports the number of bytes currently allocated (rounded up to the
// allocator's granularity).
func (h *Heap) Used() uint64 {
	return h.used()
}

// Buffer returns the underlying byte buffer the heap manages.
func (h *Heap) Buffer() []byte {
	return h.buf
}
