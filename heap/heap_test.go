package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRejectsTooSmallBuffer(t *testing.T) {
	_, err := Init(make([]byte, 4), 0)
	require.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestLoadRejectsUninitializedBuffer(t *testing.T) {
	_, err := Load(make([]byte, 1024))
	require.ErrorIs(t, err, ErrInvalidBuffer)
}

func TestAllocFillsThenExhausts(t *testing.T) {
	h, err := Init(make([]byte, 256), 0)
	require.NoError(t, err)

	var offs []uint64
	for {
		off, err := h.Alloc(16, 8)
		if err != nil {
			require.ErrorIs(t, err, ErrOutOfSpace)
			break
		}
		offs = append(offs, off)
	}
	require.NotEmpty(t, offs)

	seen := map[uint64]bool{}
	for _, off := range offs {
		require.False(t, seen[off], "offset %d allocated twice", off)
		seen[off] = true
	}
}

func TestFreeAllowsReuse(t *testing.T) {
	h, err := Init(make([]byte, 256), 0)
	require.NoError(t, err)

	off1, err := h.Alloc(32, 8)
	require.NoError(t, err)
	off2, err := h.Alloc(32, 8)
	require.NoError(t, err)
	require.NotEqual(t, off1, off2)

	h.Free(off1, 32, 8)
	off3, err := h.Alloc(32, 8)
	require.NoError(t, err)
	require.Equal(t, off1, off3, "freed block should be reused")
}

func TestFreeCoalescesAdjacentBlocks(t *testing.T) {
	h, err := Init(make([]byte, 256), 0)
	require.NoError(t, err)

	a, err := h.Alloc(16, 8)
	require.NoError(t, err)
	b, err := h.Alloc(16, 8)
	require.NoError(t, err)
	c, err := h.Alloc(16, 8)
	require.NoError(t, err)

	h.Free(a, 16, 8)
	h.Free(c, 16, 8)
	h.Free(b, 16, 8)

	// After freeing all three (in non-address order) and coalescing,
	// a single allocation spanning all three should succeed.
	big, err := h.Alloc(48, 8)
	require.NoError(t, err)
	require.Equal(t, a, big)
}

func TestReattachPreservesLiveAllocations(t *testing.T) {
	buf := make([]byte, 512)
	h, err := Init(buf, 0)
	require.NoError(t, err)

	off, err := h.Alloc(64, 8)
	require.NoError(t, err)
	copy(buf[off:off+5], []byte("hello"))

	h2, err := Load(buf)
	require.NoError(t, err)
	require.Equal(t, h.Used(), h2.Used())
	require.Equal(t, "hello", string(buf[off:off+5]))

	// The reattached heap must not hand out the still-live region.
	off2, err := h2.Alloc(h2.Len()-h2.Used()-ControlSize+1, 8)
	if err == nil {
		require.NotEqual(t, off, off2)
	}
}
