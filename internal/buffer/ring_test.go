package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchsight/backend/internal/models"
)

func frame(seq uint64) *models.VideoFrame {
	return &models.VideoFrame{StreamID: "s1", Sequence: seq}
}

func TestRingSizeNeverExceedsCapacity(t *testing.T) {
	r := NewRing(7)
	for seq := uint64(1); seq <= 50; seq++ {
		r.Push(frame(seq))
		assert.LessOrEqual(t, r.Len(), r.Cap())
	}
	assert.Equal(t, 7, r.Len())
	assert.Equal(t, uint64(43), r.Evicted())
}

func TestRingEvictsOldest(t *testing.T) {
	// STREAM_BUFFER_SIZE=5, push 1..8: expect 4..8 in order, 3 evicted.
	r := NewRing(5)
	for seq := uint64(1); seq <= 8; seq++ {
		r.Push(frame(seq))
	}
	got := r.LastN(5)
	require.Len(t, got, 5)
	for i, f := range got {
		assert.Equal(t, uint64(4+i), f.Sequence)
	}
	assert.Equal(t, uint64(3), r.Evicted())
}

func TestRingLastN(t *testing.T) {
	r := NewRing(10)
	got := r.LastN(3)
	assert.Nil(t, got, "empty ring returns nil")

	for seq := uint64(1); seq <= 4; seq++ {
		r.Push(frame(seq))
	}

	got = r.LastN(2)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Sequence)
	assert.Equal(t, uint64(4), got[1].Sequence)

	// k larger than size clamps to size.
	got = r.LastN(100)
	require.Len(t, got, 4)
	assert.Equal(t, uint64(1), got[0].Sequence)
	assert.Equal(t, uint64(4), got[3].Sequence)
}

func TestRingLastNWrapped(t *testing.T) {
	r := NewRing(3)
	for seq := uint64(1); seq <= 5; seq++ {
		r.Push(frame(seq))
	}
	got := r.LastN(3)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Sequence)
	assert.Equal(t, uint64(4), got[1].Sequence)
	assert.Equal(t, uint64(5), got[2].Sequence)
}

func TestRingReset(t *testing.T) {
	r := NewRing(4)
	for seq := uint64(1); seq <= 6; seq++ {
		r.Push(frame(seq))
	}
	evicted := r.Evicted()
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.LastN(4))
	assert.Equal(t, evicted, r.Evicted(), "eviction counter survives reset")
}

func TestRingDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRing(0).Cap())
	assert.Equal(t, DefaultCapacity, NewRing(-1).Cap())
}
