package dtln

import (
	"fmt"
)

// FrameBuffer holds the sliding analysis window (the latest BlockLen
// input samples) and the sliding synthesis window that accumulates
// overlap-added output blocks.
type FrameBuffer struct {
	analysis  [BlockLen]float32
	synthesis [BlockLen]float32
}

// Advance drops the oldest BlockShift samples of the analysis window and
// appends samples to it.
func (b *FrameBuffer) Advance(samples []float32) error {
	return b.NextAnalysis(b.analysis[:], samples)
}

// NextAnalysis writes what the analysis window would become after
// Advance(samples) into dst without changing the buffer. dst may be
// the analysis window itself.
func (b *FrameBuffer) NextAnalysis(dst []float32, samples []float32) error {
	if len(samples) != BlockShift {
		return fmt.Errorf("%w: received %d samples, expected %d", ErrInvalidBlockSize, len(samples), BlockShift)
	}
	if len(dst) != BlockLen {
		return fmt.Errorf("%w: the destination window has %d samples, expected %d", ErrInvalidBlockSize, len(dst), BlockLen)
	}
	copy(dst, b.analysis[BlockShift:])
	copy(dst[BlockLen-BlockShift:], samples)
	return nil
}

func (b *FrameBuffer) Analysis() []float32 {
	return b.analysis[:]
}

func (b *FrameBuffer) setAnalysis(window []float32) {
	copy(b.analysis[:], window)
}

// OverlapAdd shifts the synthesis window left by BlockShift, zeroes the
// vacated tail, adds block on top and copies the first BlockShift
// samples, which are now final, into out.
func (b *FrameBuffer) OverlapAdd(out []float32, block []float32) error {
	if len(block) != BlockLen {
		return fmt.Errorf("%w: the block has %d samples, expected %d", ErrInvalidBlockSize, len(block), BlockLen)
	}
	if len(out) != BlockShift {
		return fmt.Errorf("%w: the output has %d samples, expected %d", ErrInvalidBlockSize, len(out), BlockShift)
	}
	copy(b.synthesis[:], b.synthesis[BlockShift:])
	clear(b.synthesis[BlockLen-BlockShift:])
	for i, v := range block {
		b.synthesis[i] += v
	}
	copy(out, b.synthesis[:BlockShift])
	return nil
}

func (b *FrameBuffer) Synthesis() []float32 {
	return b.synthesis[:]
}
