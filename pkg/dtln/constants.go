// Package dtln implements the streaming part of a two-stage noise
// suppressor for mono 16 kHz audio: overlapping analysis windows, the
// magnitude/phase transform, two pluggable estimators with recurrent
// state and the overlap-add synthesis.
package dtln

const (
	// BlockLen is the length of an analysis window in samples.
	BlockLen = 512

	// BlockShift is the hop between two analysis windows; every processing
	// cycle consumes and emits exactly this many samples.
	BlockShift = 128

	// FFTOutSize is the number of spectral bins of a BlockLen block.
	FFTOutSize = BlockLen/2 + 1

	SampleRate = 16000

	// Latency is the delay between an input sample and the output
	// sample it contributes the most to.
	Latency = BlockLen - BlockShift
)

// AlignedLen rounds n up to a multiple of BlockShift.
func AlignedLen(n int) int {
	return (n + BlockShift - 1) / BlockShift * BlockShift
}
