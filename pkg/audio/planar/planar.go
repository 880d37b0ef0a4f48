// Package planar converts between interleaved PCM (LRLRLR) and planar
// PCM (LLLRRR).
package planar

import (
	"fmt"

	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

// Planarize converts interleaved input into planar output.
func Planarize(channels types.Channel, sampleSize uint, output, input []byte) error {
	return transpose(channels, sampleSize, output, input, true)
}

// Unplanarize converts planar input into interleaved output.
func Unplanarize(channels types.Channel, sampleSize uint, output, input []byte) error {
	return transpose(channels, sampleSize, output, input, false)
}

func transpose(
	channels types.Channel,
	sampleSize uint,
	output, input []byte,
	toPlanar bool,
) error {
	if channels == 0 || sampleSize == 0 {
		return fmt.Errorf("invalid layout: %d channels of %d bytes", channels, sampleSize)
	}
	frameSize := int(channels) * int(sampleSize)
	if len(input) < frameSize {
		return fmt.Errorf("the provided input buffer is too short: %d < %d", len(input), frameSize)
	}
	if len(input)%frameSize != 0 {
		return fmt.Errorf("expected a message length that is a multiple of %d, but received %d", frameSize, len(input))
	}
	if len(input) != len(output) {
		return fmt.Errorf("the lengths of input and output are not equal: %d != %d", len(input), len(output))
	}

	size := int(sampleSize)
	samplesPerChan := len(input) / frameSize
	for ch := 0; ch < int(channels); ch++ {
		for pos := 0; pos < samplesPerChan; pos++ {
			interleavedIdx := (pos*int(channels) + ch) * size
			planarIdx := (ch*samplesPerChan + pos) * size
			if toPlanar {
				copy(output[planarIdx:planarIdx+size], input[interleavedIdx:interleavedIdx+size])
			} else {
				copy(output[interleavedIdx:interleavedIdx+size], input[planarIdx:planarIdx+size])
			}
		}
	}
	return nil
}

// Float32 splits interleaved samples into per-channel slices, reusing
// dst when it has the right shape.
func Float32(dst [][]float32, channels types.Channel, interleaved []float32) ([][]float32, error) {
	if channels == 0 || len(interleaved)%int(channels) != 0 {
		return nil, fmt.Errorf("the length %d is not a multiple of the amount of channels %d", len(interleaved), channels)
	}
	perChan := len(interleaved) / int(channels)
	if len(dst) != int(channels) {
		dst = make([][]float32, channels)
	}
	for ch := range dst {
		if cap(dst[ch]) < perChan {
			dst[ch] = make([]float32, perChan)
		}
		dst[ch] = dst[ch][:perChan]
		for pos := 0; pos < perChan; pos++ {
			dst[ch][pos] = interleaved[pos*int(channels)+ch]
		}
	}
	return dst, nil
}

// InterleaveFloat32 is the inverse of Float32.
func InterleaveFloat32(dst []float32, planes [][]float32) ([]float32, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("no channels")
	}
	perChan := len(planes[0])
	for ch, plane := range planes {
		if len(plane) != perChan {
			return nil, fmt.Errorf("channel %d has %d samples instead of %d", ch, len(plane), perChan)
		}
	}
	total := perChan * len(planes)
	if cap(dst) < total {
		dst = make([]float32, total)
	}
	dst = dst[:total]
	for ch, plane := range planes {
		for pos, v := range plane {
			dst[pos*len(planes)+ch] = v
		}
	}
	return dst, nil
}
