// Package codec reads and writes the sample containers the command-line
// tools work with and reduces them to the mono float layout.
package codec

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xaionaro-go/dtln/pkg/audio/resampler"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

type Format int

const (
	FormatUndefined = Format(iota)
	FormatWAV
	FormatOgg
	FormatRawS16LE
	FormatRawFloat32LE
	EndOfFormat
)

func (f Format) String() string {
	switch f {
	case FormatUndefined:
		return "undefined"
	case FormatWAV:
		return "wav"
	case FormatOgg:
		return "ogg"
	case FormatRawS16LE:
		return "s16"
	case FormatRawFloat32LE:
		return "f32"
	default:
		return fmt.Sprintf("unknown_format_%d", int(f))
	}
}

func FormatFromString(s string) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	for f := FormatUndefined; f < EndOfFormat; f++ {
		if f.String() == s {
			return f
		}
	}
	return FormatUndefined
}

// FormatFromPath guesses the container by the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".ogg", ".oga":
		return FormatOgg
	case ".s16", ".pcm", ".raw":
		return FormatRawS16LE
	case ".f32":
		return FormatRawFloat32LE
	default:
		return FormatUndefined
	}
}

func (f Format) rawPCMFormat() types.PCMFormat {
	switch f {
	case FormatRawS16LE:
		return types.PCMFormatS16LE
	case FormatRawFloat32LE:
		return types.PCMFormatFloat32LE
	default:
		return types.PCMFormatUndefined
	}
}

// Audio is a decoded signal, always mono.
type Audio struct {
	Samples    []float32
	SampleRate types.SampleRate

	// SourceChannels is the amount of channels in the container
	// before they were mixed down.
	SourceChannels types.Channel
}

// Resample returns the audio converted to the given sample rate.
func (a *Audio) Resample(rate types.SampleRate) *Audio {
	if a.SampleRate == rate {
		return a
	}
	return &Audio{
		Samples:        resampler.Float32(a.Samples, a.SampleRate, rate),
		SampleRate:     rate,
		SourceChannels: a.SourceChannels,
	}
}

// downmix averages interleaved channels into one.
func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	out := make([]float32, len(interleaved)/channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
