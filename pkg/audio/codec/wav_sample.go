package codec

import (
	"fmt"
	"strings"
)

// WAVSample is the sample layout of a WAV output.
type WAVSample int

const (
	WAVSampleUndefined = WAVSample(iota)
	WAVSampleS16
	WAVSampleS24
	WAVSampleS32
	WAVSampleFloat32
	EndOfWAVSample
)

const DefaultWAVSample = WAVSampleS16

func (s WAVSample) String() string {
	switch s {
	case WAVSampleUndefined:
		return "<undefined>"
	case WAVSampleS16:
		return "16"
	case WAVSampleS24:
		return "24"
	case WAVSampleS32:
		return "32"
	case WAVSampleFloat32:
		return "32f"
	default:
		return fmt.Sprintf("<unknown_%d>", int(s))
	}
}

// ParseWAVSample accepts "16", "24", "32" and "32f" (also "f32" and "float").
func ParseWAVSample(str string) (WAVSample, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "f32", "float", "float32":
		return WAVSampleFloat32, nil
	}
	for s := WAVSampleS16; s < EndOfWAVSample; s++ {
		if s.String() == str {
			return s, nil
		}
	}
	return WAVSampleUndefined, fmt.Errorf("unknown WAV sample format %q, expected 16, 24, 32 or 32f", str)
}

func (s *WAVSample) Set(str string) error {
	v, err := ParseWAVSample(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (*WAVSample) Type() string {
	return "wav-sample"
}

func (s WAVSample) BitDepth() int {
	switch s {
	case WAVSampleS16:
		return 16
	case WAVSampleS24:
		return 24
	case WAVSampleS32, WAVSampleFloat32:
		return 32
	default:
		return 0
	}
}

func (s WAVSample) IsFloat() bool {
	return s == WAVSampleFloat32
}
