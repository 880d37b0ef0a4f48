package types

import (
	"fmt"
	"time"
)

type Channel uint32

type SampleRate uint32

type Encoding interface {
	fmt.Stringer

	BytesPerSample() uint
	BytesForDuration(time.Duration) uint64
}

type EncodingPCM struct {
	PCMFormat  PCMFormat
	SampleRate SampleRate
}

var _ Encoding = EncodingPCM{}

func (e EncodingPCM) String() string {
	return fmt.Sprintf("PCM:%s:%d", e.PCMFormat, e.SampleRate)
}

func (e EncodingPCM) BytesPerSample() uint {
	return e.PCMFormat.Size()
}

// BytesForDuration returns the amount of bytes a single channel
// needs to carry the given duration of audio.
func (e EncodingPCM) BytesForDuration(d time.Duration) uint64 {
	samples := uint64(d) * uint64(e.SampleRate) / uint64(time.Second)
	return samples * uint64(e.BytesPerSample())
}
