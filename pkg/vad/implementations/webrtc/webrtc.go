// Package webrtc is a VAD on top of the WebRTC voice activity detector.
package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/josharian/fvad"
	"github.com/xaionaro-go/dtln/pkg/audio"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/vad"
)

type Mode int

const (
	ModeQuality = Mode(iota)
	ModeLowBitrate
	ModeAggressive
	ModeVeryAggressive
)

const (
	pcmFormat = audio.PCMFormatS16LE

	DefaultFrameDuration = 30 * time.Millisecond
)

type VAD struct {
	locker        sync.Mutex
	detector      *fvad.Detector
	sampleRate    audio.SampleRate
	frameDuration time.Duration
	frame         []int16
}

var (
	_ vad.VAD      = (*VAD)(nil)
	_ vad.Analyzer = (*VAD)(nil)
)

// New creates a detector of mono S16LE audio. The sample rate must be
// 8, 16, 32 or 48 kHz and the frame duration 10, 20 or 30 ms.
func New(
	sampleRate audio.SampleRate,
	mode Mode,
	frameDuration time.Duration,
) (*VAD, error) {
	switch frameDuration {
	case 0:
		frameDuration = DefaultFrameDuration
	case 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond:
	default:
		return nil, fmt.Errorf("unsupported frame duration: %v", frameDuration)
	}

	detector := fvad.New()
	if detector == nil {
		return nil, fmt.Errorf("unable to initialize the detector")
	}
	if err := detector.SetSampleRate(int(sampleRate)); err != nil {
		return nil, fmt.Errorf("unable to set the sample rate %d: %w", sampleRate, err)
	}
	if err := detector.SetMode(int(mode)); err != nil {
		return nil, fmt.Errorf("unable to set the mode %d: %w", mode, err)
	}
	samples := uint64(sampleRate) * uint64(frameDuration) / uint64(time.Second)
	return &VAD{
		detector:      detector,
		sampleRate:    sampleRate,
		frameDuration: frameDuration,
		frame:         make([]int16, samples),
	}, nil
}

func (v *VAD) Close() error {
	return nil
}

func (v *VAD) Encoding(context.Context) (audio.Encoding, error) {
	return audio.EncodingPCM{
		PCMFormat:  pcmFormat,
		SampleRate: v.sampleRate,
	}, nil
}

func (v *VAD) Channels(context.Context) (audio.Channel, error) {
	return 1, nil
}

func (v *VAD) ChunkSize() uint64 {
	return uint64(len(v.frame)) * uint64(pcmFormat.Size())
}

func (v *VAD) ChunkDuration() time.Duration {
	return v.frameDuration
}

// VoiceConfidence returns 1 for a voiced frame and 0 otherwise.
func (v *VAD) VoiceConfidence(_ context.Context, chunk []byte) (float64, error) {
	if uint64(len(chunk)) != v.ChunkSize() {
		return 0, fmt.Errorf("expected a chunk of %d bytes, received %d", v.ChunkSize(), len(chunk))
	}
	v.locker.Lock()
	defer v.locker.Unlock()
	for i := range v.frame {
		v.frame[i] = int16(pcm.Sample(pcmFormat, chunk[i*2:]) * 32768)
	}
	active, err := v.detector.Process(v.frame)
	if err != nil {
		return 0, fmt.Errorf("unable to process the frame: %w", err)
	}
	if active {
		return 1, nil
	}
	return 0, nil
}

func (v *VAD) FindNextVoice(
	ctx context.Context,
	samples []byte,
	confidenceThreshold float64,
	minDuration time.Duration,
) (float64, time.Duration, error) {
	return vad.FindNextVoice(ctx, v, samples, confidenceThreshold, minDuration)
}
