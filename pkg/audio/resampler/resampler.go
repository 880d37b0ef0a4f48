// Package resampler converts PCM streams between sample rates, channel
// layouts and sample formats. It is used to bring arbitrary sources to
// the 16 kHz mono float layout the denoiser works with, and back.
package resampler

import (
	"fmt"
	"io"
	"sync"

	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

// fixed-point step of the position accumulators
const distanceStep = 10000

type Format struct {
	Channels   types.Channel
	SampleRate types.SampleRate
	PCMFormat  types.PCMFormat
}

func (f Format) frameSize() uint {
	return uint(f.Channels) * f.PCMFormat.Size()
}

func (f Format) validate() error {
	if f.Channels == 0 {
		return fmt.Errorf("zero channels")
	}
	if f.SampleRate == 0 {
		return fmt.Errorf("zero sample rate")
	}
	if f.PCMFormat.Size() == 0 {
		return fmt.Errorf("unsupported PCM format %v", f.PCMFormat)
	}
	return nil
}

// Resampler is an io.Reader producing outFormat from a reader of inFormat.
// Down-mixing averages the channels, up-mixing duplicates a mono channel.
// Rate conversion picks the nearest preceding input frame.
type Resampler struct {
	inReader    io.Reader
	inFormat    Format
	outFormat   Format
	inDistance  uint64
	outDistance uint64
	stepOut     uint64
	locker      sync.Mutex
	buffer      []byte
	frame       []float64
}

var _ io.Reader = (*Resampler)(nil)

func NewResampler(
	inFormat Format,
	inReader io.Reader,
	outFormat Format,
) (*Resampler, error) {
	if err := inFormat.validate(); err != nil {
		return nil, fmt.Errorf("invalid input format %#+v: %w", inFormat, err)
	}
	if err := outFormat.validate(); err != nil {
		return nil, fmt.Errorf("invalid output format %#+v: %w", outFormat, err)
	}
	if inFormat.Channels != outFormat.Channels && inFormat.Channels != 1 && outFormat.Channels != 1 {
		return nil, fmt.Errorf("do not know how to convert %d channels to %d", inFormat.Channels, outFormat.Channels)
	}
	return &Resampler{
		inReader:  inReader,
		inFormat:  inFormat,
		outFormat: outFormat,
		stepOut:   uint64(distanceStep) * uint64(inFormat.SampleRate) / uint64(outFormat.SampleRate),
		frame:     make([]float64, outFormat.Channels),
	}, nil
}

// mix decodes one input frame into r.frame in the output channel layout.
func (r *Resampler) mix(in []byte) {
	inChans := int(r.inFormat.Channels)
	outChans := int(r.outFormat.Channels)
	sampleSize := int(r.inFormat.PCMFormat.Size())
	switch {
	case inChans == outChans:
		for ch := 0; ch < inChans; ch++ {
			r.frame[ch] = pcm.Sample(r.inFormat.PCMFormat, in[ch*sampleSize:])
		}
	case outChans == 1:
		var sum float64
		for ch := 0; ch < inChans; ch++ {
			sum += pcm.Sample(r.inFormat.PCMFormat, in[ch*sampleSize:])
		}
		r.frame[0] = sum / float64(inChans)
	default:
		v := pcm.Sample(r.inFormat.PCMFormat, in)
		for ch := range r.frame {
			r.frame[ch] = v
		}
	}
}

func (r *Resampler) Read(p []byte) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	outFrameSize := uint64(r.outFormat.frameSize())
	inFrameSize := uint64(r.inFormat.frameSize())
	outSampleSize := int(r.outFormat.PCMFormat.Size())

	maxOutFrames := uint64(len(p)) / outFrameSize
	if maxOutFrames == 0 {
		return 0, nil
	}

	framesToRead := maxOutFrames * uint64(r.inFormat.SampleRate) / uint64(r.outFormat.SampleRate)
	if framesToRead == 0 {
		framesToRead = 1
	}
	bytesToRead := int(framesToRead * inFrameSize)
	if cap(r.buffer) < bytesToRead {
		r.buffer = make([]byte, bytesToRead)
	}
	n, err := io.ReadFull(r.inReader, r.buffer[:bytesToRead])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if n%int(inFrameSize) != 0 {
		return 0, fmt.Errorf("read a number of bytes (%d) that is not a multiple of %d", n, inFrameSize)
	}
	in := r.buffer[:n]

	var written uint64
	for len(in) > 0 && written < maxOutFrames {
		if r.inDistance < r.outDistance {
			in = in[inFrameSize:]
			r.inDistance += distanceStep
			continue
		}
		r.mix(in)
		for written < maxOutFrames && r.outDistance <= r.inDistance {
			out := p[written*outFrameSize:]
			for ch, v := range r.frame {
				pcm.PutSample(r.outFormat.PCMFormat, out[ch*outSampleSize:], v)
			}
			written++
			r.outDistance += r.stepOut
		}
		in = in[inFrameSize:]
		r.inDistance += distanceStep
	}

	if written > 0 && err == io.EOF {
		err = nil
	}
	return int(written * outFrameSize), err
}

// Float32 resamples a mono signal with linear interpolation. It is meant
// for whole decoded files rather than for live streams.
func Float32(in []float32, inRate, outRate types.SampleRate) []float32 {
	if inRate == outRate || len(in) == 0 {
		return append([]float32(nil), in...)
	}
	outLen := int(uint64(len(in)) * uint64(outRate) / uint64(inRate))
	out := make([]float32, outLen)
	ratio := float64(inRate) / float64(outRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx+1 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
