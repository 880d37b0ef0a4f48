package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// RawConfig describes headerless input.
type RawConfig struct {
	SampleRate types.SampleRate
	Channels   types.Channel
}

// Decode reads the whole container. raw is only used by the raw formats.
func Decode(r io.ReadSeeker, format Format, raw RawConfig) (*Audio, error) {
	switch format {
	case FormatWAV:
		return decodeWAV(r)
	case FormatOgg:
		return decodeOgg(r)
	case FormatRawS16LE, FormatRawFloat32LE:
		return decodeRaw(r, format.rawPCMFormat(), raw)
	default:
		return nil, fmt.Errorf("unsupported input format: %s", format)
	}
}

func decodeWAV(r io.ReadSeeker) (*Audio, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}
	channels := int(d.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("invalid amount of channels: %d", channels)
	}

	var interleaved []float32
	switch d.WavAudioFormat {
	case wavFormatPCM:
		buf, err := d.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("unable to read the PCM data: %w", err)
		}
		scale := float32(int64(1) << (d.BitDepth - 1))
		if d.BitDepth == 8 {
			// 8-bit WAV is unsigned
			interleaved = make([]float32, len(buf.Data))
			for i, v := range buf.Data {
				interleaved[i] = float32(v-128) / scale
			}
			break
		}
		interleaved = make([]float32, len(buf.Data))
		for i, v := range buf.Data {
			interleaved[i] = float32(v) / scale
		}
	case wavFormatFloat:
		if err := d.FwdToPCM(); err != nil {
			return nil, fmt.Errorf("unable to find the PCM chunk: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(d.PCMChunk, int64(d.PCMChunk.Size)))
		if err != nil {
			return nil, fmt.Errorf("unable to read the PCM data: %w", err)
		}
		f := types.PCMFormatFloat32LE
		if d.BitDepth == 64 {
			f = types.PCMFormatFloat64LE
		}
		data = data[:len(data)-len(data)%int(f.Size())]
		interleaved, err = pcm.DecodeFloat32(f, nil, data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported WAV audio format %d", d.WavAudioFormat)
	}

	return &Audio{
		Samples:        downmix(interleaved, channels),
		SampleRate:     types.SampleRate(d.SampleRate),
		SourceChannels: types.Channel(channels),
	}, nil
}

func decodeOgg(r io.Reader) (*Audio, error) {
	oggReader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a vorbis reader: %w", err)
	}
	channels := oggReader.Channels()

	var interleaved []float32
	buf := make([]float32, 4096*channels)
	for {
		n, err := oggReader.Read(buf)
		interleaved = append(interleaved, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to decode vorbis: %w", err)
		}
	}

	return &Audio{
		Samples:        downmix(interleaved, channels),
		SampleRate:     types.SampleRate(oggReader.SampleRate()),
		SourceChannels: types.Channel(channels),
	}, nil
}

func decodeRaw(r io.Reader, f types.PCMFormat, cfg RawConfig) (*Audio, error) {
	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("the sample rate of raw input is not set")
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read the input: %w", err)
	}
	frameSize := int(f.Size()) * int(cfg.Channels)
	if tail := len(data) % frameSize; tail != 0 {
		return nil, fmt.Errorf("the input length %d is not a multiple of the frame size %d", len(data), frameSize)
	}
	interleaved, err := pcm.DecodeFloat32(f, nil, data)
	if err != nil {
		return nil, err
	}
	return &Audio{
		Samples:        downmix(interleaved, int(cfg.Channels)),
		SampleRate:     cfg.SampleRate,
		SourceChannels: cfg.Channels,
	}, nil
}
