package codec

import (
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

// Encode writes mono samples. Samples beyond [-1, 1] are clipped for
// integer layouts and kept as is for float ones. sample is only used
// for WAV; WAVSampleUndefined means DefaultWAVSample.
func Encode(
	w io.WriteSeeker,
	format Format,
	samples []float32,
	rate types.SampleRate,
	sample WAVSample,
) error {
	switch format {
	case FormatWAV:
		return encodeWAV(w, samples, rate, sample)
	case FormatRawS16LE, FormatRawFloat32LE:
		data, err := pcm.EncodeFloat32(format.rawPCMFormat(), nil, samples)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func encodeWAV(
	w io.WriteSeeker,
	samples []float32,
	rate types.SampleRate,
	sample WAVSample,
) error {
	if sample == WAVSampleUndefined {
		sample = DefaultWAVSample
	}
	bitDepth := sample.BitDepth()
	if bitDepth == 0 {
		return fmt.Errorf("unsupported WAV sample format: %s", sample)
	}

	if sample.IsFloat() {
		enc := wav.NewEncoder(w, int(rate), bitDepth, 1, wavFormatFloat)
		for _, v := range samples {
			if err := enc.WriteFrame(v); err != nil {
				return fmt.Errorf("unable to write the samples: %w", err)
			}
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("unable to finalize the WAV file: %w", err)
		}
		return nil
	}

	maxValue := float64(int64(1)<<(bitDepth-1)) - 1
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(math.Round(math.Max(-1, math.Min(1, float64(v))) * maxValue))
	}

	enc := wav.NewEncoder(w, int(rate), bitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  int(rate),
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("unable to write the samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("unable to finalize the WAV file: %w", err)
	}
	return nil
}
