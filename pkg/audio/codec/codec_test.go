package codec

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

func sine(n int, freq, rate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatWAV, FormatFromPath("/tmp/in.WAV"))
	assert.Equal(t, FormatOgg, FormatFromPath("song.ogg"))
	assert.Equal(t, FormatRawS16LE, FormatFromPath("dump.raw"))
	assert.Equal(t, FormatRawFloat32LE, FormatFromPath("dump.f32"))
	assert.Equal(t, FormatUndefined, FormatFromPath("notes.txt"))

	for f := FormatUndefined; f < EndOfFormat; f++ {
		assert.Equal(t, f, FormatFromString(f.String()))
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := sine(1600, 440, 16000)
	for _, sample := range []WAVSample{WAVSampleS16, WAVSampleS24, WAVSampleS32, WAVSampleFloat32} {
		bitDepth := sample.BitDepth()
		path := filepath.Join(t.TempDir(), "out.wav")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, Encode(f, FormatWAV, samples, 16000, sample))
		require.NoError(t, f.Close())

		f, err = os.Open(path)
		require.NoError(t, err)
		a, err := Decode(f, FormatWAV, RawConfig{})
		require.NoError(t, f.Close())
		require.NoError(t, err)

		require.Equal(t, types.SampleRate(16000), a.SampleRate)
		require.Equal(t, types.Channel(1), a.SourceChannels)
		require.Len(t, a.Samples, len(samples))
		tolerance := math.Max(2.0/float64(int64(1)<<(bitDepth-1)), 1e-6)
		for i := range samples {
			if math.Abs(float64(a.Samples[i]-samples[i])) > tolerance {
				t.Fatalf("%s, sample %d: %v != %v", sample, i, a.Samples[i], samples[i])
			}
		}
	}
}

func TestWAVClipping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, Encode(f, FormatWAV, []float32{2, -2, 0}, 16000, WAVSampleS16))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	a, err := Decode(f, FormatWAV, RawConfig{})
	require.NoError(t, err)
	require.Len(t, a.Samples, 3)
	assert.InDelta(t, 1, a.Samples[0], 1e-3)
	assert.InDelta(t, -1, a.Samples[1], 1e-3)
	assert.Zero(t, a.Samples[2])
}

func TestEncodeWAVBadBitDepth(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.wav"))
	require.NoError(t, err)
	defer f.Close()
	require.Error(t, Encode(f, FormatWAV, []float32{0}, 16000, WAVSample(99)))
}

func TestWAVFloatKeepsOutOfRangeSamples(t *testing.T) {
	samples := []float32{2.5, -1.75, 0, 0.25, 1e-3}
	data, err := EncodeBytes(FormatWAV, samples, 16000, WAVSampleFloat32)
	require.NoError(t, err)

	a, err := Decode(bytes.NewReader(data), FormatWAV, RawConfig{})
	require.NoError(t, err)
	require.Equal(t, types.SampleRate(16000), a.SampleRate)
	require.Equal(t, samples, a.Samples)
}

func TestParseWAVSample(t *testing.T) {
	for s := WAVSampleS16; s < EndOfWAVSample; s++ {
		parsed, err := ParseWAVSample(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	parsed, err := ParseWAVSample("float")
	require.NoError(t, err)
	assert.Equal(t, WAVSampleFloat32, parsed)
	_, err = ParseWAVSample("12")
	require.Error(t, err)

	var s WAVSample
	require.NoError(t, s.Set("24"))
	assert.Equal(t, WAVSampleS24, s)
	assert.Equal(t, 24, s.BitDepth())
	require.Error(t, s.Set("8"))
}

func TestRawRoundTrip(t *testing.T) {
	samples := sine(256, 1000, 16000)
	for _, format := range []Format{FormatRawS16LE, FormatRawFloat32LE} {
		data, err := EncodeBytes(format, samples, 16000, WAVSampleUndefined)
		require.NoError(t, err)

		a, err := Decode(bytes.NewReader(data), format, RawConfig{SampleRate: 16000})
		require.NoError(t, err)
		require.Len(t, a.Samples, len(samples))
		for i := range samples {
			require.InDelta(t, samples[i], a.Samples[i], 1e-4, spew.Sdump(format, i))
		}
	}
}

func TestRawStereoDownmix(t *testing.T) {
	data, err := EncodeBytes(FormatRawFloat32LE, []float32{0.2, 0.4, -1, 1}, 8000, WAVSampleUndefined)
	require.NoError(t, err)

	a, err := Decode(bytes.NewReader(data), FormatRawFloat32LE, RawConfig{SampleRate: 8000, Channels: 2})
	require.NoError(t, err)
	require.Equal(t, types.Channel(2), a.SourceChannels)
	require.Len(t, a.Samples, 2)
	assert.InDelta(t, 0.3, a.Samples[0], 1e-6)
	assert.InDelta(t, 0, a.Samples[1], 1e-6)
}

func TestRawErrors(t *testing.T) {
	_, err := Decode(bytes.NewReader(make([]byte, 4)), FormatRawS16LE, RawConfig{})
	require.Error(t, err)

	_, err = Decode(bytes.NewReader(make([]byte, 3)), FormatRawS16LE, RawConfig{SampleRate: 16000})
	require.Error(t, err)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not a container")), FormatWAV, RawConfig{})
	require.Error(t, err)

	_, err = Decode(bytes.NewReader([]byte("definitely not a container")), FormatOgg, RawConfig{})
	require.Error(t, err)

	_, err = Decode(bytes.NewReader(nil), FormatUndefined, RawConfig{})
	require.Error(t, err)
}

func TestResample(t *testing.T) {
	a := &Audio{Samples: sine(4800, 300, 48000), SampleRate: 48000, SourceChannels: 1}
	assert.Same(t, a, a.Resample(48000))

	b := a.Resample(16000)
	assert.Equal(t, types.SampleRate(16000), b.SampleRate)
	assert.InDelta(t, 1600, len(b.Samples), 1)
}

func TestEncodeBytesWAV(t *testing.T) {
	samples := sine(512, 440, 16000)
	data, err := EncodeBytes(FormatWAV, samples, 16000, WAVSampleS16)
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[:4]))

	a, err := Decode(bytes.NewReader(data), FormatWAV, RawConfig{})
	require.NoError(t, err)
	require.Len(t, a.Samples, len(samples))
}
