package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/dtln/pkg/audio/codec"
	"github.com/xaionaro-go/dtln/pkg/dtln"
)

func tone(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*float64(i)/64))
	}
	return out
}

func runCommand(t *testing.T, args ...string) error {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func writeToneWAV(t *testing.T, dir string, n int) ([]float32, string) {
	input := tone(n)
	data, err := codec.EncodeBytes(codec.FormatWAV, input, dtln.SampleRate, codec.WAVSampleS32)
	require.NoError(t, err)
	path := filepath.Join(dir, "input.wav")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return input, path
}

func readWAV(t *testing.T, path string) []float32 {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := codec.Decode(f, codec.FormatWAV, codec.RawConfig{})
	require.NoError(t, err)
	return decoded.Samples
}

func TestFormatFlag(t *testing.T) {
	var f formatFlag
	assert.Equal(t, "auto", f.String())

	format, err := f.resolve("a.ogg")
	require.NoError(t, err)
	assert.Equal(t, codec.FormatOgg, format)
	_, err = f.resolve("a.mp3")
	require.Error(t, err)

	require.NoError(t, f.Set("f32"))
	assert.Equal(t, "f32", f.String())
	format, err = f.resolve("a.wav")
	require.NoError(t, err)
	assert.Equal(t, codec.FormatRawFloat32LE, format)

	require.Error(t, f.Set("mp3"))
	require.NoError(t, f.Set("auto"))
	assert.Equal(t, codec.FormatUndefined, codec.Format(f))
}

func TestDenoiseUnityPassthrough(t *testing.T) {
	for _, extra := range [][]string{
		nil,
		{"--deferred", "--deferred-timeout", "10s", "--chunk-samples", "256"},
	} {
		t.Run(spew.Sprint(extra), func(t *testing.T) {
			dir := t.TempDir()
			input, inputPath := writeToneWAV(t, dir, dtln.SampleRate/2+33)
			outputPath := filepath.Join(dir, "output.wav")

			args := append([]string{
				"denoise", inputPath, outputPath,
				"--estimator", "unity",
				"--log-level", "error",
				"--compensate-latency",
				"--bit-depth", "32",
			}, extra...)
			require.NoError(t, runCommand(t, args...))

			output := readWAV(t, outputPath)
			require.Len(t, output, len(input))
			for i := dtln.BlockLen; i < len(input)-dtln.BlockLen; i++ {
				require.InDelta(t, input[i], output[i], 1e-3, "sample %d", i)
			}
		})
	}
}

func TestDenoiseErrors(t *testing.T) {
	dir := t.TempDir()
	_, inputPath := writeToneWAV(t, dir, dtln.BlockLen)

	require.Error(t, runCommand(t, "denoise", inputPath))
	require.Error(t, runCommand(t, "denoise", inputPath, filepath.Join(dir, "out.mp3"), "--log-level", "error"))
	require.Error(t, runCommand(t, "denoise", filepath.Join(dir, "missing.wav"), filepath.Join(dir, "out.wav"), "--log-level", "error"))
	require.Error(t, runCommand(t, "denoise", inputPath, filepath.Join(dir, "out.wav"), "--estimator", "magic", "--log-level", "error"))
	require.Error(t, runCommand(t, "denoise", inputPath, filepath.Join(dir, "out.wav"), "--deferred", "--chunk-samples", "100", "--log-level", "error"))
	require.Error(t, runCommand(t, "denoise", inputPath, filepath.Join(dir, "out.wav"), "--vad", "magic", "--log-level", "error"))
	require.Error(t, runCommand(t, "denoise", inputPath, filepath.Join(dir, "out.wav"), "--bit-depth", "12", "--log-level", "error"))
}

func TestDenoiseVoiceReport(t *testing.T) {
	dir := t.TempDir()
	_, inputPath := writeToneWAV(t, dir, dtln.SampleRate)
	for _, detector := range []string{"webrtc", "dtln"} {
		t.Run(detector, func(t *testing.T) {
			require.NoError(t, runCommand(t,
				"denoise", inputPath, filepath.Join(dir, detector+".f32"),
				"--estimator", "unity",
				"--log-level", "error",
				"--vad", detector,
			))
		})
	}
}
