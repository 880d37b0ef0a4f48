package planar

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

func clean(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

var (
	planarBytes      = must(hex.DecodeString(clean("00010203 04050607 08090A0B 0C0D0E0F 10111213 14151617 18191A1B 1C1D1E1F")))
	interleavedBytes = must(hex.DecodeString(clean("00010203 10111213 04050607 14151617 08090A0B 18191A1B 0C0D0E0F 1C1D1E1F")))
)

func TestUnplanarize(t *testing.T) {
	r := make([]byte, len(planarBytes))
	err := Unplanarize(2, 4, r, planarBytes)
	require.NoError(t, err)
	require.Equal(t, interleavedBytes, r, spew.Sdump(planarBytes))
}

func TestPlanarize(t *testing.T) {
	r := make([]byte, len(interleavedBytes))
	err := Planarize(2, 4, r, interleavedBytes)
	require.NoError(t, err)
	require.Equal(t, planarBytes, r, spew.Sdump(interleavedBytes))
}

func TestPlanarizeErrors(t *testing.T) {
	require.Error(t, Planarize(2, 4, make([]byte, 4), make([]byte, 4)))
	require.Error(t, Planarize(2, 4, make([]byte, 12), make([]byte, 12)))
	require.Error(t, Planarize(2, 4, make([]byte, 8), make([]byte, 16)))
	require.Error(t, Planarize(0, 4, make([]byte, 8), make([]byte, 8)))
}

func TestFloat32(t *testing.T) {
	planes, err := Float32(nil, 3, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 4}, {2, 5}, {3, 6}}, planes)

	interleaved, err := InterleaveFloat32(nil, planes)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6}, interleaved)

	_, err = Float32(nil, 4, []float32{1, 2, 3, 4, 5, 6})
	require.Error(t, err)
	_, err = InterleaveFloat32(nil, [][]float32{{1}, {1, 2}})
	require.Error(t, err)
}
