// Package pcm converts between raw PCM byte layouts and normalized float samples.
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

func clamp(v, min, max float64) float64 {
	switch {
	case v < min:
		return min
	case v > max:
		return max
	}
	return v
}

func toInt(v float64, scale float64) int64 {
	return int64(math.Round(clamp(v*scale, -scale, scale-1)))
}

// Sample decodes one sample at the start of p into the [-1, 1) range.
func Sample(f types.PCMFormat, p []byte) float64 {
	switch f {
	case types.PCMFormatU8:
		return (float64(p[0]) - 128) / 128
	case types.PCMFormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(p))) / 32768
	case types.PCMFormatS16BE:
		return float64(int16(binary.BigEndian.Uint16(p))) / 32768
	case types.PCMFormatS24LE:
		return float64(signExtend24(uint32(p[0])|uint32(p[1])<<8|uint32(p[2])<<16)) / 8388608
	case types.PCMFormatS24BE:
		return float64(signExtend24(uint32(p[2])|uint32(p[1])<<8|uint32(p[0])<<16)) / 8388608
	case types.PCMFormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648
	case types.PCMFormatS32BE:
		return float64(int32(binary.BigEndian.Uint32(p))) / 2147483648
	case types.PCMFormatS64LE:
		return float64(int64(binary.LittleEndian.Uint64(p))) / 9223372036854775808
	case types.PCMFormatS64BE:
		return float64(int64(binary.BigEndian.Uint64(p))) / 9223372036854775808
	case types.PCMFormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case types.PCMFormatFloat32BE:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(p)))
	case types.PCMFormatFloat64LE:
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	case types.PCMFormatFloat64BE:
		return math.Float64frombits(binary.BigEndian.Uint64(p))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func signExtend24(v uint32) int32 {
	val := int32(v)
	if val&0x800000 != 0 {
		val |= -16777216
	}
	return val
}

// PutSample encodes v at the start of p. Integer formats saturate
// instead of wrapping around.
func PutSample(f types.PCMFormat, p []byte, v float64) {
	switch f {
	case types.PCMFormatU8:
		p[0] = byte(toInt(v, 128) + 128)
	case types.PCMFormatS16LE:
		binary.LittleEndian.PutUint16(p, uint16(int16(toInt(v, 32768))))
	case types.PCMFormatS16BE:
		binary.BigEndian.PutUint16(p, uint16(int16(toInt(v, 32768))))
	case types.PCMFormatS24LE:
		val := toInt(v, 8388608)
		p[0] = byte(val)
		p[1] = byte(val >> 8)
		p[2] = byte(val >> 16)
	case types.PCMFormatS24BE:
		val := toInt(v, 8388608)
		p[0] = byte(val >> 16)
		p[1] = byte(val >> 8)
		p[2] = byte(val)
	case types.PCMFormatS32LE:
		binary.LittleEndian.PutUint32(p, uint32(int32(toInt(v, 2147483648))))
	case types.PCMFormatS32BE:
		binary.BigEndian.PutUint32(p, uint32(int32(toInt(v, 2147483648))))
	case types.PCMFormatS64LE:
		binary.LittleEndian.PutUint64(p, uint64(int64(clamp(v, -1, 1-1.0/(1<<53))*9223372036854775808)))
	case types.PCMFormatS64BE:
		binary.BigEndian.PutUint64(p, uint64(int64(clamp(v, -1, 1-1.0/(1<<53))*9223372036854775808)))
	case types.PCMFormatFloat32LE:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
	case types.PCMFormatFloat32BE:
		binary.BigEndian.PutUint32(p, math.Float32bits(float32(v)))
	case types.PCMFormatFloat64LE:
		binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	case types.PCMFormatFloat64BE:
		binary.BigEndian.PutUint64(p, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

// DecodeFloat32 decodes a whole buffer of single-channel (or interleaved)
// samples. The length of data must be a multiple of the sample size.
func DecodeFloat32(f types.PCMFormat, dst []float32, data []byte) ([]float32, error) {
	size := int(f.Size())
	if size == 0 {
		return dst, fmt.Errorf("unsupported PCM format: %v", f)
	}
	if len(data)%size != 0 {
		return dst, fmt.Errorf("the length %d is not a multiple of the sample size %d", len(data), size)
	}
	for len(data) > 0 {
		dst = append(dst, float32(Sample(f, data)))
		data = data[size:]
	}
	return dst, nil
}

// EncodeFloat32 is the inverse of DecodeFloat32.
func EncodeFloat32(f types.PCMFormat, dst []byte, samples []float32) ([]byte, error) {
	size := int(f.Size())
	if size == 0 {
		return dst, fmt.Errorf("unsupported PCM format: %v", f)
	}
	var buf [8]byte
	for _, s := range samples {
		PutSample(f, buf[:size], float64(s))
		dst = append(dst, buf[:size]...)
	}
	return dst, nil
}
