package remote

import (
	"encoding/json"
	"fmt"

	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
	"github.com/xaionaro-go/dtln/pkg/estimator"
)

// The protocol over a websocket connection:
//
//   - right after the upgrade the server sends Hello as a text message;
//   - the client sends one binary message per Estimate call: the input
//     followed by the state, both as little-endian float32;
//   - the server replies with a binary message holding the output
//     followed by the next state, or with a text message holding
//     ErrorMessage.

const sampleFormat = types.PCMFormatFloat32LE

const PathPrefix = "/v1/estimator/"

type Hello struct {
	Stage      string `json:"stage"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	StateSize  int    `json:"state_size"`
}

func NewHello(stage estimator.Stage, e estimator.Estimator) Hello {
	return Hello{
		Stage:      stage.String(),
		InputSize:  e.InputSize(),
		OutputSize: e.OutputSize(),
		StateSize:  e.StateSize(),
	}
}

type ErrorMessage struct {
	Error string `json:"error"`
}

func encodeFrame(dst []byte, parts ...[]float32) []byte {
	dst = dst[:0]
	for _, part := range parts {
		var err error
		dst, err = pcm.EncodeFloat32(sampleFormat, dst, part)
		if err != nil {
			panic(err)
		}
	}
	return dst
}

// decodeFrame fills parts, which must add up to exactly the frame length.
func decodeFrame(data []byte, parts ...[]float32) error {
	sampleSize := int(sampleFormat.Size())
	total := 0
	for _, part := range parts {
		total += len(part)
	}
	if len(data) != total*sampleSize {
		return fmt.Errorf("received a frame of %d bytes, expected %d", len(data), total*sampleSize)
	}
	for _, part := range parts {
		for i := range part {
			part[i] = float32(pcm.Sample(sampleFormat, data))
			data = data[sampleSize:]
		}
	}
	return nil
}

func encodeError(err error) []byte {
	b, _ := json.Marshal(ErrorMessage{Error: err.Error()})
	return b
}
