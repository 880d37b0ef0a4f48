package codec

import (
	"fmt"
	"io"

	"github.com/orcaman/writerseeker"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
)

// EncodeBytes is Encode into memory; the WAV encoder has to seek back
// to patch the chunk sizes, hence the WriterSeeker.
func EncodeBytes(
	format Format,
	samples []float32,
	rate types.SampleRate,
	sample WAVSample,
) ([]byte, error) {
	var buf writerseeker.WriterSeeker
	if err := Encode(&buf, format, samples, rate, sample); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(buf.BytesReader())
	if err != nil {
		return nil, fmt.Errorf("unable to read the encoded data: %w", err)
	}
	return data, nil
}
