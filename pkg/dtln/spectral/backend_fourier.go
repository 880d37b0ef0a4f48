package spectral

import (
	"github.com/brettbuddin/fourier"
)

type fourierBackend struct {
	n   int
	buf []complex128
}

func newFourierBackend(n int) (Backend, error) {
	return &fourierBackend{
		n:   n,
		buf: make([]complex128, n),
	}, nil
}

func (b *fourierBackend) Len() int {
	return b.n
}

func (b *fourierBackend) Forward(dst []complex128, seq []float64) {
	for i, v := range seq[:b.n] {
		b.buf[i] = complex(v, 0)
	}
	if err := fourier.Forward(b.buf); err != nil {
		panic(err)
	}
	copy(dst, b.buf[:b.n/2+1])
}

// Inverse relies on ifft(x) = conj(fft(conj(x))), which keeps
// the result unnormalized without depending on the library's
// inverse scaling convention.
func (b *fourierBackend) Inverse(dst []float64, coeff []complex128) {
	fillHermitian(b.buf, coeff)
	for i, c := range b.buf {
		b.buf[i] = complex(real(c), -imag(c))
	}
	if err := fourier.Forward(b.buf); err != nil {
		panic(err)
	}
	for i := range dst[:b.n] {
		dst[i] = real(b.buf[i])
	}
}
