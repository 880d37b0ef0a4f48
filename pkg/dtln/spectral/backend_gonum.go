package spectral

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

type gonumBackend struct {
	fft *fourier.FFT
	n   int
}

func newGonumBackend(n int) (Backend, error) {
	return &gonumBackend{
		fft: fourier.NewFFT(n),
		n:   n,
	}, nil
}

func (b *gonumBackend) Len() int {
	return b.n
}

func (b *gonumBackend) Forward(dst []complex128, seq []float64) {
	b.fft.Coefficients(dst, seq)
}

func (b *gonumBackend) Inverse(dst []float64, coeff []complex128) {
	b.fft.Sequence(dst, coeff)
}
