package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// goDSPBackend allocates on every call: go-dsp has no plan API.
type goDSPBackend struct {
	n    int
	full []complex128
}

func newGoDSPBackend(n int) (Backend, error) {
	return &goDSPBackend{
		n:    n,
		full: make([]complex128, n),
	}, nil
}

func (b *goDSPBackend) Len() int {
	return b.n
}

func (b *goDSPBackend) Forward(dst []complex128, seq []float64) {
	out := fft.FFTReal(seq)
	copy(dst, out[:b.n/2+1])
}

func (b *goDSPBackend) Inverse(dst []float64, coeff []complex128) {
	fillHermitian(b.full, coeff)
	out := fft.IFFT(b.full)
	// go-dsp normalizes the inverse by 1/N
	scale := float64(b.n)
	for i := range dst[:b.n] {
		dst[i] = real(out[i]) * scale
	}
}

// fillHermitian expands N/2+1 bins of a real signal's spectrum into all N bins.
func fillHermitian(full []complex128, half []complex128) {
	n := len(full)
	copy(full, half[:n/2+1])
	for k := n/2 + 1; k < n; k++ {
		c := half[n-k]
		full[k] = complex(real(c), -imag(c))
	}
}
