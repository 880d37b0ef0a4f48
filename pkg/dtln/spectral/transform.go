// Package spectral converts analysis blocks to magnitude/phase spectra and back.
//
// Samples are stored as float32; the transforms themselves run in float64.
package spectral

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Transform is a forward/inverse real transform of a fixed block length
// together with the scratch space it needs. It is not safe for
// concurrent use; each stream owns its own Transform.
type Transform struct {
	backend Backend
	n       int
	seq     []float64
	coeff   []complex128
}

func NewTransform(backend Backend) *Transform {
	n := backend.Len()
	return &Transform{
		backend: backend,
		n:       n,
		seq:     make([]float64, n),
		coeff:   make([]complex128, n/2+1),
	}
}

// BlockLen is the length of a time-domain block.
func (t *Transform) BlockLen() int {
	return t.n
}

// Bins is the number of spectral bins, BlockLen/2+1.
func (t *Transform) Bins() int {
	return t.n/2 + 1
}

// Forward computes the magnitude and phase of every bin of block.
func (t *Transform) Forward(magnitude, phase, block []float32) error {
	if len(block) != t.n {
		return fmt.Errorf("the block length is %d, expected %d", len(block), t.n)
	}
	if len(magnitude) != t.Bins() || len(phase) != t.Bins() {
		return fmt.Errorf("the spectrum lengths are %d/%d, expected %d", len(magnitude), len(phase), t.Bins())
	}

	for i, v := range block {
		t.seq[i] = float64(v)
	}
	t.backend.Forward(t.coeff, t.seq)
	for k, c := range t.coeff {
		magnitude[k] = float32(cmplx.Abs(c))
		phase[k] = float32(cmplx.Phase(c))
	}
	return nil
}

// Inverse rebuilds a time-domain block from magnitude and phase.
// The first and the last bins are taken as purely real; the output is
// divided by the block length.
func (t *Transform) Inverse(block, magnitude, phase []float32) error {
	if len(block) != t.n {
		return fmt.Errorf("the block length is %d, expected %d", len(block), t.n)
	}
	if len(magnitude) != t.Bins() || len(phase) != t.Bins() {
		return fmt.Errorf("the spectrum lengths are %d/%d, expected %d", len(magnitude), len(phase), t.Bins())
	}

	last := t.Bins() - 1
	for k := range t.coeff {
		m := float64(magnitude[k])
		if k == 0 || k == last {
			t.coeff[k] = complex(m, 0)
			continue
		}
		sin, cos := math.Sincos(float64(phase[k]))
		t.coeff[k] = complex(m*cos, m*sin)
	}
	t.backend.Inverse(t.seq, t.coeff)
	scale := 1 / float64(t.n)
	for i, v := range t.seq {
		block[i] = float32(v * scale)
	}
	return nil
}

// Coefficients exposes the complex bins computed by the last Forward
// call or fed into the last Inverse call.
func (t *Transform) Coefficients() []complex128 {
	return t.coeff
}
