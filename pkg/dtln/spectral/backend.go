package spectral

import (
	"fmt"
	"sort"
	"strings"
)

// Backend is an unnormalized real FFT of a fixed power-of-two length N.
//
// Forward writes N/2+1 bins of seq into dst.
// Inverse writes N samples into dst; the result is N times the input
// sequence of a Forward/Inverse round trip.
type Backend interface {
	Len() int
	Forward(dst []complex128, seq []float64)
	Inverse(dst []float64, coeff []complex128)
}

type BackendFactory func(n int) (Backend, error)

const DefaultBackendName = "gonum"

var backends = map[string]BackendFactory{
	"gonum":   newGonumBackend,
	"godsp":   newGoDSPBackend,
	"fourier": newFourierBackend,
}

// BackendNames lists the names accepted by NewBackend.
func BackendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewBackend(name string, n int) (Backend, error) {
	if name == "" {
		name = DefaultBackendName
	}
	factory, ok := backends[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown FFT backend %q, known: %s", name, strings.Join(BackendNames(), ", "))
	}
	if n <= 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("the FFT length must be a positive power of two, got %d", n)
	}
	b, err := factory(n)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the %s FFT backend: %w", name, err)
	}
	return b, nil
}
