// Package sim generates deterministic synthetic ADC batches that mimic
// the filtered noise source the health tests were calibrated for. It is
// host-side tooling: the tests and any bench harness use it to exercise
// the engine with batches of known mean, variance and spectral shape.
package sim

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/sha3"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	adcMax = 1023

	// toneResolution matches the engine's transform size so the band
	// edges of a generated batch land exactly on spectrum bins.
	toneResolution = 256
)

// Source produces batches of band-limited noise: a sum of random-phase
// tones on transform bin centers across [BandLow, BandHigh], which is
// approximately Gaussian in amplitude, plus an optional white Gaussian
// floor, offset and quantized to 10-bit ADC codes. A seed string fully
// determines the output.
type Source struct {
	mean    float64
	sigma   float64
	bandLow float64
	bandHi  float64
	floor   float64

	rng   *shakeSource
	noise distuv.Normal
}

type option func(*Source)

// WithMean sets the DC level of the generated signal in ADC codes
// (default 311.47, the reference hardware's nominal).
func WithMean(mean float64) option {
	return func(s *Source) {
		s.mean = mean
	}
}

// WithStdDev sets the AC amplitude of the band-limited component, in
// ADC codes (default sqrt(1201.7)).
func WithStdDev(sigma float64) option {
	return func(s *Source) {
		s.sigma = sigma
	}
}

// WithBand sets the occupied band as fractions of the sampling rate
// (default [0.05, 0.30]).
func WithBand(low, high float64) option {
	return func(s *Source) {
		s.bandLow = low
		s.bandHi = high
	}
}

// WithNoiseFloor adds white Gaussian noise of the given standard
// deviation in ADC codes (default 0, no floor).
func WithNoiseFloor(sigma float64) option {
	return func(s *Source) {
		s.floor = sigma
	}
}

// New builds a source seeded by an arbitrary string.
func New(seed string, opts ...option) *Source {
	h := sha3.NewCShake256(nil, []byte("rnghealth-sim"))
	h.Write([]byte(seed))

	rng := &shakeSource{h: h}

	s := &Source{
		mean:    311.47,
		sigma:   math.Sqrt(1201.7),
		bandLow: 0.05,
		bandHi:  0.30,

		rng: rng,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rng,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Batch generates n samples. Each call draws fresh phases, so repeated
// calls on one source yield statistically independent batches while the
// whole sequence stays reproducible from the seed.
func (s *Source) Batch(n int) []uint16 {
	lo := int(math.Ceil(s.bandLow * toneResolution))
	hi := int(math.Floor(s.bandHi * toneResolution))

	if lo < 1 {
		lo = 1
	}

	if hi > toneResolution/2-1 {
		hi = toneResolution/2 - 1
	}

	tones := hi - lo + 1

	// Equal per-tone amplitudes reproduce the target variance:
	// tones * amp^2 / 2 == sigma^2.
	amp := s.sigma * math.Sqrt(2/float64(tones))

	phases := make([]float64, tones)
	for i := range phases {
		phases[i] = 2 * math.Pi * s.uniform()
	}

	out := make([]uint16, n)

	for i := range out {
		v := s.mean

		for j, phi := range phases {
			f := float64(lo+j) / toneResolution

			v += amp * math.Cos(2*math.Pi*f*float64(i)+phi)
		}

		if s.floor > 0 {
			v += s.floor * s.noise.Rand()
		}

		out[i] = quantize(v)
	}

	return out
}

func (s *Source) uniform() float64 {
	return float64(s.rng.Uint64()>>11) / (1 << 53)
}

func quantize(v float64) uint16 {
	r := math.Round(v)

	if r < 0 {
		return 0
	}

	if r > adcMax {
		return adcMax
	}

	return uint16(r)
}

// shakeSource adapts a cSHAKE-256 stream to the rand.Source that
// distuv consumes.
type shakeSource struct {
	h   sha3.ShakeHash
	buf [8]byte
}

// Seed is a no-op: the stream is fully seeded via cSHAKE at
// construction. It exists only to satisfy the Source interface.
func (s *shakeSource) Seed(uint64) {}

func (s *shakeSource) Uint64() uint64 {
	s.h.Read(s.buf[:])

	return binary.LittleEndian.Uint64(s.buf[:])
}
