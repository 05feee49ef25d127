// Package rnghealth statistically validates batches of raw ADC samples
// from a hardware random number generator. One call to Engine.Run
// consumes one fixed-size batch, derives the first four standardized
// moments from a histogram of the samples and a power spectral density
// estimate from the same batch, and reports which of the calibrated
// health tests passed.
//
// All analysis is carried out in fixed-point arithmetic over bounded
// windows, so a run is time-deterministic and safe on targets without
// an FPU. Statistical failures are reported in the Verdict; only
// invariant violations (bad batch geometry, histogram overflow) surface
// as errors.
package rnghealth

import (
	"fmt"
	"sync"

	"github.com/hwrng-tools/rnghealth/fix16"
)

// Engine runs the health-test battery. It is the only entry point: one
// call to Run consumes one batch and produces one Verdict. An Engine
// carries no state between runs; the mutex only serializes concurrent
// callers sharing one instance.
type Engine struct {
	mu sync.Mutex

	limits   Limits
	compiled compiledLimits

	hist Histogram
}

// New builds an engine, validating the limit configuration and the
// batch framing invariant once so the per-run path stays check-free.
func New(opts ...option) (*Engine, error) {
	o := options{
		limits: DefaultLimits(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if err := o.limits.validate(); err != nil {
		return nil, err
	}

	if SampleCount%(2*FFTSize) != 0 {
		return nil, fmt.Errorf("%w: sample count %d not a multiple of %d", ErrBatchSize, SampleCount, 2*FFTSize)
	}

	return &Engine{
		limits:   o.limits,
		compiled: compileLimits(o.limits),
	}, nil
}

// Limits returns the configuration the engine was built with.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Verdict is the outcome of one test run: a pass/fail flag per sub-test
// plus the measured values for diagnostics. Every sub-test is always
// evaluated, even after another has failed, so simultaneous faults show
// up together.
type Verdict struct {
	// Mean is the measured batch mean in ADC output codes.
	Mean fix16.T

	// Variance is the measured batch variance in codes squared. Values
	// past the fix16 range saturate; the pass/fail comparison is not
	// affected, it runs in scaled units.
	Variance fix16.T

	// Skewness and Kurtosis are the standardized higher moments. Both
	// read zero when the variance was degenerate; check their flags.
	Skewness fix16.T
	Kurtosis fix16.T

	// PeakFrequency, LowerEdge, UpperEdge and Bandwidth describe the
	// power spectrum, as fractions of the sampling rate.
	PeakFrequency fix16.T
	LowerEdge     fix16.T
	UpperEdge     fix16.T
	Bandwidth     fix16.T

	MeanOK     bool
	VarianceOK bool
	SkewnessOK bool
	KurtosisOK bool

	PeakOK bool

	// LowerEdgeOK reports that the lower band edge was located by a
	// genuine debounced crossing rather than clamped to DC; a missing
	// lower edge means the high-pass roll-off was never observed.
	LowerEdgeOK bool

	BandwidthOK bool
}

// OK reports the aggregate verdict: every sub-test passed.
func (v *Verdict) OK() bool {
	return v.MeanOK && v.VarianceOK && v.SkewnessOK && v.KurtosisOK &&
		v.PeakOK && v.LowerEdgeOK && v.BandwidthOK
}

// Failures lists the names of the failed sub-tests.
func (v *Verdict) Failures() []string {
	var failed []string

	for _, s := range []struct {
		name string
		ok   bool
	}{
		{"mean", v.MeanOK},
		{"variance", v.VarianceOK},
		{"skewness", v.SkewnessOK},
		{"kurtosis", v.KurtosisOK},
		{"peak", v.PeakOK},
		{"lower-edge", v.LowerEdgeOK},
		{"bandwidth", v.BandwidthOK},
	} {
		if !s.ok {
			failed = append(failed, s.name)
		}
	}

	return failed
}

// Run executes the full battery on one batch of raw ADC samples. The
// returned error is reserved for invariant violations (wrong batch
// size, out-of-range code, bin overflow); an unhealthy noise source is
// reported through the Verdict, never as an error.
func (e *Engine) Run(batch []uint16) (*Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hist.Reset()

	if err := e.hist.Accumulate(batch); err != nil {
		return nil, err
	}

	m := computeMoments(&e.hist)

	sp := analyzeSpectrum(batch, m.Mean, e.compiled.threshold, e.compiled.repetitions)

	l := &e.compiled

	v := &Verdict{
		Mean:     m.Mean.Mul(fix16.FromInt(SampleScale)),
		Variance: m.Variance.Mul(fix16.FromInt(SampleScale * SampleScale)),
		Skewness: m.Skewness,
		Kurtosis: m.Kurtosis,

		PeakFrequency: sp.peak,
		LowerEdge:     sp.lowerEdge,
		UpperEdge:     sp.upperEdge,
		Bandwidth:     sp.bandwidth,

		MeanOK:     m.Mean >= l.minMean && m.Mean <= l.maxMean,
		VarianceOK: m.Variance >= l.minVariance && m.Variance <= l.maxVariance,

		PeakOK:      sp.peak >= l.minPeak && sp.peak <= l.maxPeak,
		LowerEdgeOK: sp.lowerFound,
		BandwidthOK: sp.bandwidth >= l.minBandwidth,
	}

	if !m.Degenerate {
		v.SkewnessOK = m.Skewness.Abs() <= l.maxSkewness
		v.KurtosisOK = m.Kurtosis >= l.minKurtosis && m.Kurtosis <= l.maxKurtosis
	}

	return v, nil
}
