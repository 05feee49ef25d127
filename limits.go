package rnghealth

import (
	"errors"
	"fmt"

	"github.com/hwrng-tools/rnghealth/fix16"
)

// ErrBadLimits reports an inconsistent Limits configuration.
var ErrBadLimits = errors.New("invalid test limits")

// Limits holds every threshold of the test battery. Mean values are in
// ADC output codes, variances in codes squared, frequency values as
// fractions of the sampling rate in [0, 0.5]. The zero value is not
// usable; start from DefaultLimits.
type Limits struct {
	// MinMean and MaxMean bound the acceptable batch mean.
	MinMean float64
	MaxMean float64

	// MinVariance and MaxVariance bound the acceptable batch variance.
	MinVariance float64
	MaxVariance float64

	// MaxSkewness bounds the magnitude of the standardized skewness.
	MaxSkewness float64

	// MinKurtosis and MaxKurtosis bound the excess kurtosis. The window
	// is asymmetric: the sampling distribution of kurtosis is itself
	// skewed even at 4096 samples.
	MinKurtosis float64
	MaxKurtosis float64

	// BandwidthThreshold is the PSD level, relative to the peak bin,
	// above which a bin counts as inside the band. Conventionally 0.5
	// (3 dB), lowered here because single PSD bins fluctuate by about
	// 1.7 dB standard deviation at this batch size.
	BandwidthThreshold float64

	// ThresholdRepetitions is the number of consecutive below-threshold
	// bins required before a bin counts as a band edge.
	ThresholdRepetitions int

	// MinPeak and MaxPeak bound the spectral peak location. They sit
	// respectively below the high-pass and above the low-pass cutoff of
	// the noise source's analog filter.
	MinPeak float64
	MaxPeak float64

	// MinBandwidth is the smallest acceptable band extent. There is no
	// maximum: an excessive bandwidth is already caught by the variance
	// and peak tests.
	MinBandwidth float64
}

// DefaultLimits returns the windows calibrated for the reference
// hardware: nominal mean 311.47 codes and variance 1201.7 codes squared,
// both measured, widened by the worst-case component tolerance analysis
// (1% resistors over temperature, op-amp input offset through the gain
// stage, ADC absolute and gain error) and 5 sigma of sampling
// fluctuation at 4096 samples.
func DefaultLimits() Limits {
	const (
		centralMean     = 311.47
		centralVariance = 1201.7
	)

	return Limits{
		MinMean: 0.968*centralMean - 65.0 - 4.0,
		MaxMean: 1.032*centralMean + 65.0 + 4.0,

		MinVariance: 0.846 * 0.817 * 0.805 * 0.988 * centralVariance,
		MaxVariance: 1.154 * 1.224 * 1.195 * 1.012 * centralVariance,

		MaxSkewness: 0.237,

		MinKurtosis: -0.48,
		MaxKurtosis: 0.65,

		BandwidthThreshold:   0.0329,
		ThresholdRepetitions: 5,

		MinPeak: 0.0227,
		MaxPeak: 0.408,

		MinBandwidth: 0.0726,
	}
}

func (l Limits) validate() error {
	switch {
	case l.MinMean >= l.MaxMean:
		return fmt.Errorf("%w: mean window [%g, %g]", ErrBadLimits, l.MinMean, l.MaxMean)
	case l.MinVariance <= 0 || l.MinVariance >= l.MaxVariance:
		return fmt.Errorf("%w: variance window [%g, %g]", ErrBadLimits, l.MinVariance, l.MaxVariance)
	case l.MaxSkewness <= 0:
		return fmt.Errorf("%w: max skewness %g", ErrBadLimits, l.MaxSkewness)
	case l.MinKurtosis >= l.MaxKurtosis:
		return fmt.Errorf("%w: kurtosis window [%g, %g]", ErrBadLimits, l.MinKurtosis, l.MaxKurtosis)
	case l.BandwidthThreshold <= 0 || l.BandwidthThreshold >= 1:
		return fmt.Errorf("%w: bandwidth threshold %g", ErrBadLimits, l.BandwidthThreshold)
	case l.ThresholdRepetitions < 1 || l.ThresholdRepetitions > SpectrumBins:
		return fmt.Errorf("%w: threshold repetitions %d", ErrBadLimits, l.ThresholdRepetitions)
	case l.MinPeak < 0 || l.MinPeak >= l.MaxPeak || l.MaxPeak > 0.5:
		return fmt.Errorf("%w: peak window [%g, %g]", ErrBadLimits, l.MinPeak, l.MaxPeak)
	case l.MinBandwidth <= 0 || l.MinBandwidth > 0.5:
		return fmt.Errorf("%w: min bandwidth %g", ErrBadLimits, l.MinBandwidth)
	}

	return nil
}

// compiledLimits is the fixed-point form the hot path compares against.
// Mean and variance windows are converted once into scaled sample units
// so every comparison stays inside the Q16.16 range.
type compiledLimits struct {
	minMean fix16.T
	maxMean fix16.T

	minVariance fix16.T
	maxVariance fix16.T

	maxSkewness fix16.T

	minKurtosis fix16.T
	maxKurtosis fix16.T

	threshold   fix16.T
	repetitions int

	minPeak fix16.T
	maxPeak fix16.T

	minBandwidth fix16.T
}

func compileLimits(l Limits) compiledLimits {
	return compiledLimits{
		minMean: fix16.FromFloat(l.MinMean / SampleScale),
		maxMean: fix16.FromFloat(l.MaxMean / SampleScale),

		minVariance: fix16.FromFloat(l.MinVariance / (SampleScale * SampleScale)),
		maxVariance: fix16.FromFloat(l.MaxVariance / (SampleScale * SampleScale)),

		maxSkewness: fix16.FromFloat(l.MaxSkewness),

		minKurtosis: fix16.FromFloat(l.MinKurtosis),
		maxKurtosis: fix16.FromFloat(l.MaxKurtosis),

		threshold:   fix16.FromFloat(l.BandwidthThreshold),
		repetitions: l.ThresholdRepetitions,

		minPeak: fix16.FromFloat(l.MinPeak),
		maxPeak: fix16.FromFloat(l.MaxPeak),

		minBandwidth: fix16.FromFloat(l.MinBandwidth),
	}
}
