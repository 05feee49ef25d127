package rnghealth

type options struct {
	limits Limits
}

type option func(*options)

// WithLimits replaces the whole test battery configuration (default
// DefaultLimits). Use this to recalibrate for different hardware
// without touching the algorithms.
func WithLimits(l Limits) option {
	return func(o *options) {
		o.limits = l
	}
}

// WithMeanWindow overrides the acceptable batch mean range, in ADC
// output codes.
func WithMeanWindow(min, max float64) option {
	return func(o *options) {
		o.limits.MinMean = min
		o.limits.MaxMean = max
	}
}

// WithVarianceWindow overrides the acceptable batch variance range, in
// ADC output codes squared.
func WithVarianceWindow(min, max float64) option {
	return func(o *options) {
		o.limits.MinVariance = min
		o.limits.MaxVariance = max
	}
}

// WithPeakWindow overrides the acceptable spectral peak location, as
// fractions of the sampling rate.
func WithPeakWindow(min, max float64) option {
	return func(o *options) {
		o.limits.MinPeak = min
		o.limits.MaxPeak = max
	}
}

// WithBandwidthThreshold overrides the relative PSD level that bounds
// the band (default 0.0329).
func WithBandwidthThreshold(ratio float64) option {
	return func(o *options) {
		o.limits.BandwidthThreshold = ratio
	}
}

// WithDebounce overrides how many consecutive below-threshold bins
// confirm a band edge (default 5).
func WithDebounce(repetitions int) option {
	return func(o *options) {
		o.limits.ThresholdRepetitions = repetitions
	}
}
