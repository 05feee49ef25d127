package rnghealth

import (
	"math"
	"math/bits"

	"github.com/hwrng-tools/rnghealth/fix16"
)

// varianceEpsilon is the scaled variance (raw Q16.16) below which the
// distribution is treated as degenerate: about 4 ADC codes squared,
// three orders of magnitude under the minimum acceptable variance. Above
// it every denominator in the standardized ratios is nonzero.
const varianceEpsilon = 64

// MomentSet holds the first four standardized moments of one histogram.
// Mean and Variance are in scaled sample units (ADC code / SampleScale
// and its square); Skewness and Kurtosis are dimensionless, Kurtosis is
// excess (normal distribution = 0).
type MomentSet struct {
	Mean     fix16.T
	Variance fix16.T
	Skewness fix16.T
	Kurtosis fix16.T

	// Degenerate is set when the variance is too close to zero to
	// standardize the higher moments; Skewness and Kurtosis are then
	// zero and must be treated as failed, not as measured values.
	Degenerate bool
}

// computeMoments derives the moment set from a histogram in O(bins).
//
// The per-bin power sums are exact integers; they are reduced to raw
// moments of the scaled sample in Q16.16 carried in int64, where the
// worst-case fourth raw moment (just under 2^16) still has 30 bits of
// headroom. The raw-to-central expansion runs in the same wide format
// and only the final standardized ratios drop into saturating fix16.
func computeMoments(h *Histogram) MomentSet {
	n := uint64(h.total)
	if n == 0 {
		return MomentSet{Degenerate: true}
	}

	s1, s2, s3, s4 := h.powerSums()

	m1 := scaledMoment(s1, n, 1)
	m2 := scaledMoment(s2, n, 2)
	m3 := scaledMoment(s3, n, 3)
	m4 := scaledMoment(s4, n, 4)

	m1sq := mulq(m1, m1)

	c2 := m2 - m1sq
	if c2 < 0 {
		c2 = 0
	}

	c3 := m3 - 3*mulq(m1, m2) + 2*mulq(m1, m1sq)
	c4 := m4 - 4*mulq(m1, m3) + 6*mulq(m1sq, m2) - 3*mulq(m1sq, m1sq)

	if c2 < varianceEpsilon {
		return MomentSet{
			Mean:       satq(m1),
			Variance:   satq(c2),
			Degenerate: true,
		}
	}

	variance := satq(c2)

	sd := variance.Sqrt()
	sd3 := sd.Mul(variance)

	varSq := variance.Mul(variance)

	return MomentSet{
		Mean:     satq(m1),
		Variance: variance,
		Skewness: satq(c3).Div(sd3),
		Kurtosis: satq(c4).Div(varSq).Sub(fix16.FromInt(3)),
	}
}

// scaledMoment returns sum / (n * SampleScale^k) as a raw Q16.16 value,
// i.e. the k-th raw moment of the scaled sample. The 128-bit widening
// keeps the reduction exact for any histogram population.
func scaledMoment(sum, n uint64, k int) int64 {
	div := n << (6 * k) // n * SampleScale^k

	hi, lo := bits.Mul64(sum, 1<<16)

	lo, carry := bits.Add64(lo, div/2, 0)
	hi += carry

	q, _ := bits.Div64(hi, lo, div)

	return int64(q)
}

// mulq multiplies two raw Q16.16 values held in int64, rounding half up.
// Operand magnitudes in the moment expansion never exceed 2^34 raw, so
// the product cannot overflow.
func mulq(a, b int64) int64 {
	return (a*b + 1<<15) >> 16
}

// satq clamps a raw Q16.16 int64 into the fix16 range.
func satq(v int64) fix16.T {
	if v > math.MaxInt32 {
		return fix16.Max
	}

	if v < math.MinInt32 {
		return fix16.Min
	}

	return fix16.T(v)
}
