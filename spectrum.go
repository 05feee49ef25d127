package rnghealth

import (
	"math"

	"github.com/hwrng-tools/rnghealth/fix16"
)

const (
	// FFTSize is the length of one spectral frame. A batch is split
	// into SampleCount / FFTSize disjoint frames whose magnitude-squared
	// spectra are averaged; a single-frame estimate has a standard
	// deviation comparable to the signal itself.
	FFTSize = 256

	// SpectrumBins is the number of one-sided frequency bins, covering
	// [0, 0.5) of the sampling rate.
	SpectrumBins = FFTSize / 2

	fftStages = 8 // log2(FFTSize)

	// binFractionShift converts a bin index to its frequency as a
	// Q16.16 fraction of the sampling rate: k / FFTSize == k << 8.
	binFractionShift = 16 - fftStages
)

// twiddles holds e^(-2*pi*i*k/FFTSize) for k < FFTSize/2 in Q16.16.
// Built once at startup; the firmware equivalent is a ROM table.
var twiddles [FFTSize / 2]struct{ re, im fix16.T }

func init() {
	for k := range twiddles {
		phi := -2 * math.Pi * float64(k) / FFTSize

		twiddles[k].re = fix16.FromFloat(math.Cos(phi))
		twiddles[k].im = fix16.FromFloat(math.Sin(phi))
	}
}

// spectralResult carries the measured spectral properties of one batch.
// All frequency values are Q16.16 fractions of the sampling rate.
type spectralResult struct {
	peak      fix16.T
	lowerEdge fix16.T
	upperEdge fix16.T
	bandwidth fix16.T

	// lowerFound is set when the downward walk located a genuine
	// debounced crossing; clear means the edge was clamped to DC and
	// the high-pass roll-off was never observed.
	lowerFound bool
}

// analyzeSpectrum estimates the power spectral density of the batch and
// locates the peak and the debounced band edges.
func analyzeSpectrum(batch []uint16, mean fix16.T, threshold fix16.T, repetitions int) spectralResult {
	psd, peakBin, ok := computeSpectrum(batch, mean)
	if !ok {
		return spectralResult{}
	}

	lower, lowerFound := walkEdge(psd[:], peakBin, -1, threshold, repetitions)
	upper, _ := walkEdge(psd[:], peakBin, +1, threshold, repetitions)

	return spectralResult{
		peak:       binFraction(peakBin),
		lowerEdge:  binFraction(lower),
		upperEdge:  binFraction(upper),
		bandwidth:  binFraction(upper - lower),
		lowerFound: lowerFound,
	}
}

// computeSpectrum averages the magnitude-squared transform of every
// frame and normalizes the result against the peak bin into Q16.16. The
// batch mean (in scaled Q16.16 units, from the moment pass) is
// subtracted from every sample so the DC bin does not dominate the
// peak search. ok is false when the spectrum is identically zero.
func computeSpectrum(batch []uint16, mean fix16.T) (psd [SpectrumBins]fix16.T, peakBin int, ok bool) {
	var (
		acc [SpectrumBins]int64
		re  [FFTSize]fix16.T
		im  [FFTSize]fix16.T
	)

	frames := len(batch) / FFTSize

	for f := 0; f < frames; f++ {
		frame := batch[f*FFTSize : (f+1)*FFTSize]

		for i, s := range frame {
			re[i] = fix16.T(int32(s) << scaledSampleShift).Sub(mean)
			im[i] = 0
		}

		fftRadix2(re[:], im[:])

		for k := range acc {
			acc[k] += int64(re[k])*int64(re[k]) + int64(im[k])*int64(im[k])
		}
	}

	// Bin 0 is excluded: after mean subtraction it holds only rounding
	// residue, and a peak there could never satisfy the minimum peak
	// fraction anyway.
	peakBin = 1

	for k := 2; k < SpectrumBins; k++ {
		if acc[k] > acc[peakBin] {
			peakBin = k
		}
	}

	if acc[peakBin] == 0 {
		return psd, 0, false
	}

	// Magnitude-squared sums stay in int64 until this division so the
	// normalized curve keeps full precision.
	for k, v := range acc {
		q := (v << 16) / acc[peakBin]

		if q > int64(fix16.Max) {
			psd[k] = fix16.Max
		} else {
			psd[k] = fix16.T(q)
		}
	}

	return psd, peakBin, true
}

// walkEdge walks outward from the peak bin in direction dir (+1 or -1)
// and returns the band edge: the first bin of a run of repetitions
// consecutive bins all strictly below the threshold. If no such run
// exists before the spectrum boundary, the edge clamps to the boundary
// and found is false.
func walkEdge(psd []fix16.T, peak, dir int, threshold fix16.T, repetitions int) (edge int, found bool) {
	var run, runStart int

	for i := peak + dir; i >= 0 && i < len(psd); i += dir {
		if psd[i] >= threshold {
			run = 0

			continue
		}

		if run == 0 {
			runStart = i
		}

		run++

		if run == repetitions {
			return runStart, true
		}
	}

	if dir < 0 {
		return 0, false
	}

	return len(psd) - 1, false
}

func binFraction(bin int) fix16.T {
	return fix16.T(bin << binFractionShift)
}

// fftRadix2 runs an in-place decimation-in-time transform with a half
// scaling per stage, so intermediate magnitudes never exceed the input
// bound and the output equals DFT / FFTSize.
func fftRadix2(re, im []fix16.T) {
	n := len(re)

	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1

		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}

		j |= bit

		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size

		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := twiddles[k*step]

				i := start + k
				j := i + half

				tr := w.re.Mul(re[j]).Sub(w.im.Mul(im[j]))
				ti := w.re.Mul(im[j]).Add(w.im.Mul(re[j]))

				ar := re[i] >> 1
				ai := im[i] >> 1

				tr >>= 1
				ti >>= 1

				re[i] = ar + tr
				im[i] = ai + ti
				re[j] = ar - tr
				im[j] = ai - ti
			}
		}
	}
}
