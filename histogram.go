package rnghealth

import (
	"errors"
	"fmt"
)

const (
	// NumBins is the number of histogram bins, one per distinct code of
	// the 10-bit ADC.
	NumBins = 1024

	// BinMaxCount is the largest count a single bin may hold. Bins are
	// budgeted 11 bits of storage on the reference hardware.
	BinMaxCount = 1<<11 - 1

	// SampleCount is the number of samples in one batch. It must be a
	// multiple of 2 * FFTSize so the same batch can be both histogrammed
	// and framed for the spectral estimate.
	SampleCount = 4096

	// SampleScale is the power-of-two factor samples are scaled down by
	// before any fixed-point arithmetic, so that fourth-power terms stay
	// inside the Q16.16 range.
	SampleScale = 64

	sampleMax = NumBins - 1

	// log2(2^16 / SampleScale): converts an ADC code to a scaled Q16.16
	// raw value with a single shift.
	scaledSampleShift = 10
)

var (
	// ErrBatchSize reports a batch whose length is not SampleCount.
	ErrBatchSize = errors.New("batch size mismatch")

	// ErrSampleRange reports a sample outside the ADC's code range.
	ErrSampleRange = errors.New("sample outside ADC range")

	// ErrBinOverflow reports a histogram bin exceeding its storage
	// budget. With a correctly sized batch this indicates a
	// batch-size/bin-width misconfiguration, not a data condition.
	ErrBinOverflow = errors.New("histogram bin overflow")
)

// Histogram counts how many samples of a batch landed on each ADC code.
// It is owned by a single test run; Engine.Run resets it before use.
type Histogram struct {
	counts [NumBins]uint16
	total  uint32
}

// Reset zeroes all bins.
func (h *Histogram) Reset() {
	*h = Histogram{}
}

// Accumulate bins one batch of raw samples. The batch must be exactly
// SampleCount long and every sample must be a valid 10-bit code.
//
// Bin capacity is validated once after the fill loop rather than per
// increment: a uint16 cannot wrap within one batch, so deferring the
// check keeps the hot loop branch-free without ever letting an
// overflowed bin reach the statistics.
func (h *Histogram) Accumulate(batch []uint16) error {
	if len(batch) != SampleCount {
		return fmt.Errorf("%w: got %d samples, want %d", ErrBatchSize, len(batch), SampleCount)
	}

	for i, s := range batch {
		if s > sampleMax {
			return fmt.Errorf("%w: sample %d at index %d", ErrSampleRange, s, i)
		}

		h.counts[s]++
	}

	h.total += SampleCount

	for bin, c := range h.counts {
		if c > BinMaxCount {
			return fmt.Errorf("%w: bin %d holds %d, max %d", ErrBinOverflow, bin, c, BinMaxCount)
		}
	}

	return nil
}

// Total returns the number of samples binned so far.
func (h *Histogram) Total() int {
	return int(h.total)
}

// Count returns the number of samples in one bin.
func (h *Histogram) Count(bin int) int {
	return int(h.counts[bin])
}

// powerSums accumulates sum(count * code^k) for k = 1..4 in a single
// pass. The sums are exact: at the maximum bin count (2047 per bin,
// 1024 bins) and maximum code (1023), s4 stays below 2^62.
func (h *Histogram) powerSums() (s1, s2, s3, s4 uint64) {
	for i, c := range h.counts {
		if c == 0 {
			continue
		}

		x := uint64(i)
		n := uint64(c)

		x2 := x * x

		s1 += n * x
		s2 += n * x2
		s3 += n * x2 * x
		s4 += n * x2 * x2
	}

	return s1, s2, s3, s4
}
