// Package lpc implements the linear prediction analysis used to select FIR
// predictors when encoding subframes.
//
// The analysis windows a block of samples, computes its autocorrelation,
// derives predictor coefficients of increasing order through the
// Levinson-Durbin recursion and quantizes them to the integer form stored in
// FLAC subframes.
package lpc

import (
	"errors"
	"math"
)

const (
	// MaxOrder is the highest prediction order a FIR subframe can hold.
	MaxOrder = 32
	// MaxPrecision is the highest quantized coefficient precision in bits.
	MaxPrecision = 15
	// MaxShift is the highest quantization shift storable in a subframe.
	MaxShift = 15
)

var (
	// ErrZeroCoeffs is returned when all coefficients are zero,
	// in which case a fixed predictor serves better.
	ErrZeroCoeffs = errors.New("lpc.Quantize: all coefficients are zero")
	// ErrNegativeShift is returned when the coefficients are
	// too large to be represented with the requested precision.
	ErrNegativeShift = errors.New("lpc.Quantize: coefficients require a negative shift")
)

// Tukey returns a Tukey window of length n,
// where p is the ratio of the window inside the cosine tapered region.
func Tukey(n int, p float64) []float64 {
	window := make([]float64, n)
	for i := range window {
		window[i] = 1
	}

	if p <= 0 || n < 2 {
		return window
	}

	if p >= 1 {
		// Hann window.
		for i := range window {
			window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		}
		return window
	}

	np := int(p/2*float64(n)) - 1
	if np > 0 {
		for i := 0; i <= np; i++ {
			window[i] = 0.5 - 0.5*math.Cos(math.Pi*float64(i)/float64(np))
			window[n-np-1+i] = 0.5 - 0.5*math.Cos(math.Pi*float64(i+np)/float64(np))
		}
	}

	return window
}

// Autocorrelation returns the autocorrelation of the windowed signal x
// for lags 0 through maxLag.
func Autocorrelation(x []int32, window []float64, maxLag int) []float64 {
	data := make([]float64, len(x))
	for i, s := range x {
		data[i] = float64(s) * window[i]
	}

	autoc := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag && lag < len(data); lag++ {
		var sum float64
		for i := lag; i < len(data); i++ {
			sum += data[i] * data[i-lag]
		}
		autoc[lag] = sum
	}

	return autoc
}

// LevinsonDurbin computes the predictor coefficients for every order from 1 up
// to maxOrder. coeffs[k] holds the k+1 coefficients of order k+1 and errs[k]
// its residual energy. Fewer orders are returned when the recursion becomes
// unstable.
//
// The prediction of sample n is sum(coeffs[k][j] * x[n-1-j]).
func LevinsonDurbin(autoc []float64, maxOrder int) (coeffs [][]float64, errs []float64) {
	if maxOrder >= len(autoc) {
		maxOrder = len(autoc) - 1
	}

	if maxOrder < 1 || autoc[0] == 0 {
		return nil, nil
	}

	err := autoc[0]
	lpc := make([]float64, maxOrder)
	for i := 0; i < maxOrder; i++ {
		// reflection coefficient.
		r := -autoc[i+1]
		for j := 0; j < i; j++ {
			r -= lpc[j] * autoc[i-j]
		}
		r /= err

		// update the predictor in place.
		lpc[i] = r
		j := 0
		for ; j < i/2; j++ {
			tmp := lpc[j]
			lpc[j] += r * lpc[i-1-j]
			lpc[i-1-j] += r * tmp
		}
		if i&1 != 0 {
			lpc[j] += lpc[j] * r
		}

		err *= 1 - r*r
		if err <= 0 || math.IsNaN(err) {
			break
		}

		c := make([]float64, i+1)
		for k := range c {
			c[k] = -lpc[k]
		}
		coeffs = append(coeffs, c)
		errs = append(errs, err)
	}

	return coeffs, errs
}

// ExpectedBitsPerSample estimates the number of bits needed to Rice code a
// residual sample given the residual energy err of a block of n samples.
func ExpectedBitsPerSample(err float64, n int) float64 {
	if err <= 0 {
		return 0
	}

	bps := 0.5 * math.Log2(0.5*err/float64(n))
	if bps < 0 {
		return 0
	}

	return bps
}

// BestOrder returns the prediction order (1-based) with the smallest
// estimated encoded size, counting precision bits per coefficient and bps bits
// per warm-up sample.
func BestOrder(errs []float64, n, bps, precision int) int {
	best, bestBits := 1, math.Inf(1)
	for i, e := range errs {
		order := i + 1
		bits := ExpectedBitsPerSample(e, n)*float64(n-order) + float64(order*(bps+precision))
		if bits < bestBits {
			best, bestBits = order, bits
		}
	}
	return best
}

// Precision returns the quantized coefficient precision used for blocks of
// the given size and sample width.
func Precision(blockSize, bps int) int {
	var prec int
	switch {
	case blockSize <= 192:
		prec = 7
	case blockSize <= 384:
		prec = 8
	case blockSize <= 576:
		prec = 9
	case blockSize <= 1152:
		prec = 10
	case blockSize <= 2304:
		prec = 11
	case blockSize <= 4608:
		prec = 12
	default:
		prec = 13
	}

	if bps < 16 {
		prec -= (16 - bps) / 2
		if prec < 5 {
			prec = 5
		}
	}

	return min(prec, MaxPrecision)
}

// Quantize converts coefficients to integers of the given precision in bits,
// such that coeffs[i] ≈ q[i] / 2^shift.
// The rounding error of each coefficient is carried over to the next one.
func Quantize(coeffs []float64, precision int) (q []int32, shift int, err error) {
	if precision < 2 || precision > MaxPrecision {
		return nil, 0, errors.New("lpc.Quantize: precision out of range")
	}

	var cmax float64
	for _, c := range coeffs {
		cmax = max(cmax, math.Abs(c))
	}

	if cmax <= 0 {
		return nil, 0, ErrZeroCoeffs
	}

	qmax := int64(1)<<(precision-1) - 1
	qmin := -int64(1) << (precision - 1)

	_, log2cmax := math.Frexp(cmax)
	log2cmax--
	shift = precision - 1 - log2cmax - 1
	if shift > MaxShift {
		shift = MaxShift
	} else if shift < 0 {
		return nil, 0, ErrNegativeShift
	}

	q = make([]int32, len(coeffs))
	var carry float64
	scale := float64(int64(1) << uint(shift))
	for i, c := range coeffs {
		carry += c * scale
		v := int64(math.Round(carry))
		if v > qmax {
			v = qmax
		} else if v < qmin {
			v = qmin
		}
		carry -= float64(v)
		q[i] = int32(v)
	}

	return q, shift, nil
}
