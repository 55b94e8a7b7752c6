package flacio

import (
	"errors"
	"fmt"

	"github.com/icza/bitio"
	"github.com/pchchv/flacio/frame"
	"github.com/pchchv/flacio/internal/bits"
)

// encodeSubframe encodes the given subframe, writing to bw.
// signal holds the samples of the subframe after inter-channel decorrelation,
// and bps the sample size of the subframe in bits-per-sample.
//
// Rice partitions are chosen with a partition order of at most maxPartOrder
// unless the subframe header specifies them.
func encodeSubframe(bw *bitio.Writer, subframe *frame.Subframe, signal []int32, bps uint, maxPartOrder int) error {
	// encode subframe header
	if err := encodeSubframeHeader(bw, subframe.SubHeader); err != nil {
		return err
	}

	// remove wasted bits-per-sample
	samples := signal
	if subframe.Wasted > 0 {
		if subframe.Wasted >= bps {
			return fmt.Errorf("wasted bits-per-sample (%d) exceeds sample size (%d)", subframe.Wasted, bps)
		}

		mask := int32(1)<<subframe.Wasted - 1
		samples = make([]int32, len(signal))
		for i, sample := range signal {
			if sample&mask != 0 {
				return fmt.Errorf("sample %d has non-zero wasted bits", i)
			}
			samples[i] = sample >> subframe.Wasted
		}
		bps -= subframe.Wasted
	}

	// encode audio samples
	switch subframe.Pred {
	case frame.PredConstant:
		return encodeConstantSamples(bw, samples, bps)
	case frame.PredVerbatim:
		return encodeVerbatimSamples(bw, samples, bps)
	case frame.PredFixed:
		return encodeFixedSamples(bw, subframe, samples, bps, maxPartOrder)
	case frame.PredFIR:
		return encodeFIRSamples(bw, subframe, samples, bps, maxPartOrder)
	default:
		return fmt.Errorf("unknown prediction method (%d)", subframe.Pred)
	}
}

// encodeSubframeHeader encodes the given subframe header, writing to bw.
func encodeSubframeHeader(bw *bitio.Writer, hdr frame.SubHeader) error {
	// 1 bit: zero-padding
	if err := bw.WriteBool(false); err != nil {
		return err
	}

	// 6 bits: subframe type
	//    000000 : SUBFRAME_CONSTANT
	//    000001 : SUBFRAME_VERBATIM
	//    00001x : reserved
	//    0001xx : reserved
	//    001xxx : if(xxx <= 4) SUBFRAME_FIXED, xxx=order ; else reserved
	//    01xxxx : reserved
	//    1xxxxx : SUBFRAME_LPC, xxxxx=order-1
	var x uint64
	switch hdr.Pred {
	case frame.PredConstant:
		x = 0x00
	case frame.PredVerbatim:
		x = 0x01
	case frame.PredFixed:
		if hdr.Order < 0 || hdr.Order > 4 {
			return fmt.Errorf("invalid fixed prediction order (%d)", hdr.Order)
		}
		x = 0x08 | uint64(hdr.Order)
	case frame.PredFIR:
		if hdr.Order < 1 || hdr.Order > 32 {
			return fmt.Errorf("invalid FIR prediction order (%d)", hdr.Order)
		}
		x = 0x20 | uint64(hdr.Order-1)
	default:
		return fmt.Errorf("unknown prediction method (%d)", hdr.Pred)
	}

	if err := bw.WriteBits(x, 6); err != nil {
		return err
	}

	// 1 bit: 'wasted bits-per-sample' flag
	if err := bw.WriteBool(hdr.Wasted > 0); err != nil {
		return err
	}

	// k-1 follows, unary coded
	if hdr.Wasted > 0 {
		return bits.WriteUnary(bw, uint64(hdr.Wasted-1))
	}

	return nil
}

// encodeConstantSamples stores the given constant sample, writing to bw.
func encodeConstantSamples(bw *bitio.Writer, samples []int32, bps uint) error {
	sample := samples[0]
	for _, s := range samples[1:] {
		if sample != s {
			return fmt.Errorf("constant sample mismatch; expected %v, got %v", sample, s)
		}
	}

	// unencoded constant value of the subblock
	// n = frame's bits-per-sample
	return writeSample(bw, sample, bps)
}

// encodeVerbatimSamples stores the given samples verbatim (uncompressed), writing to bw
func encodeVerbatimSamples(bw *bitio.Writer, samples []int32, bps uint) error {
	// unencoded subblock
	// n = frame's bits-per-sample
	// i = frame's blocksize
	for _, sample := range samples {
		if err := writeSample(bw, sample, bps); err != nil {
			return err
		}
	}

	return nil
}

// encodeFixedSamples stores the given samples using linear prediction coding
// with a fixed set of predefined polynomial coefficients, writing to bw.
func encodeFixedSamples(bw *bitio.Writer, subframe *frame.Subframe, samples []int32, bps uint, maxPartOrder int) error {
	// unencoded warm-up samples
	// n = frame's bits-per-sample * predictor order
	if err := encodeWarmUp(bw, samples, subframe.Order, bps); err != nil {
		return err
	}

	// residuals
	residuals, err := getLPCResiduals(samples, frame.FixedCoeffs[subframe.Order], 0)
	if err != nil {
		return err
	}

	return encodeResiduals(bw, subframe, residuals, maxPartOrder)
}

// encodeFIRSamples stores the given samples using linear prediction coding
// with the quantized coefficients of the subframe header, writing to bw.
func encodeFIRSamples(bw *bitio.Writer, subframe *frame.Subframe, samples []int32, bps uint, maxPartOrder int) error {
	// unencoded warm-up samples
	// n = frame's bits-per-sample * lpc order
	if err := encodeWarmUp(bw, samples, subframe.Order, bps); err != nil {
		return err
	}

	// 4 bits: (quantized linear predictor coefficients' precision in bits)-1
	prec := subframe.CoeffPrec
	if prec < 1 || prec > 15 {
		return fmt.Errorf("invalid coefficient precision (%d)", prec)
	}

	if err := bw.WriteBits(uint64(prec-1), 4); err != nil {
		return err
	}

	// 5 bits: quantized linear predictor coefficient shift needed in bits
	shift := subframe.CoeffShift
	if shift < 0 || shift > 15 {
		return fmt.Errorf("invalid coefficient shift (%d)", shift)
	}

	if err := bw.WriteBits(uint64(shift), 5); err != nil {
		return err
	}

	// unencoded predictor coefficients
	// n = qlp coeff precision * lpc order
	if len(subframe.Coeffs) != subframe.Order {
		return fmt.Errorf("prediction order (%d) differs from number of coefficients (%d)", subframe.Order, len(subframe.Coeffs))
	}

	for _, c := range subframe.Coeffs {
		if bits.IntN(bits.UintN(int64(c), prec), prec) != int64(c) {
			return fmt.Errorf("coefficient %d does not fit in %d bits", c, prec)
		}

		if err := bw.WriteBits(bits.UintN(int64(c), prec), uint8(prec)); err != nil {
			return err
		}
	}

	// residuals
	residuals, err := getLPCResiduals(samples, subframe.Coeffs, shift)
	if err != nil {
		return err
	}

	return encodeResiduals(bw, subframe, residuals, maxPartOrder)
}

// encodeWarmUp stores the first order samples unencoded, writing to bw.
func encodeWarmUp(bw *bitio.Writer, samples []int32, order int, bps uint) error {
	if order > len(samples) {
		return fmt.Errorf("prediction order (%d) exceeds block size (%d)", order, len(samples))
	}

	for _, sample := range samples[:order] {
		if err := writeSample(bw, sample, bps); err != nil {
			return err
		}
	}

	return nil
}

// encodeResiduals stores the Rice coded residuals of the subframe, writing to bw.
// If the subframe header has no Rice partitions, they are chosen to minimize
// the encoded size.
func encodeResiduals(bw *bitio.Writer, subframe *frame.Subframe, residuals []int32, maxPartOrder int) error {
	blockSize := len(residuals) + subframe.Order
	method, rice := subframe.ResidualCodingMethod, subframe.RiceSubframe
	if rice == nil {
		method, rice, _ = riceEncoding(residuals, blockSize, subframe.Order, maxPartOrder)
	}

	var paramSize uint8
	switch method {
	case frame.ResidualCodingMethodRice1:
		paramSize = 4
	case frame.ResidualCodingMethodRice2:
		paramSize = 5
	default:
		return fmt.Errorf("reserved residual coding method (%d)", method)
	}

	nparts := 1 << rice.PartOrder
	switch {
	case len(rice.Partitions) != nparts:
		return fmt.Errorf("partition count mismatch; expected %d, got %d", nparts, len(rice.Partitions))
	case blockSize%nparts != 0 || blockSize/nparts < subframe.Order:
		return fmt.Errorf("invalid partition order (%d) for block size (%d) and prediction order (%d)", rice.PartOrder, blockSize, subframe.Order)
	}

	// 2 bits: residual coding method
	bw.TryWriteBits(uint64(method), 2)
	// 4 bits: partition order
	bw.TryWriteBits(uint64(rice.PartOrder), 4)
	if bw.TryError != nil {
		return bw.TryError
	}

	escape := uint(1)<<paramSize - 1
	for i, partition := range rice.Partitions {
		// determine the residuals of the partition
		n := blockSize / nparts
		if i == 0 {
			n -= subframe.Order
		}
		part := residuals[:n]
		residuals = residuals[n:]

		if partition.Param == escape {
			if err := encodeEscapedPartition(bw, part, partition.EscapedBitsPerSample, paramSize); err != nil {
				return err
			}
			continue
		}

		if partition.Param > escape {
			return fmt.Errorf("invalid Rice parameter (%d)", partition.Param)
		}

		if err := encodeRicePartition(bw, part, partition.Param, paramSize); err != nil {
			return err
		}
	}

	return nil
}

// encodeRicePartition stores the Rice parameter k followed by the Rice coded
// residuals of a partition, writing to bw.
func encodeRicePartition(bw *bitio.Writer, residuals []int32, k uint, paramSize uint8) error {
	// (4 or 5) bits: Rice parameter
	if err := bw.WriteBits(uint64(k), paramSize); err != nil {
		return err
	}

	mask := uint32(1)<<k - 1
	for _, residual := range residuals {
		// ZigZag encode
		folded := bits.EncodeZigZag(residual)

		// unary encoded most significant bits
		if err := bits.WriteUnary(bw, uint64(folded>>k)); err != nil {
			return err
		}

		// binary encoded least significant bits
		if err := bw.WriteBits(uint64(folded&mask), uint8(k)); err != nil {
			return err
		}
	}

	return nil
}

// encodeEscapedPartition stores the residuals of a partition unencoded as n
// bit signed integers, writing to bw.
func encodeEscapedPartition(bw *bitio.Writer, residuals []int32, n uint, paramSize uint8) error {
	if n > 31 {
		return fmt.Errorf("invalid escaped partition sample size (%d)", n)
	}

	// (4 or 5) bits: escape code; 5 bits: sample size
	bw.TryWriteBits(1<<paramSize-1, paramSize)
	bw.TryWriteBits(uint64(n), 5)
	if bw.TryError != nil {
		return bw.TryError
	}

	for _, residual := range residuals {
		if err := writeSample(bw, residual, n); err != nil {
			return err
		}
	}

	return nil
}

// writeSample stores sample as an n bit signed integer, writing to bw.
func writeSample(bw *bitio.Writer, sample int32, n uint) error {
	if n < 64 && bits.IntN(bits.UintN(int64(sample), n), n) != int64(sample) {
		return fmt.Errorf("sample %d does not fit in %d bits", sample, n)
	}

	return bw.WriteBits(bits.UintN(int64(sample), n), uint8(n))
}

// errShortBlock is returned when a block holds fewer samples than the
// prediction order.
var errShortBlock = errors.New("block size less than prediction order")

// getLPCResiduals returns the residuals
// (signal errors of the prediction)
// between the given audio samples and the LPC predicted audio samples,
// using the coefficients of a given polynomial,
// and a couple (order of polynomial;
// i.e. len(coeffs)) of unencoded warm-up samples.
func getLPCResiduals(samples []int32, coeffs []int32, shift int32) ([]int32, error) {
	order := len(coeffs)
	if order > len(samples) {
		return nil, errShortBlock
	}

	if shift < 0 {
		return nil, fmt.Errorf("getLPCResiduals: invalid negative shift")
	}

	residuals := make([]int32, 0, len(samples)-order)
	for i := order; i < len(samples); i++ {
		var sample int64
		for j, c := range coeffs {
			sample += int64(c) * int64(samples[i-j-1])
		}
		residual := samples[i] - int32(sample>>uint(shift))
		residuals = append(residuals, residual)
	}

	return residuals, nil
}
