package flacio

import (
	"fmt"
	"math"
	mathbits "math/bits"

	"github.com/pchchv/flacio/frame"
	"github.com/pchchv/flacio/internal/bits"
	"github.com/pchchv/flacio/internal/lpc"
)

// Compression levels.
const (
	// DefaultLevel is the compression level used unless specified otherwise.
	DefaultLevel = 5
	// MaxLevel is the highest compression level.
	MaxLevel = 8
)

// maxRiceParam is the highest Rice parameter of the rice2 coding method;
// 31 is the escape code.
const maxRiceParam = 30

// level holds the encoder settings of a compression level.
type level struct {
	// Number of samples per frame.
	blockSize uint16
	// Highest FIR prediction order tried; 0 disables FIR prediction.
	maxLPCOrder int
	// Try inter-channel decorrelation of stereo streams.
	stereo bool
	// Highest Rice partition order tried.
	partOrder int
	// Try every FIR prediction order instead of the estimated best one.
	exhaustive bool
}

// levels maps compression levels to encoder settings,
// in the spirit of the reference encoder presets.
var levels = [...]level{
	0: {blockSize: 1152, maxLPCOrder: 0, stereo: false, partOrder: 3},
	1: {blockSize: 1152, maxLPCOrder: 0, stereo: true, partOrder: 3},
	2: {blockSize: 1152, maxLPCOrder: 0, stereo: true, partOrder: 4},
	3: {blockSize: 4096, maxLPCOrder: 6, stereo: false, partOrder: 4},
	4: {blockSize: 4096, maxLPCOrder: 8, stereo: true, partOrder: 4},
	5: {blockSize: 4096, maxLPCOrder: 8, stereo: true, partOrder: 5},
	6: {blockSize: 4096, maxLPCOrder: 8, stereo: true, partOrder: 6, exhaustive: true},
	7: {blockSize: 4096, maxLPCOrder: 12, stereo: true, partOrder: 6, exhaustive: true},
	8: {blockSize: 4096, maxLPCOrder: 12, stereo: true, partOrder: 6, exhaustive: true},
}

// BlockSize returns the number of samples per frame used at the given
// compression level.
func BlockSize(level int) uint16 {
	return levels[min(max(level, 0), MaxLevel)].blockSize
}

// WriteBlock compresses and encodes one block of audio samples as a frame.
// channels holds the samples of each channel; every channel holds the same
// number of samples, at most Info.BlockSizeMax. Only the last block of a
// stream may be shorter than Info.BlockSizeMax.
//
// The prediction method of each subframe and the inter-channel decorrelation
// are chosen by the compression level of the encoder.
func (enc *Encoder) WriteBlock(channels [][]int32) error {
	info := enc.Info
	if len(channels) != int(info.NChannels) {
		return fmt.Errorf("flacio.Encoder.WriteBlock: channel count mismatch; expected %d, got %d", info.NChannels, len(channels))
	}

	n := len(channels[0])
	if n == 0 || n > int(info.BlockSizeMax) {
		return fmt.Errorf("flacio.Encoder.WriteBlock: invalid block size (%d); expected 1 to %d", n, info.BlockSizeMax)
	}

	bps := uint(info.BitsPerSample)
	for i, samples := range channels {
		if len(samples) != n {
			return fmt.Errorf("flacio.Encoder.WriteBlock: channel %d sample count mismatch; expected %d, got %d", i, n, len(samples))
		}
		for j, sample := range samples {
			if bits.IntN(bits.UintN(int64(sample), bps), bps) != int64(sample) {
				return fmt.Errorf("flacio.Encoder.WriteBlock: sample %d of channel %d (%d) exceeds %d bits-per-sample", j, i, sample, bps)
			}
		}
	}

	lvl := levels[enc.level()]
	f := &frame.Frame{
		Header: frame.Header{
			HasFixedBlockSize: true,
			BlockSize:         uint16(n),
			SampleRate:        info.SampleRate,
			Channels:          frame.Channels(len(channels) - 1),
			BitsPerSample:     info.BitsPerSample,
		},
		Subframes: make([]*frame.Subframe, len(channels)),
	}

	hdrs := make([]frame.SubHeader, len(channels))
	signals := channels
	if len(channels) == 2 && lvl.stereo && bps < 32 {
		f.Channels, signals, hdrs = enc.analyzeStereo(channels[0], channels[1], bps, lvl)
	} else {
		for i, samples := range channels {
			hdrs[i], _ = enc.analyze(samples, bps, lvl)
		}
	}

	for i := range f.Subframes {
		f.Subframes[i] = &frame.Subframe{SubHeader: hdrs[i], Samples: channels[i], NSamples: n}
	}

	if err := enc.checkFrame(f); err != nil {
		return err
	}

	return enc.writeFrame(f, signals)
}

// analyzeStereo selects the cheapest of independent, left/side, side/right
// and mid/side coding for a stereo block.
func (enc *Encoder) analyzeStereo(left, right []int32, bps uint, lvl level) (frame.Channels, [][]int32, []frame.SubHeader) {
	mid, side := frame.Decorrelate(frame.ChannelsMidSide, left, right)
	leftHdr, leftBits := enc.analyze(left, bps, lvl)
	rightHdr, rightBits := enc.analyze(right, bps, lvl)
	midHdr, midBits := enc.analyze(mid, bps, lvl)
	sideHdr, sideBits := enc.analyze(side, bps+1, lvl)

	channels := frame.ChannelsLR
	best := leftBits + rightBits
	if n := leftBits + sideBits; n < best {
		channels, best = frame.ChannelsLeftSide, n
	}
	if n := sideBits + rightBits; n < best {
		channels, best = frame.ChannelsSideRight, n
	}
	if n := midBits + sideBits; n < best {
		channels = frame.ChannelsMidSide
	}

	switch channels {
	case frame.ChannelsLeftSide:
		return channels, [][]int32{left, side}, []frame.SubHeader{leftHdr, sideHdr}
	case frame.ChannelsSideRight:
		return channels, [][]int32{side, right}, []frame.SubHeader{sideHdr, rightHdr}
	case frame.ChannelsMidSide:
		return channels, [][]int32{mid, side}, []frame.SubHeader{midHdr, sideHdr}
	default:
		return channels, [][]int32{left, right}, []frame.SubHeader{leftHdr, rightHdr}
	}
}

// analyze selects the prediction method of a subframe holding the given
// samples of bps bits-per-sample. It returns the subframe header and the
// encoded size of the subframe in bits.
func (enc *Encoder) analyze(samples []int32, bps uint, lvl level) (frame.SubHeader, int) {
	n := len(samples)
	if isConstant(samples) {
		return frame.SubHeader{Pred: frame.PredConstant}, int(bps)
	}

	// wasted bits-per-sample.
	var or int32
	for _, sample := range samples {
		or |= sample
	}

	wasted := uint(mathbits.TrailingZeros32(uint32(or)))
	if wasted >= bps {
		wasted = 0
	}

	if wasted > 0 {
		shifted := make([]int32, n)
		for i, sample := range samples {
			shifted[i] = sample >> wasted
		}
		samples = shifted
	}

	ebps := int(bps - wasted)
	best := frame.SubHeader{Pred: frame.PredVerbatim, Wasted: wasted}
	bestBits := n * ebps

	// fixed prediction.
	for order := 0; order <= min(4, n); order++ {
		residuals, err := getLPCResiduals(samples, frame.FixedCoeffs[order], 0)
		if err != nil {
			break
		}

		method, rice, riceBits := riceEncoding(residuals, n, order, lvl.partOrder)
		if rice == nil {
			continue
		}

		if total := order*ebps + riceBits; total < bestBits {
			bestBits = total
			best = frame.SubHeader{
				Pred:                 frame.PredFixed,
				Order:                order,
				Wasted:               wasted,
				ResidualCodingMethod: method,
				RiceSubframe:         rice,
			}
		}
	}

	// FIR prediction.
	if hdr, total, ok := enc.analyzeFIR(samples, ebps, lvl); ok && total < bestBits {
		hdr.Wasted = wasted
		best, bestBits = hdr, total
	}

	// subframe header, including unary coded wasted bits.
	hdrBits := 8
	if wasted > 0 {
		hdrBits += int(wasted)
	}

	return best, bestBits + hdrBits
}

// analyzeFIR returns the FIR predictor with the smallest encoded size.
func (enc *Encoder) analyzeFIR(samples []int32, bps int, lvl level) (best frame.SubHeader, bestBits int, ok bool) {
	n := len(samples)
	maxOrder := min(lvl.maxLPCOrder, n-1, lpc.MaxOrder)
	if maxOrder < 1 {
		return best, 0, false
	}

	autoc := lpc.Autocorrelation(samples, enc.window(n), maxOrder)
	coeffs, errs := lpc.LevinsonDurbin(autoc, maxOrder)
	if len(coeffs) == 0 {
		return best, 0, false
	}

	prec := lpc.Precision(n, bps)
	orders := []int{lpc.BestOrder(errs, n, bps, prec)}
	if lvl.exhaustive {
		orders = orders[:0]
		for order := 1; order <= len(coeffs); order++ {
			orders = append(orders, order)
		}
	}

	bestBits = math.MaxInt
	for _, order := range orders {
		q, shift, err := lpc.Quantize(coeffs[order-1], prec)
		if err != nil {
			continue
		}

		residuals, err := getLPCResiduals(samples, q, int32(shift))
		if err != nil {
			continue
		}

		method, rice, riceBits := riceEncoding(residuals, n, order, lvl.partOrder)
		if rice == nil {
			continue
		}

		// warm-up samples, precision, shift, coefficients and residuals.
		total := order*bps + 4 + 5 + order*prec + riceBits
		if total < bestBits {
			bestBits, ok = total, true
			best = frame.SubHeader{
				Pred:                 frame.PredFIR,
				Order:                order,
				ResidualCodingMethod: method,
				CoeffPrec:            uint(prec),
				CoeffShift:           int32(shift),
				Coeffs:               q,
				RiceSubframe:         rice,
			}
		}
	}

	return best, bestBits, ok
}

// window returns the Tukey(0.5) analysis window of length n.
func (enc *Encoder) window(n int) []float64 {
	if w, ok := enc.windows[n]; ok {
		return w
	}

	if enc.windows == nil {
		enc.windows = make(map[int][]float64)
	}

	w := lpc.Tukey(n, 0.5)
	enc.windows[n] = w
	return w
}

// riceEncoding returns the residual coding method and Rice partitions which
// encode the residuals of a subframe in the fewest bits, trying partition
// orders up to maxPartOrder, and the resulting size in bits. It returns a nil
// RiceSubframe if no partition order is valid for the block.
func riceEncoding(residuals []int32, blockSize, order, maxPartOrder int) (frame.ResidualCodingMethod, *frame.RiceSubframe, int) {
	folded := make([]uint32, len(residuals))
	for i, residual := range residuals {
		folded[i] = bits.EncodeZigZag(residual)
	}

	var (
		bestMethod frame.ResidualCodingMethod
		best       *frame.RiceSubframe
		bestBits   = math.MaxInt
	)
	for partOrder := 0; partOrder <= maxPartOrder; partOrder++ {
		nparts := 1 << partOrder
		if blockSize%nparts != 0 || blockSize/nparts < order {
			break
		}

		method, rice, n := ricePartitions(residuals, folded, blockSize, order, partOrder)
		if n < bestBits {
			bestMethod, best, bestBits = method, rice, n
		}
	}

	return bestMethod, best, bestBits
}

// ricePartitions chooses the Rice parameter of each partition for the given
// partition order, and returns the size in bits of the residual section.
func ricePartitions(residuals []int32, folded []uint32, blockSize, order, partOrder int) (frame.ResidualCodingMethod, *frame.RiceSubframe, int) {
	nparts := 1 << partOrder
	rice := &frame.RiceSubframe{
		PartOrder:  partOrder,
		Partitions: make([]frame.RicePartition, nparts),
	}

	total := 0
	escaped := make([]bool, nparts)
	method := frame.ResidualCodingMethodRice1
	for i := range rice.Partitions {
		n := blockSize / nparts
		if i == 0 {
			n -= order
		}
		part, partFolded := residuals[:n], folded[:n]
		residuals, folded = residuals[n:], folded[n:]

		param, riceBits := riceParam(partFolded)
		ebps := escapedBitsPerSample(part)
		if ebps <= 31 && 5+n*int(ebps) < riceBits {
			escaped[i] = true
			rice.Partitions[i].EscapedBitsPerSample = ebps
			total += 5 + n*int(ebps)
			continue
		}

		rice.Partitions[i].Param = param
		total += riceBits
		if param > 14 {
			method = frame.ResidualCodingMethodRice2
		}
	}

	// escape code of the residual coding method.
	paramSize := 4
	if method == frame.ResidualCodingMethodRice2 {
		paramSize = 5
	}
	for i := range rice.Partitions {
		if escaped[i] {
			rice.Partitions[i].Param = 1<<paramSize - 1
		}
	}

	// coding method, partition order and Rice parameters.
	total += 2 + 4 + nparts*paramSize
	return method, rice, total
}

// riceParam returns the Rice parameter which encodes the given folded
// residuals in the fewest bits, and the number of bits.
func riceParam(folded []uint32) (uint, int) {
	if len(folded) == 0 {
		return 0, 0
	}

	var sum uint64
	for _, x := range folded {
		sum += uint64(x)
	}

	// the optimal parameter is close to log2 of the mean.
	k := min(uint(mathbits.Len64(sum/uint64(len(folded)))), maxRiceParam)
	best, bestBits := k, riceBits(folded, k)
	for _, k := range []uint{k - 1, k + 1} {
		if k > maxRiceParam {
			// includes the wrap around of 0-1.
			continue
		}
		if n := riceBits(folded, k); n < bestBits {
			best, bestBits = k, n
		}
	}

	return best, bestBits
}

// riceBits returns the number of bits used to Rice code the folded residuals
// with parameter k.
func riceBits(folded []uint32, k uint) int {
	n := len(folded) * int(k+1)
	for _, x := range folded {
		n += int(x >> k)
	}
	return n
}

// escapedBitsPerSample returns the smallest sample size holding every
// residual as a signed integer. A partition of zeros needs no bits.
func escapedBitsPerSample(residuals []int32) uint {
	var n uint
	allZero := true
	for _, residual := range residuals {
		if residual != 0 {
			allZero = false
		}
		// magnitude bits of residual, plus a sign bit.
		n = max(n, uint(mathbits.Len32(uint32(residual^residual>>31)))+1)
	}

	if allZero {
		return 0
	}

	return n
}

// isConstant reports whether every sample has the same value.
func isConstant(samples []int32) bool {
	for _, sample := range samples[1:] {
		if sample != samples[0] {
			return false
		}
	}
	return true
}
