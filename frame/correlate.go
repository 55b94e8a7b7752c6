package frame

// Correlate reverts any inter-channel decorrelation between the samples of the
// subframes.
//
// An encoder decorrelates audio samples as follows:
//
//	mid = (left + right)/2
//	side = left - right
func (frame *Frame) Correlate() {
	switch frame.Channels {
	case ChannelsLeftSide:
		// 2 channels: left, side; using inter-channel decorrelation.
		left := frame.Subframes[0].Samples
		side := frame.Subframes[1].Samples
		for i := range side {
			// right = left - side
			side[i] = left[i] - side[i]
		}
	case ChannelsSideRight:
		// 2 channels: side, right; using inter-channel decorrelation.
		side := frame.Subframes[0].Samples
		right := frame.Subframes[1].Samples
		for i := range side {
			// left = right + side
			side[i] += right[i]
		}
	case ChannelsMidSide:
		// 2 channels: mid, side; using inter-channel decorrelation.
		mids := frame.Subframes[0].Samples
		sides := frame.Subframes[1].Samples
		for i := range mids {
			// the side channel carries the bit lost when halving mid.
			mid := int64(mids[i])<<1 | int64(sides[i])&1
			side := int64(sides[i])
			mids[i] = int32((mid + side) >> 1)
			sides[i] = int32((mid - side) >> 1)
		}
	}
}

// Decorrelate returns the two subframe signals of a stereo pair for the given
// channel assignment. The input slices are left unmodified.
//
// For ChannelsLR (and any non-stereo assignment) left and right are returned
// as is.
func Decorrelate(channels Channels, left, right []int32) (a, b []int32) {
	switch channels {
	case ChannelsLeftSide:
		return left, side(left, right)
	case ChannelsSideRight:
		return side(left, right), right
	case ChannelsMidSide:
		mids := make([]int32, len(left))
		for i := range mids {
			mids[i] = int32((int64(left[i]) + int64(right[i])) >> 1)
		}
		return mids, side(left, right)
	default:
		return left, right
	}
}

// side returns left - right for each sample.
func side(left, right []int32) []int32 {
	sides := make([]int32, len(left))
	for i := range sides {
		sides[i] = left[i] - right[i]
	}
	return sides
}
