package parity

// SliceAlignment is the granularity of generated slice sizes.
const SliceAlignment int64 = 1 << 20

// SliceSize picks the ParPar block size for a release: the smallest multiple
// of SliceAlignment that keeps the source under maxSlices blocks, and never
// less than minSlice.
func SliceSize(totalBytes int64, maxSlices int, minSlice int64) int64 {
	if minSlice <= 0 {
		minSlice = SliceAlignment
	}
	size := minSlice
	if maxSlices > 0 && totalBytes > 0 {
		perSlice := ceilDiv(totalBytes, int64(maxSlices))
		aligned := ceilDiv(perSlice, SliceAlignment) * SliceAlignment
		if aligned > size {
			size = aligned
		}
	}
	return size
}

// SourceBlocks counts the input blocks ParPar sees for the given file sizes.
func SourceBlocks(sizes []int64, sliceSize int64) int64 {
	if sliceSize <= 0 {
		return 0
	}
	var blocks int64
	for _, size := range sizes {
		blocks += ceilDiv(size, sliceSize)
	}
	return blocks
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
