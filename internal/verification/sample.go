package verification

import (
	"math"

	"juicenet/internal/config"
	"juicenet/internal/nzb"
)

// SampleSize is the number of segments checked for a release.
func SampleSize(cfg config.Verification, total int) int {
	if total <= 0 {
		return 0
	}
	n := cfg.SampleCount
	if cfg.SampleMode == config.SampleModeProportional {
		n = int(math.Ceil(float64(total) * cfg.SamplePercent / 100))
	}
	return max(1, min(n, total))
}

// Sample picks n evenly spaced segments across every file in document order.
// The first and last segments are always included when n > 1.
func Sample(doc *nzb.NZB, n int) []nzb.Segment {
	var all []nzb.Segment
	for _, file := range doc.Files {
		all = append(all, file.Segments...)
	}
	if n <= 0 || len(all) == 0 {
		return nil
	}
	if n >= len(all) {
		return all
	}
	if n == 1 {
		return []nzb.Segment{all[0]}
	}
	picked := make([]nzb.Segment, 0, n)
	step := float64(len(all)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		picked = append(picked, all[int(math.Round(float64(i)*step))])
	}
	return picked
}
