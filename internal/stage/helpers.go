package stage

import (
	"sync"
	"time"
)

// Throttled forwards at most one update per interval. The first update, any
// update at 100% always passes.
func Throttled(progress Progress, interval time.Duration) Progress {
	if progress == nil {
		return nil
	}
	var (
		mu      sync.Mutex
		last    time.Time
		started bool
	)
	return func(percent float64, message string) {
		mu.Lock()
		t := time.Now()
		emit := !started || percent >= 100 || t.Sub(last) >= interval
		if emit {
			started = true
			last = t
		}
		mu.Unlock()
		if emit {
			progress(percent, message)
		}
	}
}
