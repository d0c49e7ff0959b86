package audio

import (
	"math"
	"sync"
	"time"

	"github.com/aircast/backend/internal/models"
)

// analyzer sits at the end of the master bus and tracks the instantaneous
// level and a decayed peak. The audio goroutine writes, the 10 Hz metering
// ticker reads; a mutex around two floats is cheap enough at frame rate.
type analyzer struct {
	mu        sync.Mutex
	instant   float64
	peak      float64
	peakDecay float64
}

// newAnalyzer creates an analyzer whose peak hold decays by the given
// factor per frame.
func newAnalyzer(peakDecay float64) *analyzer {
	return &analyzer{peakDecay: peakDecay}
}

// observe records one processed master frame.
func (a *analyzer) observe(frame []float64) {
	if len(frame) == 0 {
		return
	}
	var sum, maxAbs float64
	for _, x := range frame {
		sum += x * x
		if abs := math.Abs(x); abs > maxAbs {
			maxAbs = abs
		}
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	a.mu.Lock()
	a.instant = rms
	a.peak *= a.peakDecay
	if maxAbs > a.peak {
		a.peak = maxAbs
	}
	a.mu.Unlock()
}

// snapshot returns the current reading without blocking the audio path.
func (a *analyzer) snapshot() models.LevelReading {
	a.mu.Lock()
	defer a.mu.Unlock()
	return models.LevelReading{
		Instant: a.instant,
		Peak:    a.peak,
		At:      time.Now(),
	}
}
