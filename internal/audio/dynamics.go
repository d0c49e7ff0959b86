package audio

import "math"

// envelope is an attack/release follower over the absolute signal level.
type envelope struct {
	level        float64
	attackCoeff  float64
	releaseCoeff float64
}

func newEnvelope(sampleRate int, attack, release float64) *envelope {
	return &envelope{
		attackCoeff:  math.Exp(-1.0 / (attack * float64(sampleRate))),
		releaseCoeff: math.Exp(-1.0 / (release * float64(sampleRate))),
	}
}

func (e *envelope) next(x float64) float64 {
	in := math.Abs(x)
	if in > e.level {
		e.level = in + (e.level-in)*e.attackCoeff
	} else {
		e.level = in + (e.level-in)*e.releaseCoeff
	}
	return e.level
}

// compressor applies downward compression above a fixed threshold with a
// soft knee. The defaults are tuned for speech.
type compressor struct {
	thresholdDB float64
	ratio       float64
	kneeDB      float64
	env         *envelope
}

func newSpeechCompressor(sampleRate int) *compressor {
	return &compressor{
		thresholdDB: -18.0,
		ratio:       3.0,
		kneeDB:      6.0,
		env:         newEnvelope(sampleRate, 0.005, 0.080),
	}
}

// gainDB computes the gain reduction for a level in dB.
func (c *compressor) gainDB(levelDB float64) float64 {
	over := levelDB - c.thresholdDB
	half := c.kneeDB / 2
	switch {
	case over <= -half:
		return 0
	case over < half:
		// soft knee: quadratic interpolation across the knee width
		t := over + half
		return (1/c.ratio - 1) * t * t / (2 * c.kneeDB)
	default:
		return (1/c.ratio - 1) * over
	}
}

func (c *compressor) processFrame(frame []float64) {
	for i, x := range frame {
		level := c.env.next(x)
		if level < 1e-9 {
			continue
		}
		levelDB := 20 * math.Log10(level)
		frame[i] = x * dbToLinear(c.gainDB(levelDB))
	}
}

// limiter is a hard-ratio fast-attack peak stopper. Per-channel limiters
// run at a fixed ceiling just under full scale; the master limiter's
// threshold tracks the 0-100 control.
type limiter struct {
	thresholdLin float64
	env          *envelope
}

func newLimiter(sampleRate int, thresholdDB float64) *limiter {
	return &limiter{
		thresholdLin: dbToLinear(thresholdDB),
		env:          newEnvelope(sampleRate, 0.001, 0.050),
	}
}

func (l *limiter) setThresholdDB(db float64) {
	l.thresholdLin = dbToLinear(db)
}

func (l *limiter) processFrame(frame []float64) {
	for i, x := range frame {
		level := l.env.next(x)
		if level > l.thresholdLin {
			frame[i] = x * (l.thresholdLin / level)
		}
	}
}
