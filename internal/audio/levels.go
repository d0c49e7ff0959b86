package audio

import "math"

// controlToLinear maps the 0-100 volume and gain controls to one linear
// multiplier. Both scale to [0,1] and multiply, so 100/100 is unity.
func controlToLinear(volume, gain int) float64 {
	return (float64(volume) / 100.0) * (float64(gain) / 100.0)
}

// eqControlToDB maps a 0-100 band control to gain in dB: 50 is flat, the
// extremes reach ±15 dB at 0.3 dB per unit.
func eqControlToDB(value int) float64 {
	return float64(value-50) * 0.3
}

// limiterControlToDB maps the 0-100 master limiter control to a threshold
// in dB below full scale: 100 is 0 dBFS, 0 is -60 dBFS.
func limiterControlToDB(threshold int) float64 {
	return -((100.0 - float64(threshold)) * 0.6)
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20.0)
}

// smoother is a one-pole parameter ramp. Every control change glides to its
// target over roughly the configured time constant instead of stepping,
// which keeps parameter moves free of clicks.
type smoother struct {
	current float64
	target  float64
	coeff   float64
}

// newSmoother creates a smoother with the given time constant in seconds at
// the given sample rate, starting at value.
func newSmoother(value, tau float64, sampleRate int) *smoother {
	return &smoother{
		current: value,
		target:  value,
		coeff:   math.Exp(-1.0 / (tau * float64(sampleRate))),
	}
}

func (s *smoother) setTarget(v float64) { s.target = v }

// next advances one sample and returns the smoothed value.
func (s *smoother) next() float64 {
	s.current = s.target + (s.current-s.target)*s.coeff
	return s.current
}

// settled reports whether the ramp has effectively reached its target.
func (s *smoother) settled() bool {
	return math.Abs(s.current-s.target) < 1e-6
}
