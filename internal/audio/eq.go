package audio

import "math"

// biquad is a transposed direct-form-II second-order filter section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	z1, z2             float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

func (f *biquad) reset() { f.z1, f.z2 = 0, 0 }

// Shelf and peak coefficients follow the Audio EQ Cookbook forms.

func lowShelf(sampleRate int, freq, gainDB float64) *biquad {
	a := math.Pow(10, gainDB/40.0)
	w0 := 2 * math.Pi * freq / float64(sampleRate)
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / 2 * math.Sqrt2
	sqrtA := math.Sqrt(a)

	b0 := a * ((a + 1) - (a-1)*cosW + 2*sqrtA*alpha)
	b1 := 2 * a * ((a - 1) - (a+1)*cosW)
	b2 := a * ((a + 1) - (a-1)*cosW - 2*sqrtA*alpha)
	a0 := (a + 1) + (a-1)*cosW + 2*sqrtA*alpha
	a1 := -2 * ((a - 1) + (a+1)*cosW)
	a2 := (a + 1) + (a-1)*cosW - 2*sqrtA*alpha

	return &biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func highShelf(sampleRate int, freq, gainDB float64) *biquad {
	a := math.Pow(10, gainDB/40.0)
	w0 := 2 * math.Pi * freq / float64(sampleRate)
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / 2 * math.Sqrt2
	sqrtA := math.Sqrt(a)

	b0 := a * ((a + 1) + (a-1)*cosW + 2*sqrtA*alpha)
	b1 := -2 * a * ((a - 1) + (a+1)*cosW)
	b2 := a * ((a + 1) + (a-1)*cosW - 2*sqrtA*alpha)
	a0 := (a + 1) - (a-1)*cosW + 2*sqrtA*alpha
	a1 := 2 * ((a - 1) - (a+1)*cosW)
	a2 := (a + 1) - (a-1)*cosW - 2*sqrtA*alpha

	return &biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func peaking(sampleRate int, freq, q, gainDB float64) *biquad {
	a := math.Pow(10, gainDB/40.0)
	w0 := 2 * math.Pi * freq / float64(sampleRate)
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * q)

	b0 := 1 + alpha*a
	b1 := -2 * cosW
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosW
	a2 := 1 - alpha/a

	return &biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// Band corner frequencies for the three-band channel EQ.
const (
	lowShelfFreq  = 200.0
	midPeakFreq   = 1000.0
	midPeakQ      = 0.8
	highShelfFreq = 4000.0
)

// threeBandEQ is the fixed low-shelf / mid-peak / high-shelf chain every
// channel runs. Band gains come from 0-100 controls; the dB targets are
// smoothed and the filters re-derived only while a ramp is in motion.
type threeBandEQ struct {
	sampleRate     int
	low, mid, high *biquad
	lowDB          *smoother
	midDB          *smoother
	highDB         *smoother
}

func newThreeBandEQ(sampleRate int, tau float64) *threeBandEQ {
	eq := &threeBandEQ{
		sampleRate: sampleRate,
		lowDB:      newSmoother(0, tau, sampleRate),
		midDB:      newSmoother(0, tau, sampleRate),
		highDB:     newSmoother(0, tau, sampleRate),
	}
	eq.rebuild()
	return eq
}

// setControls updates the 0-100 band controls.
func (eq *threeBandEQ) setControls(low, mid, high int) {
	eq.lowDB.setTarget(eqControlToDB(low))
	eq.midDB.setTarget(eqControlToDB(mid))
	eq.highDB.setTarget(eqControlToDB(high))
}

func (eq *threeBandEQ) rebuild() {
	low := lowShelf(eq.sampleRate, lowShelfFreq, eq.lowDB.current)
	mid := peaking(eq.sampleRate, midPeakFreq, midPeakQ, eq.midDB.current)
	high := highShelf(eq.sampleRate, highShelfFreq, eq.highDB.current)
	// carry filter state across coefficient updates
	if eq.low != nil {
		low.z1, low.z2 = eq.low.z1, eq.low.z2
		mid.z1, mid.z2 = eq.mid.z1, eq.mid.z2
		high.z1, high.z2 = eq.high.z1, eq.high.z2
	}
	eq.low, eq.mid, eq.high = low, mid, high
}

// processFrame runs the frame through all three bands. While any band gain
// is ramping the coefficients are recomputed once per frame, which is fine
// grained enough at 20 ms frames to stay artifact free.
func (eq *threeBandEQ) processFrame(frame []float64) {
	if !eq.lowDB.settled() || !eq.midDB.settled() || !eq.highDB.settled() {
		for i := 0; i < len(frame); i++ {
			eq.lowDB.next()
			eq.midDB.next()
			eq.highDB.next()
		}
		eq.rebuild()
	}
	for i, x := range frame {
		frame[i] = eq.high.process(eq.mid.process(eq.low.process(x)))
	}
}
