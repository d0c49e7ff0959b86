package audio

import (
	"github.com/aircast/backend/internal/models"
)

// paramTau is the time constant for every parameter ramp. No control is
// ever stepped discontinuously.
const paramTau = 0.010 // 10 ms

// channel is one mixable input running the fixed processing order:
// gain stage -> 3-band EQ -> compressor -> channel limiter.
type channel struct {
	settings models.ChannelSettings

	gain *smoother
	eq   *threeBandEQ
	comp *compressor
	lim  *limiter

	// mic channels read from an exclusive input source; other types are
	// fed frames through feed and fall back to silence when starved.
	source InputSource
	feed   chan []float64

	buf []float64
}

func newChannel(settings models.ChannelSettings, source InputSource, sampleRate, frameSize int) *channel {
	ch := &channel{
		settings: settings,
		gain:     newSmoother(gainTarget(settings), paramTau, sampleRate),
		eq:       newThreeBandEQ(sampleRate, paramTau),
		comp:     newSpeechCompressor(sampleRate),
		lim:      newLimiter(sampleRate, -1.0),
		source:   source,
		feed:     make(chan []float64, 8),
		buf:      make([]float64, frameSize),
	}
	ch.eq.setControls(settings.EQ.Low, settings.EQ.Mid, settings.EQ.High)
	return ch
}

// gainTarget is the linear gain a channel ramps toward: zero while muted,
// otherwise volume x gain.
func gainTarget(s models.ChannelSettings) float64 {
	if s.Muted {
		return 0
	}
	return controlToLinear(s.Volume, s.Gain)
}

// apply installs new control values. Called on the audio goroutine at a
// frame boundary; every change glides through the smoothers.
func (ch *channel) apply(s models.ChannelSettings) {
	ch.settings = s
	ch.gain.setTarget(gainTarget(s))
	ch.eq.setControls(s.EQ.Low, s.EQ.Mid, s.EQ.High)
}

// pull fills the channel's frame buffer from its source, or silence.
func (ch *channel) pull() []float64 {
	if ch.source != nil {
		if !ch.source.ReadFrame(ch.buf) {
			zero(ch.buf)
		}
		return ch.buf
	}
	select {
	case frame := <-ch.feed:
		n := copy(ch.buf, frame)
		for i := n; i < len(ch.buf); i++ {
			ch.buf[i] = 0
		}
	default:
		zero(ch.buf)
	}
	return ch.buf
}

// process runs the channel chain in place over the pulled frame.
func (ch *channel) process(frame []float64) {
	for i := range frame {
		frame[i] *= ch.gain.next()
	}
	ch.eq.processFrame(frame)
	ch.comp.processFrame(frame)
	ch.lim.processFrame(frame)
}

func zero(frame []float64) {
	for i := range frame {
		frame[i] = 0
	}
}
