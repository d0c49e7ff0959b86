// Package audio implements the broadcast signal chain: per-channel gain,
// EQ and dynamics processing summed onto one master bus whose output feeds
// the broadcast encoder. The engine runs its own processing goroutine;
// everything the control plane does is posted as an asynchronous command
// consumed at frame boundaries, so no audio-path operation ever waits on
// network I/O.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/internal/models"
)

// ErrChannelNotFound is returned for updates against a released channel.
var ErrChannelNotFound = errors.New("audio channel not found")

// Config carries the engine's fixed parameters.
type Config struct {
	SampleRate       int
	FrameDuration    time.Duration
	MasterVolume     int
	LimiterThreshold int
}

// Engine owns every channel and the master bus. Channels sum into the bus:
// master gain -> master limiter -> analyzer -> encoder tap.
type Engine struct {
	cfg       Config
	frameSize int

	mu       sync.Mutex
	channels map[uuid.UUID]*channel

	commands chan func()

	masterGain *smoother
	masterLim  *limiter
	analyzer   *analyzer

	tapMu sync.Mutex
	taps  map[int]chan []float64
	tapID int

	devices DeviceManager

	mix []float64
	out []float64

	log zerolog.Logger
}

// NewEngine creates an engine. The device manager supplies exclusive input
// sources for mic channels.
func NewEngine(cfg Config, devices DeviceManager, logger zerolog.Logger) *Engine {
	frameSize := int(float64(cfg.SampleRate) * cfg.FrameDuration.Seconds())
	e := &Engine{
		cfg:        cfg,
		frameSize:  frameSize,
		channels:   make(map[uuid.UUID]*channel),
		commands:   make(chan func(), 128),
		masterGain: newSmoother(float64(cfg.MasterVolume)/100.0, paramTau, cfg.SampleRate),
		masterLim:  newLimiter(cfg.SampleRate, limiterControlToDB(cfg.LimiterThreshold)),
		analyzer:   newAnalyzer(0.95),
		taps:       make(map[int]chan []float64),
		devices:    devices,
		mix:        make([]float64, frameSize),
		out:        make([]float64, frameSize),
		log:        logger.With().Str("component", "audio").Logger(),
	}
	return e
}

// FrameSize returns samples per processing frame.
func (e *Engine) FrameSize() int { return e.frameSize }

// Run processes frames until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FrameDuration)
	defer ticker.Stop()
	e.log.Info().
		Int("sample_rate", e.cfg.SampleRate).
		Dur("frame", e.cfg.FrameDuration).
		Msg("audio engine started")
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case <-ticker.C:
			e.Step()
		}
	}
}

// Step processes exactly one frame: drain pending commands, pull and
// process every channel, sum into the master bus, limit, meter, tap.
func (e *Engine) Step() {
	e.drainCommands()

	e.mu.Lock()
	zero(e.mix)
	anySolo := false
	for _, ch := range e.channels {
		if ch.settings.Solo {
			anySolo = true
			break
		}
	}
	for _, ch := range e.channels {
		frame := ch.pull()
		ch.process(frame)
		if anySolo && !ch.settings.Solo {
			continue
		}
		for i, x := range frame {
			e.mix[i] += x
		}
	}
	e.mu.Unlock()

	for i, x := range e.mix {
		e.out[i] = x * e.masterGain.next()
	}
	e.masterLim.processFrame(e.out)
	e.analyzer.observe(e.out)
	e.fanout(e.out)
}

func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.commands:
			cmd()
		default:
			return
		}
	}
}

// post enqueues a command for the audio goroutine. Never blocks; an
// overflowing queue drops the command and logs, because stalling the
// control plane on the audio path is worse than losing one fader move.
func (e *Engine) post(cmd func()) {
	select {
	case e.commands <- cmd:
	default:
		e.log.Warn().Msg("audio command queue full, dropping update")
	}
}

// AddChannel allocates a channel. Mic channels acquire an exclusive input
// source here, outside the steady-state processing path, and fail with
// ErrDeviceUnavailable when none can be had.
func (e *Engine) AddChannel(settings models.ChannelSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid channel settings: %w", err)
	}

	var source InputSource
	if settings.Type == models.ChannelMic {
		var err error
		source, err = e.devices.Acquire()
		if err != nil {
			return err
		}
	}

	ch := newChannel(settings, source, e.cfg.SampleRate, e.frameSize)

	e.mu.Lock()
	e.channels[settings.ID] = ch
	e.mu.Unlock()

	e.log.Info().
		Str("channel_id", settings.ID.String()).
		Str("type", string(settings.Type)).
		Str("label", settings.Label).
		Msg("audio channel added")
	return nil
}

// RemoveChannel tears a channel down and releases any input source it
// held. Removing an unknown channel is a no-op.
func (e *Engine) RemoveChannel(id uuid.UUID) {
	e.mu.Lock()
	ch, ok := e.channels[id]
	if ok {
		delete(e.channels, id)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	if ch.source != nil {
		e.devices.Release(ch.source)
	}
	e.log.Info().Str("channel_id", id.String()).Msg("audio channel removed")
}

// UpdateChannel applies new control values asynchronously. The change takes
// effect at the next frame boundary and ramps over the parameter time
// constant.
func (e *Engine) UpdateChannel(settings models.ChannelSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid channel settings: %w", err)
	}
	e.mu.Lock()
	_, ok := e.channels[settings.ID]
	e.mu.Unlock()
	if !ok {
		return ErrChannelNotFound
	}
	e.post(func() {
		e.mu.Lock()
		if ch, still := e.channels[settings.ID]; still {
			ch.apply(settings)
		}
		e.mu.Unlock()
	})
	return nil
}

// ChannelSettings returns the current control values for a channel.
func (e *Engine) ChannelSettings(id uuid.UUID) (models.ChannelSettings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[id]
	if !ok {
		return models.ChannelSettings{}, ErrChannelNotFound
	}
	return ch.settings, nil
}

// ChannelCount returns how many channels are allocated.
func (e *Engine) ChannelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.channels)
}

// SetMasterVolume ramps the master gain stage to a new 0-100 value.
func (e *Engine) SetMasterVolume(volume int) {
	e.post(func() {
		e.masterGain.setTarget(float64(volume) / 100.0)
	})
}

// SetLimiterThreshold moves the master limiter threshold, mapped from the
// 0-100 control to dBFS.
func (e *Engine) SetLimiterThreshold(threshold int) {
	e.post(func() {
		e.masterLim.setThresholdDB(limiterControlToDB(threshold))
	})
}

// PushFrame feeds samples into a non-mic channel. Non-blocking: when the
// channel's feed buffer is full the frame is dropped.
func (e *Engine) PushFrame(id uuid.UUID, samples []float64) error {
	e.mu.Lock()
	ch, ok := e.channels[id]
	e.mu.Unlock()
	if !ok {
		return ErrChannelNotFound
	}
	if ch.source != nil {
		return fmt.Errorf("channel %s reads from a device, cannot be fed", id)
	}
	select {
	case ch.feed <- samples:
	default:
	}
	return nil
}

// Subscribe attaches an encoder tap to the master bus output. The returned
// cancel function detaches it. A slow subscriber loses frames rather than
// stalling the bus.
func (e *Engine) Subscribe() (<-chan []float64, func()) {
	e.tapMu.Lock()
	id := e.tapID
	e.tapID++
	tap := make(chan []float64, 16)
	e.taps[id] = tap
	e.tapMu.Unlock()

	cancel := func() {
		e.tapMu.Lock()
		if t, ok := e.taps[id]; ok {
			delete(e.taps, id)
			close(t)
		}
		e.tapMu.Unlock()
	}
	return tap, cancel
}

func (e *Engine) fanout(frame []float64) {
	e.tapMu.Lock()
	defer e.tapMu.Unlock()
	if len(e.taps) == 0 {
		return
	}
	out := make([]float64, len(frame))
	copy(out, frame)
	for _, tap := range e.taps {
		select {
		case tap <- out:
		default:
		}
	}
}

// Levels returns the analyzer's current reading.
func (e *Engine) Levels() models.LevelReading {
	return e.analyzer.snapshot()
}

// RunMetering samples the analyzer at a steady rate, independent of the
// processing rate, and hands each reading to fn.
func (e *Engine) RunMetering(ctx context.Context, interval time.Duration, fn func(models.LevelReading)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(e.analyzer.snapshot())
		}
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	channels := e.channels
	e.channels = make(map[uuid.UUID]*channel)
	e.mu.Unlock()
	for _, ch := range channels {
		if ch.source != nil {
			e.devices.Release(ch.source)
		}
	}
	e.log.Info().Msg("audio engine stopped")
}
