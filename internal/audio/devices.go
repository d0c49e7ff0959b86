package audio

import (
	"errors"
	"sync"
)

// ErrDeviceUnavailable is returned when a mic channel cannot acquire an
// exclusive input source.
var ErrDeviceUnavailable = errors.New("no audio input device available")

// InputSource is one exclusive real-time capture source. ReadFrame fills
// the frame with the latest captured samples; it must not block the audio
// goroutine, returning false when no data is ready (the channel then
// contributes silence for that frame).
type InputSource interface {
	ReadFrame(frame []float64) bool
	Close() error
}

// DeviceManager hands out exclusive input sources for mic channels. The
// capture implementation lives behind this interface so the engine stays
// independent of any particular audio backend.
type DeviceManager interface {
	Acquire() (InputSource, error)
	Release(src InputSource)
}

// slotDeviceManager is a DeviceManager with a fixed number of input slots.
// Acquire fails with ErrDeviceUnavailable once every slot is claimed.
type slotDeviceManager struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	open     func() (InputSource, error)
}

// NewSlotDeviceManager creates a DeviceManager limited to capacity
// concurrent inputs, using open to create each source.
func NewSlotDeviceManager(capacity int, open func() (InputSource, error)) DeviceManager {
	return &slotDeviceManager{capacity: capacity, open: open}
}

func (m *slotDeviceManager) Acquire() (InputSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inUse >= m.capacity {
		return nil, ErrDeviceUnavailable
	}
	src, err := m.open()
	if err != nil {
		return nil, err
	}
	m.inUse++
	return src, nil
}

func (m *slotDeviceManager) Release(src InputSource) {
	if src == nil {
		return
	}
	_ = src.Close()
	m.mu.Lock()
	if m.inUse > 0 {
		m.inUse--
	}
	m.mu.Unlock()
}

// silentSource is the fallback input used when no capture backend is
// wired; it produces silence so a mic channel still occupies a device slot
// and exercises the full processing chain.
type silentSource struct{}

func (silentSource) ReadFrame(frame []float64) bool {
	for i := range frame {
		frame[i] = 0
	}
	return true
}

func (silentSource) Close() error { return nil }

// NewSilentDeviceManager returns a slot-limited manager producing silent
// sources. Used in development and tests.
func NewSilentDeviceManager(capacity int) DeviceManager {
	return NewSlotDeviceManager(capacity, func() (InputSource, error) {
		return silentSource{}, nil
	})
}
