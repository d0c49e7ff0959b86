package station

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/internal/models"
)

// fakeNotifier records every delivered event.
type fakeNotifier struct {
	mu     sync.Mutex
	events []fakeEvent
}

type fakeEvent struct {
	connID  uuid.UUID
	event   string
	payload interface{}
}

func (f *fakeNotifier) Send(connID uuid.UUID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fakeEvent{connID: connID, event: event, payload: payload})
}

func (f *fakeNotifier) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (f *fakeNotifier) countFor(connID uuid.UUID, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event && e.connID == connID {
			n++
		}
	}
	return n
}

func (f *fakeNotifier) last(event string) (fakeEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].event == event {
			return f.events[i], true
		}
	}
	return fakeEvent{}, false
}

// fakeMixer tracks allocated channel ids. onAdd, when set, runs before the
// channel is recorded so tests can interleave station calls with an
// allocation in flight.
type fakeMixer struct {
	mu       sync.Mutex
	channels map[uuid.UUID]models.ChannelSettings
	failWith error
	onAdd    func()
}

func newFakeMixer() *fakeMixer {
	return &fakeMixer{channels: make(map[uuid.UUID]models.ChannelSettings)}
}

func (f *fakeMixer) AddChannel(settings models.ChannelSettings) error {
	if f.onAdd != nil {
		f.onAdd()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.channels[settings.ID] = settings
	return nil
}

func (f *fakeMixer) RemoveChannel(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
}

func (f *fakeMixer) channelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func newTestStation(maxCalls int) (*Station, *fakeNotifier, *fakeMixer) {
	notifier := &fakeNotifier{}
	mixer := newFakeMixer()
	st := New(notifier, mixer, maxCalls, 5*time.Minute, zerolog.Nop())
	return st, notifier, mixer
}

func connect(st *Station) uuid.UUID {
	id := uuid.New()
	st.Connect(id)
	return id
}

var testInfo = models.BroadcasterInfo{DisplayName: "Radio Host", StationName: "Aircast FM"}
