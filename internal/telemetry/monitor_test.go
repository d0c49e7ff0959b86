package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/internal/models"
	"github.com/aircast/backend/internal/station"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	conns  []uuid.UUID
}

func (r *recordingNotifier) Send(connID uuid.UUID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.conns = append(r.conns, connID)
}

func (r *recordingNotifier) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type nullMixer struct{}

func (nullMixer) AddChannel(models.ChannelSettings) error { return nil }
func (nullMixer) RemoveChannel(uuid.UUID)                 {}

type fanRecorder struct {
	frames chan models.ServerStats
}

func (f *fanRecorder) SendAll(event string, payload interface{}) {
	if stats, ok := payload.(models.ServerStats); ok {
		select {
		case f.frames <- stats:
		default:
		}
	}
}

func poorReport() models.QualityReport {
	return models.QualityReport{
		Bitrate:   16000,
		LatencyMS: 450,
		JitterMS:  80,
		Quality:   models.QualityPoor,
		At:        time.Now(),
	}
}

func setup(t *testing.T, cooldown time.Duration) (*Monitor, *station.Station, *recordingNotifier, uuid.UUID, uuid.UUID) {
	t.Helper()
	notifier := &recordingNotifier{}
	st := station.New(notifier, nullMixer{}, 4, 5*time.Minute, zerolog.Nop())
	m := New(st, notifier, &fanRecorder{frames: make(chan models.ServerStats, 4)}, nil, cooldown, zerolog.Nop())

	host := uuid.New()
	st.Connect(host)
	if err := st.RegisterBroadcaster(host, "b1", models.BroadcasterInfo{DisplayName: "Host", StationName: "FM"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	listener := uuid.New()
	st.Connect(listener)
	if _, _, err := st.JoinListener(listener, "b1", models.DeviceInfo{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	return m, st, notifier, host, listener
}

func TestReportQuality_PoorAlertsBroadcaster(t *testing.T) {
	m, _, notifier, _, listener := setup(t, time.Minute)

	m.ReportQuality(listener, poorReport())
	if got := notifier.count(models.EventQualityAlert); got != 1 {
		t.Fatalf("quality alerts = %d, want 1", got)
	}
}

func TestReportQuality_RateLimited(t *testing.T) {
	m, _, notifier, _, listener := setup(t, time.Minute)

	for i := 0; i < 5; i++ {
		m.ReportQuality(listener, poorReport())
	}
	if got := notifier.count(models.EventQualityAlert); got != 1 {
		t.Errorf("quality alerts within cooldown = %d, want 1", got)
	}

	// A second connection has its own allowance.
	other := uuid.New()
	m2, st, notifier2, _, _ := setup(t, time.Minute)
	st.Connect(other)
	if _, _, err := st.JoinListener(other, "b1", models.DeviceInfo{}); err != nil {
		t.Fatal(err)
	}
	m2.ReportQuality(other, poorReport())
	if got := notifier2.count(models.EventQualityAlert); got != 1 {
		t.Errorf("alerts for a fresh connection = %d, want 1", got)
	}
}

func TestReportQuality_GoodIsSilent(t *testing.T) {
	m, _, notifier, _, listener := setup(t, time.Minute)

	report := poorReport()
	report.Quality = models.QualityGood
	m.ReportQuality(listener, report)
	if got := notifier.count(models.EventQualityAlert); got != 0 {
		t.Errorf("alerts for a good report = %d, want 0", got)
	}
}

func TestReportQuality_UnknownConnectionIgnored(t *testing.T) {
	m, _, notifier, _, _ := setup(t, time.Minute)

	m.ReportQuality(uuid.New(), poorReport())
	if got := notifier.count(models.EventQualityAlert); got != 0 {
		t.Errorf("alerts for an unknown connection = %d, want 0", got)
	}
}

func TestDisconnect_ResetsAllowance(t *testing.T) {
	m, _, notifier, _, listener := setup(t, time.Hour)

	m.ReportQuality(listener, poorReport())
	m.ReportQuality(listener, poorReport())
	if got := notifier.count(models.EventQualityAlert); got != 1 {
		t.Fatalf("alerts = %d, want 1", got)
	}

	// Dropping and reconnecting starts a fresh window.
	m.Disconnect(listener)
	m.ReportQuality(listener, poorReport())
	if got := notifier.count(models.EventQualityAlert); got != 2 {
		t.Errorf("alerts after reconnect = %d, want 2", got)
	}
}

func TestSnapshot(t *testing.T) {
	m, st, _, host, _ := setup(t, time.Minute)

	caller := uuid.New()
	st.Connect(caller)
	callID, _, err := st.SubmitCall(caller, "b1", "Jane", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AcceptCall(host, callID); err != nil {
		t.Fatal(err)
	}

	stats := m.Snapshot()
	if stats.ActiveBroadcasts != 1 {
		t.Errorf("broadcasts = %d, want 1", stats.ActiveBroadcasts)
	}
	if stats.TotalListeners != 1 {
		t.Errorf("listeners = %d, want 1", stats.TotalListeners)
	}
	if stats.TotalActiveCalls != 1 {
		t.Errorf("active calls = %d, want 1", stats.TotalActiveCalls)
	}
	if stats.UptimeSeconds < 0 {
		t.Errorf("uptime = %v", stats.UptimeSeconds)
	}
}

func TestRun_PublishesStats(t *testing.T) {
	notifier := &recordingNotifier{}
	st := station.New(notifier, nullMixer{}, 4, 5*time.Minute, zerolog.Nop())
	fan := &fanRecorder{frames: make(chan models.ServerStats, 4)}
	m := New(st, notifier, fan, nil, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	select {
	case stats := <-fan.frames:
		if stats.ActiveBroadcasts != 0 {
			t.Errorf("broadcasts = %d, want 0", stats.ActiveBroadcasts)
		}
	case <-time.After(time.Second):
		t.Fatal("no stats broadcast within a second")
	}
	cancel()
	<-done
}
