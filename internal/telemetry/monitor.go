// Package telemetry aggregates listener counts, per-connection quality
// reports and periodic server statistics. Everything here is advisory and
// must never block the signaling or audio paths.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aircast/backend/internal/models"
	"github.com/aircast/backend/internal/station"
)

// Broadcaster pushes an event to every connected client. Implemented by
// the websocket hub.
type Broadcaster interface {
	SendAll(event string, payload interface{})
}

// StatsPublisher mirrors aggregate stats to an external channel (Redis
// pub/sub when configured). Optional.
type StatsPublisher interface {
	PublishServerStats(stats models.ServerStats) error
}

// Monitor collects quality reports and emits periodic aggregates.
type Monitor struct {
	station   *station.Station
	notifier  station.Notifier
	broadcast Broadcaster
	publisher StatsPublisher

	// one limiter per reporting connection keeps a flapping client from
	// producing an alert storm
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
	cooldown time.Duration

	startedAt time.Time
	log       zerolog.Logger
}

// New creates a Monitor. publisher may be nil.
func New(st *station.Station, notifier station.Notifier, broadcast Broadcaster, publisher StatsPublisher, cooldown time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		station:   st,
		notifier:  notifier,
		broadcast: broadcast,
		publisher: publisher,
		limiters:  make(map[uuid.UUID]*rate.Limiter),
		cooldown:  cooldown,
		startedAt: time.Now(),
		log:       logger.With().Str("component", "telemetry").Logger(),
	}
}

func (m *Monitor) limiter(connID uuid.UUID) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	lim, ok := m.limiters[connID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(m.cooldown), 1)
		m.limiters[connID] = lim
	}
	return lim
}

// Disconnect drops the alert limiter for a disconnected connection.
func (m *Monitor) Disconnect(connID uuid.UUID) {
	m.mu.Lock()
	delete(m.limiters, connID)
	m.mu.Unlock()
}

// ReportQuality stores a connection's latest sample. A poor report raises
// an audio-quality-alert to the broadcaster, at most one per connection per
// cooldown window.
func (m *Monitor) ReportQuality(connID uuid.UUID, report models.QualityReport) {
	broadcasterConn, ok := m.station.RecordQuality(connID, report)
	if !ok {
		return
	}
	if report.Quality != models.QualityPoor {
		return
	}
	if !m.limiter(connID).Allow() {
		return
	}
	m.log.Warn().
		Str("connection_id", connID.String()).
		Int("bitrate", report.Bitrate).
		Float64("jitter_ms", report.JitterMS).
		Msg("poor quality reported")
	m.notifier.Send(broadcasterConn, models.EventQualityAlert, models.QualityAlertPayload{
		ConnectionID: connID,
		Report:       report,
	})
}

// Snapshot builds the current aggregate server statistics.
func (m *Monitor) Snapshot() models.ServerStats {
	broadcasts, connections, listeners, activeCalls := m.station.Totals()
	return models.ServerStats{
		ActiveBroadcasts: broadcasts,
		TotalConnections: connections,
		TotalListeners:   listeners,
		TotalActiveCalls: activeCalls,
		UptimeSeconds:    time.Since(m.startedAt).Seconds(),
		At:               time.Now(),
	}
}

// Run pushes aggregate stats to every client on each tick until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.Snapshot()
			m.broadcast.SendAll(models.EventServerStats, stats)
			if m.publisher != nil {
				if err := m.publisher.PublishServerStats(stats); err != nil {
					m.log.Warn().Err(err).Msg("failed to publish server stats")
				}
			}
		}
	}
}
