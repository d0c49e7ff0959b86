package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QualityLevel buckets a connection's self-reported stream quality.
type QualityLevel string

const (
	QualityExcellent QualityLevel = "excellent"
	QualityGood      QualityLevel = "good"
	QualityFair      QualityLevel = "fair"
	QualityPoor      QualityLevel = "poor"
)

func (q QualityLevel) Valid() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return true
	}
	return false
}

// QualityReport is one connection's latest stream-quality sample.
type QualityReport struct {
	Bitrate   int          `json:"bitrate"`
	LatencyMS float64      `json:"latency_ms"`
	JitterMS  float64      `json:"jitter_ms"`
	Quality   QualityLevel `json:"quality"`
	At        time.Time    `json:"at,omitempty"`
}

func (r *QualityReport) Validate() error {
	if !r.Quality.Valid() {
		return fmt.Errorf("unknown quality level: %q", r.Quality)
	}
	if r.Bitrate < 0 {
		return fmt.Errorf("bitrate cannot be negative")
	}
	if r.LatencyMS < 0 || r.JitterMS < 0 {
		return fmt.Errorf("latency and jitter cannot be negative")
	}
	return nil
}

// QualityAlertPayload is sent to the broadcaster when a connection reports
// poor quality.
type QualityAlertPayload struct {
	ConnectionID uuid.UUID     `json:"connection_id"`
	Report       QualityReport `json:"report"`
}

// ServerStats is the periodic aggregate pushed to every client.
type ServerStats struct {
	ActiveBroadcasts int           `json:"active_broadcasts"`
	TotalConnections int           `json:"total_connections"`
	TotalListeners   int           `json:"total_listeners"`
	TotalActiveCalls int           `json:"total_active_calls"`
	UptimeSeconds    float64       `json:"uptime_seconds"`
	At               time.Time     `json:"at"`
}

// LevelReading is one analyzer sample from the master bus.
type LevelReading struct {
	Instant float64   `json:"instant"`
	Peak    float64   `json:"peak"`
	At      time.Time `json:"at"`
}
