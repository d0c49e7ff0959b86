package repository

import (
	"fmt"

	"github.com/aircast/backend/internal/database"
	"github.com/aircast/backend/internal/models"
)

// HistoryRepository persists finished broadcast sessions and call outcomes.
type HistoryRepository struct {
	db *database.DB
}

func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) RecordSession(s *models.BroadcastSession) error {
	query := `
        INSERT INTO broadcast_sessions (id, broadcast_id, station_name, display_name, peak_listeners, total_calls, started_at, ended_at, end_reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `
	_, err := r.db.Exec(query,
		s.ID,
		s.BroadcastID,
		s.StationName,
		s.DisplayName,
		s.PeakListeners,
		s.TotalCalls,
		s.StartedAt,
		s.EndedAt,
		s.EndReason,
	)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

func (r *HistoryRepository) RecordCall(e *models.CallLogEntry) error {
	query := `
        INSERT INTO call_log (id, call_id, broadcast_id, caller_name, outcome, requested_at, ended_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `
	_, err := r.db.Exec(query,
		e.ID,
		e.CallID,
		e.BroadcastID,
		e.CallerName,
		e.Outcome,
		e.RequestedAt,
		e.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	return nil
}

// RecentSessions returns the latest finished sessions, newest first.
func (r *HistoryRepository) RecentSessions(limit int) ([]models.BroadcastSession, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
        SELECT id, broadcast_id, station_name, display_name, peak_listeners, total_calls, started_at, ended_at, end_reason
        FROM broadcast_sessions ORDER BY started_at DESC LIMIT $1
    `
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.BroadcastSession
	for rows.Next() {
		var s models.BroadcastSession
		if err := rows.Scan(
			&s.ID,
			&s.BroadcastID,
			&s.StationName,
			&s.DisplayName,
			&s.PeakListeners,
			&s.TotalCalls,
			&s.StartedAt,
			&s.EndedAt,
			&s.EndReason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CallsForBroadcast returns the call log for one broadcast id.
func (r *HistoryRepository) CallsForBroadcast(broadcastID string, limit int) ([]models.CallLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
        SELECT id, call_id, broadcast_id, caller_name, outcome, requested_at, ended_at
        FROM call_log WHERE broadcast_id = $1 ORDER BY requested_at DESC LIMIT $2
    `
	rows, err := r.db.Query(query, broadcastID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var entries []models.CallLogEntry
	for rows.Next() {
		var e models.CallLogEntry
		if err := rows.Scan(
			&e.ID,
			&e.CallID,
			&e.BroadcastID,
			&e.CallerName,
			&e.Outcome,
			&e.RequestedAt,
			&e.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
