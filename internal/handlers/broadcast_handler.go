package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aircast/backend/internal/audio"
	"github.com/aircast/backend/internal/models"
	"github.com/aircast/backend/internal/repository"
	"github.com/aircast/backend/internal/station"
	"github.com/aircast/backend/internal/telemetry"
)

// Directory is the shared live-broadcast index (backed by Redis) that lets
// one node list broadcasts hosted on its siblings. Optional; a nil
// directory limits the listing to this node.
type Directory interface {
	GetLiveBroadcasts() ([]models.BroadcastSummary, error)
}

// BroadcastHandler exposes the read-only REST surface: the live directory,
// per-broadcast stats, aggregate server stats, master-bus levels and
// (when a database is configured) broadcast history.
type BroadcastHandler struct {
	station   *station.Station
	monitor   *telemetry.Monitor
	engine    *audio.Engine
	history   *repository.HistoryRepository
	directory Directory
}

func NewBroadcastHandler(st *station.Station, monitor *telemetry.Monitor, engine *audio.Engine, history *repository.HistoryRepository, directory Directory) *BroadcastHandler {
	return &BroadcastHandler{station: st, monitor: monitor, engine: engine, history: history, directory: directory}
}

// ListBroadcasts returns the live-broadcast directory. Local broadcasts are
// authoritative; entries from the shared directory are merged in for ids
// this node does not host. The shared lookup is best effort, a failure
// still serves the local view.
func (h *BroadcastHandler) ListBroadcasts(c *gin.Context) {
	summaries := h.station.ListBroadcasts()
	if h.directory != nil {
		local := make(map[string]bool, len(summaries))
		for _, s := range summaries {
			local[s.ID] = true
		}
		if remote, err := h.directory.GetLiveBroadcasts(); err == nil {
			for _, r := range remote {
				if !local[r.ID] {
					summaries = append(summaries, r)
				}
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"broadcasts": summaries,
		"count":      len(summaries),
	})
}

// GetBroadcast returns one broadcast's directory entry
func (h *BroadcastHandler) GetBroadcast(c *gin.Context) {
	summary, err := h.station.GetBroadcast(c.Param("id"))
	if err != nil {
		if errors.Is(err, station.ErrBroadcastNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Broadcast not found")
			return
		}
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get broadcast")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetServerStats returns the current aggregate statistics
func (h *BroadcastHandler) GetServerStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

// GetLevels returns the master bus analyzer reading
func (h *BroadcastHandler) GetLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Levels())
}

// ListSessions returns recently finished broadcast sessions
func (h *BroadcastHandler) ListSessions(c *gin.Context) {
	if h.history == nil {
		ErrorResponse(c, http.StatusServiceUnavailable, "History is not configured")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sessions, err := h.history.RecentSessions(limit)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ListCalls returns the call log for a broadcast id
func (h *BroadcastHandler) ListCalls(c *gin.Context) {
	if h.history == nil {
		ErrorResponse(c, http.StatusServiceUnavailable, "History is not configured")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	calls, err := h.history.CallsForBroadcast(c.Param("id"), limit)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to list calls")
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}
