package station

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/internal/models"
)

// Notifier delivers a server event to a single connection. The websocket
// hub implements it; tests substitute a recording fake. Delivery is
// fire-and-forget and must never block.
type Notifier interface {
	Send(connID uuid.UUID, event string, payload interface{})
}

// Mixer is the audio engine surface the station needs: allocate a channel
// when a caller goes live, release it when the call ends.
type Mixer interface {
	AddChannel(settings models.ChannelSettings) error
	RemoveChannel(id uuid.UUID)
}

// HistoryRecorder persists finished sessions and call outcomes. Optional;
// a nil recorder disables history.
type HistoryRecorder interface {
	RecordSession(session *models.BroadcastSession) error
	RecordCall(entry *models.CallLogEntry) error
}

// CountPublisher mirrors listener counts to shared infrastructure (the
// Redis pub/sub channel) so other nodes see them. Optional; a nil
// publisher keeps counts node-local.
type CountPublisher interface {
	PublishListenerCount(count models.ListenerCountPayload) error
}

type listener struct {
	joinedAt time.Time
	device   models.DeviceInfo
}

// broadcast is the authoritative state for one live session. All mutation
// happens under mu, which gives the single-writer-per-broadcast discipline.
type broadcast struct {
	mu sync.Mutex

	id              string
	broadcasterConn uuid.UUID
	info            models.BroadcasterInfo
	startedAt       time.Time
	ended           bool

	listeners map[uuid.UUID]listener
	queue     callQueue
	active    map[uuid.UUID]*models.ActiveCall

	offer   *models.OfferPayload
	stats   models.BroadcastStats
	quality map[uuid.UUID]models.QualityReport
}

// notification is an event gathered under a lock and delivered after it is
// released.
type notification struct {
	connID  uuid.UUID
	event   string
	payload interface{}
}

// Station owns the broadcast and connection registries plus the call
// queues. It is the single place that mutates broadcast state.
type Station struct {
	mu         sync.RWMutex
	broadcasts map[string]*broadcast
	conns      map[uuid.UUID]*models.Connection

	// callIndex maps callID -> broadcastID for pending and active calls.
	// Guarded by its own lock so queue paths holding a broadcast lock can
	// update it without touching the registry lock.
	callMu    sync.Mutex
	callIndex map[uuid.UUID]string

	notifier Notifier
	mixer    Mixer
	history  HistoryRecorder
	counts   CountPublisher

	maxActiveCalls int
	callExpiry     time.Duration

	log zerolog.Logger
}

// New creates a Station.
func New(notifier Notifier, mixer Mixer, maxActiveCalls int, callExpiry time.Duration, logger zerolog.Logger) *Station {
	return &Station{
		broadcasts:     make(map[string]*broadcast),
		conns:          make(map[uuid.UUID]*models.Connection),
		callIndex:      make(map[uuid.UUID]string),
		notifier:       notifier,
		mixer:          mixer,
		maxActiveCalls: maxActiveCalls,
		callExpiry:     callExpiry,
		log:            logger.With().Str("component", "station").Logger(),
	}
}

// SetHistory attaches an optional history recorder.
func (s *Station) SetHistory(h HistoryRecorder) { s.history = h }

// SetCountPublisher attaches an optional listener-count publisher.
func (s *Station) SetCountPublisher(p CountPublisher) { s.counts = p }

func (s *Station) publishCount(count models.ListenerCountPayload) {
	if s.counts == nil {
		return
	}
	if err := s.counts.PublishListenerCount(count); err != nil {
		s.log.Warn().
			Err(err).
			Str("broadcast_id", count.BroadcastID).
			Msg("failed to publish listener count")
	}
}

func (s *Station) deliver(notes []notification) {
	for _, n := range notes {
		s.notifier.Send(n.connID, n.event, n.payload)
	}
}

// Connect registers a new transport connection.
func (s *Station) Connect(connID uuid.UUID) {
	s.mu.Lock()
	s.conns[connID] = &models.Connection{ID: connID, ConnectedAt: time.Now()}
	s.mu.Unlock()
}

// Disconnect removes a connection and cascades cleanup for whatever role it
// held. Broadcaster disconnect tears the whole broadcast down.
func (s *Station) Disconnect(connID uuid.UUID) {
	s.mu.Lock()
	conn, ok := s.conns[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, connID)
	role, broadcastID := conn.Role, conn.BroadcastID
	s.mu.Unlock()

	if broadcastID == "" {
		return
	}
	if role == models.RoleBroadcaster {
		s.Teardown(broadcastID, "broadcaster disconnected")
		return
	}
	s.leave(connID, broadcastID)
}

// lookup fetches a broadcast by id.
func (s *Station) lookup(broadcastID string) (*broadcast, bool) {
	s.mu.RLock()
	b, ok := s.broadcasts[broadcastID]
	s.mu.RUnlock()
	return b, ok
}

func (s *Station) setConnMembership(connID uuid.UUID, broadcastID string, role models.Role) {
	s.mu.Lock()
	if conn, ok := s.conns[connID]; ok {
		conn.BroadcastID = broadcastID
		conn.Role = role
	}
	s.mu.Unlock()
}

func (s *Station) clearConnMembership(connID uuid.UUID) {
	s.mu.Lock()
	if conn, ok := s.conns[connID]; ok {
		conn.BroadcastID = ""
		conn.Role = ""
	}
	s.mu.Unlock()
}

// releaseMembership removes whatever broadcast membership the connection
// currently holds. A connection is a member of at most one broadcast at a
// time; joining, registering or calling while still inside another
// broadcast implicitly leaves it first.
func (s *Station) releaseMembership(connID uuid.UUID) {
	s.mu.RLock()
	conn, ok := s.conns[connID]
	var role models.Role
	var broadcastID string
	if ok {
		role, broadcastID = conn.Role, conn.BroadcastID
	}
	s.mu.RUnlock()

	if broadcastID == "" {
		return
	}
	if role == models.RoleBroadcaster {
		s.Teardown(broadcastID, "broadcaster left")
		return
	}
	s.leave(connID, broadcastID)
}

// RegisterBroadcaster creates a broadcast owned by connID. A broadcast id
// that ended earlier may be reused; that is a brand new session, not a
// resume.
func (s *Station) RegisterBroadcaster(connID uuid.UUID, broadcastID string, info models.BroadcasterInfo) error {
	s.releaseMembership(connID)

	s.mu.Lock()
	if _, exists := s.broadcasts[broadcastID]; exists {
		s.mu.Unlock()
		return ErrAlreadyLive
	}
	if _, ok := s.conns[connID]; !ok {
		s.mu.Unlock()
		return ErrConnectionNotFound
	}
	b := &broadcast{
		id:              broadcastID,
		broadcasterConn: connID,
		info:            info,
		startedAt:       time.Now(),
		listeners:       make(map[uuid.UUID]listener),
		active:          make(map[uuid.UUID]*models.ActiveCall),
		quality:         make(map[uuid.UUID]models.QualityReport),
	}
	s.broadcasts[broadcastID] = b
	if conn, ok := s.conns[connID]; ok {
		conn.BroadcastID = broadcastID
		conn.Role = models.RoleBroadcaster
	}
	s.mu.Unlock()

	s.log.Info().
		Str("broadcast_id", broadcastID).
		Str("station", info.StationName).
		Msg("broadcast registered")

	s.notifier.Send(connID, models.EventBroadcasterReady, models.BroadcasterReadyPayload{BroadcastID: broadcastID})
	return nil
}

// JoinListener adds a listener to a broadcast, bumping current and peak
// counts, and returns what the listener needs to start negotiating.
func (s *Station) JoinListener(connID uuid.UUID, broadcastID string, device models.DeviceInfo) (models.JoinResult, *models.OfferPayload, error) {
	s.releaseMembership(connID)

	b, ok := s.lookup(broadcastID)
	if !ok {
		return models.JoinResult{}, nil, ErrBroadcastNotFound
	}

	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return models.JoinResult{}, nil, ErrBroadcastNotFound
	}
	b.listeners[connID] = listener{joinedAt: time.Now(), device: device}
	b.stats.CurrentListeners = len(b.listeners)
	if b.stats.CurrentListeners > b.stats.PeakListeners {
		b.stats.PeakListeners = b.stats.CurrentListeners
	}
	result := models.JoinResult{
		HasOffer:    b.offer != nil,
		Broadcaster: b.info,
		Stats:       b.stats,
	}
	offer := b.offer
	count := models.ListenerCountPayload{
		BroadcastID: broadcastID,
		Current:     b.stats.CurrentListeners,
		Peak:        b.stats.PeakListeners,
	}
	broadcasterConn := b.broadcasterConn
	b.mu.Unlock()

	s.setConnMembership(connID, broadcastID, models.RoleListener)
	s.notifier.Send(broadcasterConn, models.EventListenerCount, count)
	s.publishCount(count)
	return result, offer, nil
}

// Leave removes the connection from whatever broadcast and role it holds.
// Idempotent: a second leave is a no-op.
func (s *Station) Leave(connID uuid.UUID) {
	s.mu.RLock()
	conn, ok := s.conns[connID]
	var broadcastID string
	if ok {
		broadcastID = conn.BroadcastID
	}
	s.mu.RUnlock()
	if !ok || broadcastID == "" {
		return
	}
	s.leave(connID, broadcastID)
}

func (s *Station) leave(connID uuid.UUID, broadcastID string) {
	b, ok := s.lookup(broadcastID)
	if !ok {
		s.clearConnMembership(connID)
		return
	}

	var notes []notification
	var removedChannel uuid.UUID
	var endedCall *models.ActiveCall

	var count *models.ListenerCountPayload

	b.mu.Lock()
	if _, isListener := b.listeners[connID]; isListener {
		delete(b.listeners, connID)
		b.stats.CurrentListeners = len(b.listeners)
		count = &models.ListenerCountPayload{
			BroadcastID: broadcastID,
			Current:     b.stats.CurrentListeners,
			Peak:        b.stats.PeakListeners,
		}
		notes = append(notes, notification{
			connID:  b.broadcasterConn,
			event:   models.EventListenerCount,
			payload: *count,
		})
	}
	// a leaving caller withdraws its pending request or ends its live call
	if req := b.queue.removeByConn(connID); req != nil {
		req.Status = models.CallRejected
		s.unindexCall(req.CallID)
	}
	for callID, call := range b.active {
		if call.CallerConnID == connID {
			delete(b.active, callID)
			removedChannel = call.AudioChannelID
			s.unindexCall(callID)
			notes = append(notes, notification{
				connID:  b.broadcasterConn,
				event:   models.EventCallEnded,
				payload: models.CallStatusPayload{CallID: callID, Reason: "caller left"},
			})
			endedCall = call
		}
	}
	delete(b.quality, connID)
	b.mu.Unlock()

	if removedChannel != uuid.Nil {
		s.mixer.RemoveChannel(removedChannel)
	}
	if endedCall != nil {
		s.recordCall(endedCall.CallID, broadcastID, endedCall.CallerName, models.CallEnded)
	}
	s.clearConnMembership(connID)
	s.deliver(notes)
	if count != nil {
		s.publishCount(*count)
	}
}

func (s *Station) indexCall(callID uuid.UUID, broadcastID string) {
	s.callMu.Lock()
	s.callIndex[callID] = broadcastID
	s.callMu.Unlock()
}

func (s *Station) unindexCall(callID uuid.UUID) {
	s.callMu.Lock()
	delete(s.callIndex, callID)
	s.callMu.Unlock()
}

func (s *Station) lookupCall(callID uuid.UUID) (string, bool) {
	s.callMu.Lock()
	broadcastID, ok := s.callIndex[callID]
	s.callMu.Unlock()
	return broadcastID, ok
}

// EndBroadcast is the explicit broadcaster-initiated stop.
func (s *Station) EndBroadcast(connID uuid.UUID, broadcastID string) error {
	b, ok := s.lookup(broadcastID)
	if !ok {
		return ErrBroadcastNotFound
	}
	b.mu.Lock()
	owner := b.broadcasterConn
	b.mu.Unlock()
	if owner != connID {
		return ErrUnauthorized
	}
	s.Teardown(broadcastID, "ended by broadcaster")
	return nil
}

// Teardown removes a broadcast and notifies every dependent connection.
// Listeners and pending callers get broadcast-ended; live callers get
// call-ended. Idempotent: tearing down an absent broadcast is a no-op.
func (s *Station) Teardown(broadcastID, reason string) {
	s.mu.Lock()
	b, ok := s.broadcasts[broadcastID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.broadcasts, broadcastID)
	s.mu.Unlock()

	var notes []notification
	var channels []uuid.UUID

	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return
	}
	b.ended = true

	endedPayload := models.BroadcastEndedPayload{BroadcastID: broadcastID, Reason: reason}
	members := make([]uuid.UUID, 0, len(b.listeners)+len(b.active)+b.queue.len()+1)
	for connID := range b.listeners {
		notes = append(notes, notification{connID: connID, event: models.EventBroadcastEnded, payload: endedPayload})
		members = append(members, connID)
	}
	for _, req := range b.queue.drain() {
		req.Status = models.CallEnded
		s.unindexCall(req.CallID)
		notes = append(notes, notification{connID: req.CallerConnID, event: models.EventBroadcastEnded, payload: endedPayload})
		members = append(members, req.CallerConnID)
	}
	endedCalls := make([]*models.ActiveCall, 0, len(b.active))
	for callID, call := range b.active {
		s.unindexCall(callID)
		channels = append(channels, call.AudioChannelID)
		notes = append(notes, notification{
			connID:  call.CallerConnID,
			event:   models.EventCallEnded,
			payload: models.CallStatusPayload{CallID: callID, Reason: reason},
		})
		members = append(members, call.CallerConnID)
		endedCalls = append(endedCalls, call)
	}
	b.active = make(map[uuid.UUID]*models.ActiveCall)
	session := &models.BroadcastSession{
		ID:            uuid.New(),
		BroadcastID:   broadcastID,
		StationName:   b.info.StationName,
		DisplayName:   b.info.DisplayName,
		PeakListeners: b.stats.PeakListeners,
		TotalCalls:    b.stats.TotalCalls,
		StartedAt:     b.startedAt,
		EndReason:     reason,
	}
	broadcasterConn := b.broadcasterConn
	b.mu.Unlock()

	for _, id := range channels {
		s.mixer.RemoveChannel(id)
	}
	for _, connID := range members {
		s.clearConnMembership(connID)
	}
	s.clearConnMembership(broadcasterConn)
	s.deliver(notes)

	for _, call := range endedCalls {
		s.recordCall(call.CallID, broadcastID, call.CallerName, models.CallEnded)
	}

	if s.history != nil {
		now := time.Now()
		session.EndedAt = &now
		if err := s.history.RecordSession(session); err != nil {
			s.log.Warn().Err(err).Str("broadcast_id", broadcastID).Msg("failed to record session history")
		}
	}

	s.log.Info().Str("broadcast_id", broadcastID).Str("reason", reason).Msg("broadcast torn down")
}

func (s *Station) recordCall(callID uuid.UUID, broadcastID, callerName string, outcome models.CallStatus) {
	if s.history == nil {
		return
	}
	now := time.Now()
	entry := &models.CallLogEntry{
		ID:          uuid.New(),
		CallID:      callID,
		BroadcastID: broadcastID,
		CallerName:  callerName,
		Outcome:     outcome,
		RequestedAt: now,
		EndedAt:     &now,
	}
	if err := s.history.RecordCall(entry); err != nil {
		s.log.Warn().Err(err).Str("call_id", callID.String()).Msg("failed to record call history")
	}
}

// SetOffer stores the broadcaster's current session description. Only the
// owning broadcaster connection may publish.
func (s *Station) SetOffer(connID uuid.UUID, offer *models.OfferPayload) error {
	b, ok := s.lookup(offer.BroadcastID)
	if !ok {
		return ErrBroadcastNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return ErrBroadcastNotFound
	}
	if b.broadcasterConn != connID {
		return ErrUnauthorized
	}
	b.offer = offer
	return nil
}

// RoomMembers returns every connection in the broadcast room: the
// broadcaster, all listeners and all live callers.
func (s *Station) RoomMembers(broadcastID string) ([]uuid.UUID, error) {
	b, ok := s.lookup(broadcastID)
	if !ok {
		return nil, ErrBroadcastNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return nil, ErrBroadcastNotFound
	}
	members := make([]uuid.UUID, 0, len(b.listeners)+len(b.active)+1)
	members = append(members, b.broadcasterConn)
	for connID := range b.listeners {
		members = append(members, connID)
	}
	for _, call := range b.active {
		members = append(members, call.CallerConnID)
	}
	return members, nil
}

// BroadcasterConn returns the owning connection of a broadcast.
func (s *Station) BroadcasterConn(broadcastID string) (uuid.UUID, error) {
	b, ok := s.lookup(broadcastID)
	if !ok {
		return uuid.Nil, ErrBroadcastNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return uuid.Nil, ErrBroadcastNotFound
	}
	return b.broadcasterConn, nil
}

// IsBroadcaster reports whether connID owns the given broadcast.
func (s *Station) IsBroadcaster(connID uuid.UUID, broadcastID string) bool {
	owner, err := s.BroadcasterConn(broadcastID)
	return err == nil && owner == connID
}

// CountMessage bumps the broadcast's relayed-message statistic.
func (s *Station) CountMessage(broadcastID string) {
	if b, ok := s.lookup(broadcastID); ok {
		b.mu.Lock()
		b.stats.TotalMessages++
		b.mu.Unlock()
	}
}

// RecordQuality stores a connection's latest quality sample on its
// broadcast and returns the broadcaster connection that should receive any
// alert. ok is false when the connection is not part of a broadcast.
func (s *Station) RecordQuality(connID uuid.UUID, report models.QualityReport) (broadcasterConn uuid.UUID, ok bool) {
	s.mu.RLock()
	conn, found := s.conns[connID]
	var broadcastID string
	if found {
		broadcastID = conn.BroadcastID
	}
	s.mu.RUnlock()
	if !found || broadcastID == "" {
		return uuid.Nil, false
	}
	b, exists := s.lookup(broadcastID)
	if !exists {
		return uuid.Nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return uuid.Nil, false
	}
	report.At = time.Now()
	b.quality[connID] = report
	return b.broadcasterConn, true
}

// Totals is the read-only aggregate snapshot used by telemetry. Taken with
// read locks only so it never blocks writers for long.
func (s *Station) Totals() (broadcasts, connections, listeners, activeCalls int) {
	s.mu.RLock()
	connections = len(s.conns)
	all := make([]*broadcast, 0, len(s.broadcasts))
	for _, b := range s.broadcasts {
		all = append(all, b)
	}
	s.mu.RUnlock()

	broadcasts = len(all)
	for _, b := range all {
		b.mu.Lock()
		listeners += len(b.listeners)
		activeCalls += len(b.active)
		b.mu.Unlock()
	}
	return broadcasts, connections, listeners, activeCalls
}

// ListBroadcasts returns the live-broadcast directory.
func (s *Station) ListBroadcasts() []models.BroadcastSummary {
	s.mu.RLock()
	all := make([]*broadcast, 0, len(s.broadcasts))
	for _, b := range s.broadcasts {
		all = append(all, b)
	}
	s.mu.RUnlock()

	summaries := make([]models.BroadcastSummary, 0, len(all))
	for _, b := range all {
		b.mu.Lock()
		summaries = append(summaries, models.BroadcastSummary{
			ID:          b.id,
			Broadcaster: b.info,
			IsLive:      !b.ended,
			StartedAt:   b.startedAt,
			Listeners:   len(b.listeners),
			QueueLength: b.queue.len(),
			ActiveCalls: len(b.active),
		})
		b.mu.Unlock()
	}
	return summaries
}

// GetBroadcast returns the directory entry for one broadcast.
func (s *Station) GetBroadcast(broadcastID string) (models.BroadcastSummary, error) {
	b, ok := s.lookup(broadcastID)
	if !ok {
		return models.BroadcastSummary{}, ErrBroadcastNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.BroadcastSummary{
		ID:          b.id,
		Broadcaster: b.info,
		IsLive:      !b.ended,
		StartedAt:   b.startedAt,
		Listeners:   len(b.listeners),
		QueueLength: b.queue.len(),
		ActiveCalls: len(b.active),
	}, nil
}

// RunExpiry sweeps stale pending call requests until ctx is cancelled.
func (s *Station) RunExpiry(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.ExpireStale(now); n > 0 {
				s.log.Info().Int("expired", n).Msg("expired stale call requests")
			}
		}
	}
}
