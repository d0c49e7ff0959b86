package station

import (
	"time"

	"github.com/google/uuid"

	"github.com/aircast/backend/internal/models"
)

// SubmitCall appends a call request to the broadcast's FIFO queue and
// returns the new call id and its 0-based queue position. The position is a
// point-in-time reading, not a stable identifier.
func (s *Station) SubmitCall(connID uuid.UUID, broadcastID, callerName, callerLocation string) (uuid.UUID, int, error) {
	s.releaseMembership(connID)

	b, ok := s.lookup(broadcastID)
	if !ok {
		return uuid.Nil, 0, ErrBroadcastNotFound
	}

	req := &models.CallRequest{
		CallID:         uuid.New(),
		CallerConnID:   connID,
		CallerName:     callerName,
		CallerLocation: callerLocation,
		RequestedAt:    time.Now(),
		Status:         models.CallPending,
	}

	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return uuid.Nil, 0, ErrBroadcastNotFound
	}
	position := b.queue.push(req)
	broadcasterConn := b.broadcasterConn
	b.mu.Unlock()

	s.indexCall(req.CallID, broadcastID)
	s.setConnMembership(connID, broadcastID, models.RoleCaller)

	s.log.Info().
		Str("broadcast_id", broadcastID).
		Str("call_id", req.CallID.String()).
		Int("position", position).
		Msg("call request queued")

	s.notifier.Send(connID, models.EventCallPending, models.CallPendingPayload{CallID: req.CallID, Position: position})
	s.notifier.Send(broadcasterConn, models.EventRequestCall, models.CallRequest{
		CallID:         req.CallID,
		CallerConnID:   connID,
		CallerName:     callerName,
		CallerLocation: callerLocation,
		RequestedAt:    req.RequestedAt,
		Status:         models.CallPending,
	})
	return req.CallID, position, nil
}

// QueuePosition recomputes the caller's current 0-based position among
// pending requests. Returns ErrCallNotFound once the request has been
// accepted, rejected or expired.
func (s *Station) QueuePosition(callID uuid.UUID) (int, error) {
	broadcastID, ok := s.lookupCall(callID)
	if !ok {
		return 0, ErrCallNotFound
	}
	b, found := s.lookup(broadcastID)
	if !found {
		return 0, ErrCallNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pos := b.queue.position(callID)
	if pos < 0 {
		return 0, ErrCallNotFound
	}
	return pos, nil
}

// AcceptCall promotes a pending request to a live call: removes it from the
// queue, allocates a line-type mixer channel and notifies the caller. Fails
// with ErrCapacityExceeded when the broadcast already carries its maximum
// of simultaneous live calls; the request stays pending.
func (s *Station) AcceptCall(byConn, callID uuid.UUID) error {
	broadcastID, ok := s.lookupCall(callID)
	if !ok {
		return ErrCallNotFound
	}
	b, found := s.lookup(broadcastID)
	if !found {
		return ErrCallNotFound
	}

	b.mu.Lock()
	if b.broadcasterConn != byConn {
		b.mu.Unlock()
		return ErrUnauthorized
	}
	if len(b.active) >= s.maxActiveCalls {
		b.mu.Unlock()
		return ErrCapacityExceeded
	}
	req := b.queue.remove(callID)
	if req == nil || !req.Status.CanTransitionTo(models.CallAccepted) {
		b.mu.Unlock()
		return ErrCallNotFound
	}
	req.Status = models.CallActive

	settings := models.DefaultChannelSettings(models.ChannelLine, req.CallerName)
	call := &models.ActiveCall{
		CallID:         callID,
		CallerConnID:   req.CallerConnID,
		CallerName:     req.CallerName,
		AudioChannelID: settings.ID,
		AcceptedAt:     time.Now(),
	}
	b.active[callID] = call
	b.stats.TotalCalls++
	callerConn := req.CallerConnID
	b.mu.Unlock()

	if err := s.mixer.AddChannel(settings); err != nil {
		// roll the call back so the queue state stays consistent
		b.mu.Lock()
		delete(b.active, callID)
		b.stats.TotalCalls--
		req.Status = models.CallPending
		b.queue.push(req)
		b.mu.Unlock()
		return err
	}

	// The broadcast may have ended, or the caller hung up, while the
	// channel was being allocated. In that case the teardown path has
	// already settled the call; release the fresh channel instead of
	// leaking it.
	b.mu.Lock()
	_, still := b.active[callID]
	ended := b.ended
	b.mu.Unlock()
	if ended || !still {
		s.mixer.RemoveChannel(settings.ID)
		return ErrCallNotFound
	}

	s.log.Info().
		Str("broadcast_id", broadcastID).
		Str("call_id", callID.String()).
		Str("caller", call.CallerName).
		Msg("call accepted")

	s.notifier.Send(callerConn, models.EventCallAccepted, models.CallStatusPayload{CallID: callID})
	return nil
}

// RejectCall removes a pending request and notifies the caller with the
// given reason.
func (s *Station) RejectCall(byConn, callID uuid.UUID, reason string) error {
	broadcastID, ok := s.lookupCall(callID)
	if !ok {
		return ErrCallNotFound
	}
	b, found := s.lookup(broadcastID)
	if !found {
		return ErrCallNotFound
	}
	if reason == "" {
		reason = "declined by host"
	}

	b.mu.Lock()
	if b.broadcasterConn != byConn {
		b.mu.Unlock()
		return ErrUnauthorized
	}
	req := b.queue.remove(callID)
	if req == nil || !req.Status.CanTransitionTo(models.CallRejected) {
		b.mu.Unlock()
		return ErrCallNotFound
	}
	req.Status = models.CallRejected
	callerConn := req.CallerConnID
	b.mu.Unlock()

	s.unindexCall(callID)
	s.clearConnMembership(callerConn)
	s.recordCall(callID, broadcastID, req.CallerName, models.CallRejected)
	s.notifier.Send(callerConn, models.EventCallRejected, models.CallStatusPayload{CallID: callID, Reason: reason})
	return nil
}

// WithdrawCall lets a caller cancel its own pending request. Treated as a
// reject-equivalent cleanup; idempotent when the request is already gone.
func (s *Station) WithdrawCall(connID, callID uuid.UUID) {
	broadcastID, ok := s.lookupCall(callID)
	if !ok {
		return
	}
	b, found := s.lookup(broadcastID)
	if !found {
		return
	}

	b.mu.Lock()
	req := b.queue.get(callID)
	if req == nil || req.CallerConnID != connID {
		b.mu.Unlock()
		return
	}
	b.queue.remove(callID)
	req.Status = models.CallRejected
	b.mu.Unlock()

	s.unindexCall(callID)
	s.clearConnMembership(connID)
	s.log.Info().Str("call_id", callID.String()).Msg("call request withdrawn")
}

// EndCall takes a live caller off the air, releases its mixer channel and
// notifies both parties. Either the broadcaster or the caller itself may
// end a call.
func (s *Station) EndCall(byConn, callID uuid.UUID) error {
	broadcastID, ok := s.lookupCall(callID)
	if !ok {
		return ErrCallNotFound
	}
	b, found := s.lookup(broadcastID)
	if !found {
		return ErrCallNotFound
	}

	b.mu.Lock()
	call, exists := b.active[callID]
	if !exists {
		b.mu.Unlock()
		return ErrCallNotFound
	}
	if byConn != b.broadcasterConn && byConn != call.CallerConnID {
		b.mu.Unlock()
		return ErrUnauthorized
	}
	delete(b.active, callID)
	broadcasterConn := b.broadcasterConn
	b.mu.Unlock()

	s.unindexCall(callID)
	s.mixer.RemoveChannel(call.AudioChannelID)
	s.clearConnMembership(call.CallerConnID)
	s.recordCall(callID, broadcastID, call.CallerName, models.CallEnded)

	payload := models.CallStatusPayload{CallID: callID}
	s.notifier.Send(call.CallerConnID, models.EventCallEnded, payload)
	s.notifier.Send(broadcasterConn, models.EventCallEnded, payload)

	s.log.Info().
		Str("broadcast_id", broadcastID).
		Str("call_id", callID.String()).
		Msg("call ended")
	return nil
}

// ExpireStale sweeps every broadcast's queue, removing pending requests
// older than the configured threshold. Each expired caller receives exactly
// one call-timeout notification. Returns the number of expired requests.
func (s *Station) ExpireStale(now time.Time) int {
	s.mu.RLock()
	all := make([]*broadcast, 0, len(s.broadcasts))
	for _, b := range s.broadcasts {
		all = append(all, b)
	}
	s.mu.RUnlock()

	total := 0
	for _, b := range all {
		b.mu.Lock()
		expired := b.queue.expire(now, s.callExpiry)
		broadcastID := b.id
		b.mu.Unlock()

		for _, req := range expired {
			req.Status = models.CallTimedOut
			s.unindexCall(req.CallID)
			s.clearConnMembership(req.CallerConnID)
			s.recordCall(req.CallID, broadcastID, req.CallerName, models.CallTimedOut)
			s.notifier.Send(req.CallerConnID, models.EventCallTimeout, models.CallStatusPayload{
				CallID: req.CallID,
				Reason: "request timed out",
			})
			total++
		}
	}
	return total
}
