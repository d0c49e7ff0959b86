package station

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aircast/backend/internal/models"
)

func TestSubmitCall_FIFOPositions(t *testing.T) {
	st, notifier, _ := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		caller := connect(st)
		callID, pos, err := st.SubmitCall(caller, "b1", "Caller", "")
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if pos != i {
			t.Errorf("submit %d: position = %d, want %d", i, pos, i)
		}
		ids[i] = callID
	}

	// Broadcaster is notified once per submission.
	if got := notifier.countFor(host, models.EventRequestCall); got != 3 {
		t.Errorf("request-call notifications = %d, want 3", got)
	}

	// Accepting the head shifts everyone up.
	if err := st.AcceptCall(host, ids[0]); err != nil {
		t.Fatalf("accept: %v", err)
	}
	pos, err := st.QueuePosition(ids[1])
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos != 0 {
		t.Errorf("position after head accepted = %d, want 0", pos)
	}
	pos, err = st.QueuePosition(ids[2])
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos != 1 {
		t.Errorf("position of second pending = %d, want 1", pos)
	}
}

func TestSubmitCall_UnknownBroadcast(t *testing.T) {
	st, _, _ := newTestStation(4)

	caller := connect(st)
	if _, _, err := st.SubmitCall(caller, "nope", "Jane", ""); !errors.Is(err, ErrBroadcastNotFound) {
		t.Errorf("got %v, want ErrBroadcastNotFound", err)
	}
}

func TestAcceptCall_CapacityBound(t *testing.T) {
	st, notifier, mixer := newTestStation(2)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		callID, _, err := st.SubmitCall(connect(st), "b1", "Caller", "")
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = callID
	}

	if err := st.AcceptCall(host, ids[0]); err != nil {
		t.Fatalf("accept 0: %v", err)
	}
	if err := st.AcceptCall(host, ids[1]); err != nil {
		t.Fatalf("accept 1: %v", err)
	}

	// Third accept exceeds the cap and leaves the request pending.
	if err := st.AcceptCall(host, ids[2]); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("accept over capacity: got %v, want ErrCapacityExceeded", err)
	}
	if pos, err := st.QueuePosition(ids[2]); err != nil || pos != 0 {
		t.Errorf("rejected accept should leave the call queued at 0, got pos=%d err=%v", pos, err)
	}
	if mixer.channelCount() != 2 {
		t.Errorf("mixer channels = %d, want 2", mixer.channelCount())
	}

	// Ending an active call frees a slot.
	if err := st.EndCall(host, ids[0]); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := st.AcceptCall(host, ids[2]); err != nil {
		t.Fatalf("accept after slot freed: %v", err)
	}
	if got := notifier.count(models.EventCallAccepted); got != 3 {
		t.Errorf("call-accepted events = %d, want 3", got)
	}
}

func TestAcceptCall_Unauthorized(t *testing.T) {
	st, _, _ := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	caller := connect(st)
	callID, _, err := st.SubmitCall(caller, "b1", "Jane", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := st.AcceptCall(caller, callID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("caller accepting own call: got %v, want ErrUnauthorized", err)
	}
	if err := st.AcceptCall(host, uuid.New()); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("unknown call id: got %v, want ErrCallNotFound", err)
	}
}

func TestAcceptCall_MixerFailureRollsBack(t *testing.T) {
	st, _, mixer := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	callID, _, err := st.SubmitCall(connect(st), "b1", "Jane", "")
	if err != nil {
		t.Fatal(err)
	}

	mixer.failWith = errors.New("no input slots")
	if err := st.AcceptCall(host, callID); err == nil {
		t.Fatal("expected accept to fail when the mixer cannot allocate")
	}

	// The request stays pending and can be accepted once a slot opens.
	mixer.failWith = nil
	if pos, err := st.QueuePosition(callID); err != nil || pos != 0 {
		t.Fatalf("call should still be queued, got pos=%d err=%v", pos, err)
	}
	if err := st.AcceptCall(host, callID); err != nil {
		t.Fatalf("retry accept: %v", err)
	}
}

func TestRejectCall(t *testing.T) {
	st, notifier, _ := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	caller := connect(st)
	callID, _, err := st.SubmitCall(caller, "b1", "Jane", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := st.RejectCall(host, callID, ""); err != nil {
		t.Fatalf("reject: %v", err)
	}
	ev, ok := notifier.last(models.EventCallRejected)
	if !ok {
		t.Fatal("caller did not receive call-rejected")
	}
	if ev.connID != caller {
		t.Error("call-rejected sent to the wrong connection")
	}
	payload, ok := ev.payload.(models.CallStatusPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", ev.payload)
	}
	if payload.Reason != "declined by host" {
		t.Errorf("default reason = %q, want %q", payload.Reason, "declined by host")
	}

	if _, err := st.QueuePosition(callID); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("rejected call still queued: %v", err)
	}
	// Rejecting again is an error, not a second notification.
	if err := st.RejectCall(host, callID, ""); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("double reject: got %v, want ErrCallNotFound", err)
	}
}

func TestWithdrawCall(t *testing.T) {
	st, notifier, _ := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	caller := connect(st)
	other := connect(st)
	callID, _, err := st.SubmitCall(caller, "b1", "Jane", "")
	if err != nil {
		t.Fatal(err)
	}

	// Only the owner can withdraw.
	st.WithdrawCall(other, callID)
	if _, err := st.QueuePosition(callID); err != nil {
		t.Fatal("withdraw by a different connection removed the call")
	}

	st.WithdrawCall(caller, callID)
	if _, err := st.QueuePosition(callID); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("withdrawn call still queued: %v", err)
	}
	st.WithdrawCall(caller, callID) // idempotent

	if err := st.AcceptCall(host, callID); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("accepting a withdrawn call: got %v, want ErrCallNotFound", err)
	}
	if notifier.count(models.EventCallAccepted) != 0 {
		t.Error("no call-accepted should be sent for a withdrawn call")
	}
}

func TestEndCall_EitherParty(t *testing.T) {
	st, notifier, mixer := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	caller := connect(st)
	callID, _, err := st.SubmitCall(caller, "b1", "Jane", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AcceptCall(host, callID); err != nil {
		t.Fatal(err)
	}

	stranger := connect(st)
	if err := st.EndCall(stranger, callID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("stranger ending call: got %v, want ErrUnauthorized", err)
	}

	if err := st.EndCall(caller, callID); err != nil {
		t.Fatalf("caller ending own call: %v", err)
	}
	if mixer.channelCount() != 0 {
		t.Error("audio channel should be released when the call ends")
	}
	if notifier.countFor(host, models.EventCallEnded) != 1 {
		t.Error("broadcaster should be told the call ended")
	}
	if err := st.EndCall(caller, callID); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("double end: got %v, want ErrCallNotFound", err)
	}
}

func TestExpireStale(t *testing.T) {
	st, notifier, _ := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	stale := connect(st)
	staleID, _, err := st.SubmitCall(stale, "b1", "Old", "")
	if err != nil {
		t.Fatal(err)
	}

	// Nothing is old enough yet.
	if n := st.ExpireStale(time.Now()); n != 0 {
		t.Fatalf("expired %d fresh calls", n)
	}

	// Jump past the expiry window.
	future := time.Now().Add(6 * time.Minute)
	if n := st.ExpireStale(future); n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if got := notifier.countFor(stale, models.EventCallTimeout); got != 1 {
		t.Errorf("call-timeout count = %d, want exactly 1", got)
	}
	if notifier.countFor(stale, models.EventCallRejected) != 0 {
		t.Error("an expired call must not also be rejected")
	}
	if _, err := st.QueuePosition(staleID); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("expired call still queued: %v", err)
	}

	// A second sweep finds nothing.
	if n := st.ExpireStale(future.Add(time.Minute)); n != 0 {
		t.Errorf("second sweep expired %d calls", n)
	}
}

// Full host/caller session: request, wait, accept, talk, hang up.
func TestCallLifecycle(t *testing.T) {
	st, notifier, mixer := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	listener := connect(st)
	if _, _, err := st.JoinListener(listener, "b1", models.DeviceInfo{}); err != nil {
		t.Fatal(err)
	}

	jane := connect(st)
	callID, pos, err := st.SubmitCall(jane, "b1", "Jane", "Lisbon")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if pos != 0 {
		t.Errorf("first caller position = %d, want 0", pos)
	}
	ev, ok := notifier.last(models.EventCallPending)
	if !ok || ev.connID != jane {
		t.Fatal("caller did not receive call-pending")
	}

	req, ok := notifier.last(models.EventRequestCall)
	if !ok || req.connID != host {
		t.Fatal("broadcaster did not receive the call request")
	}
	forwarded, ok := req.payload.(models.CallRequest)
	if !ok {
		t.Fatalf("unexpected request payload type %T", req.payload)
	}
	if forwarded.CallerName != "Jane" || forwarded.CallerLocation != "Lisbon" {
		t.Errorf("forwarded request = %+v", forwarded)
	}

	if err := st.AcceptCall(host, callID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if notifier.countFor(jane, models.EventCallAccepted) != 1 {
		t.Error("caller did not receive call-accepted")
	}
	if mixer.channelCount() != 1 {
		t.Error("accepting the call should allocate an audio channel")
	}

	if err := st.EndCall(host, callID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if notifier.countFor(jane, models.EventCallEnded) != 1 {
		t.Error("caller did not receive call-ended")
	}

	// The broadcast itself is untouched.
	summary, err := st.GetBroadcast("b1")
	if err != nil {
		t.Fatal(err)
	}
	if !summary.IsLive || summary.Listeners != 1 {
		t.Errorf("broadcast disturbed by call lifecycle: %+v", summary)
	}
}

func TestAcceptCall_TeardownDuringChannelAllocation(t *testing.T) {
	st, notifier, mixer := newTestStation(4)

	host := connect(st)
	if err := st.RegisterBroadcaster(host, "b1", testInfo); err != nil {
		t.Fatalf("register: %v", err)
	}
	caller := connect(st)
	callID, _, err := st.SubmitCall(caller, "b1", "Jane", "")
	if err != nil {
		t.Fatal(err)
	}

	// The broadcast ends while the mixer channel is still being allocated.
	// The accept must release the channel instead of leaking it, and the
	// caller must not see call-accepted after broadcast-ended.
	mixer.onAdd = func() {
		st.Teardown("b1", "broadcaster disconnected")
	}
	if err := st.AcceptCall(host, callID); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("accept during teardown: got %v, want ErrCallNotFound", err)
	}

	if got := mixer.channelCount(); got != 0 {
		t.Errorf("allocated channels = %d, want 0", got)
	}
	if notifier.countFor(caller, models.EventCallAccepted) != 0 {
		t.Error("caller must not receive call-accepted for a torn-down broadcast")
	}
	if notifier.countFor(caller, models.EventCallEnded) != 1 {
		t.Error("caller should have been told the call ended with the broadcast")
	}
}
