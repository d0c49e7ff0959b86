package models

import "testing"

func TestCallStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to CallStatus
		want     bool
	}{
		{CallPending, CallAccepted, true},
		{CallPending, CallRejected, true},
		{CallPending, CallTimedOut, true},
		{CallPending, CallActive, false},
		{CallPending, CallEnded, true},
		{CallAccepted, CallActive, true},
		{CallAccepted, CallEnded, true},
		{CallAccepted, CallPending, false},
		{CallActive, CallEnded, true},
		{CallActive, CallPending, false},
		{CallActive, CallAccepted, false},
		{CallRejected, CallPending, false},
		{CallRejected, CallAccepted, false},
		{CallEnded, CallActive, false},
		{CallTimedOut, CallPending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCallRequestValidate(t *testing.T) {
	req := CallRequest{CallerName: "Jane"}
	if err := req.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	req.CallerName = ""
	if err := req.Validate(); err == nil {
		t.Error("nameless request accepted")
	}

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	req.CallerName = string(long)
	if err := req.Validate(); err == nil {
		t.Error("oversized name accepted")
	}
}
