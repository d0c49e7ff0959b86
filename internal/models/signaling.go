package models

import (
	"fmt"

	"github.com/google/uuid"
)

// WebSocket event types. Client-to-server events on the left column of the
// protocol table, server-to-client events on the right.
const (
	EventJoinBroadcaster  = "join-as-broadcaster"
	EventJoinListener     = "join-as-listener"
	EventBroadcasterOffer = "broadcaster-offer"
	EventListenerAnswer   = "listener-answer"
	EventRelayCandidate   = "relay-candidate"
	EventRequestCall      = "request-call"
	EventWithdrawCall     = "withdraw-call"
	EventAcceptCall       = "accept-call"
	EventRejectCall       = "reject-call"
	EventEndCall          = "end-call"
	EventEndBroadcast     = "end-broadcast"
	EventReportQuality    = "report-quality"

	EventBroadcasterReady = "broadcaster-ready"
	EventBroadcastInfo    = "broadcast-info"
	EventListenerCount    = "listener-count"
	EventBroadcastEnded   = "broadcast-ended"
	EventCallPending      = "call-pending"
	EventCallAccepted     = "call-accepted"
	EventCallRejected     = "call-rejected"
	EventCallEnded        = "call-ended"
	EventCallTimeout      = "call-timeout"
	EventQualityAlert     = "audio-quality-alert"
	EventServerStats      = "server-stats"
	EventError            = "error"
)

// WSMessage is the envelope every signaling message travels in.
type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// SessionDescription is an opaque negotiated media description; the server
// relays it without inspecting its contents.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (d *SessionDescription) Validate() error {
	if d.Type != "offer" && d.Type != "answer" {
		return fmt.Errorf("invalid session description type: %q", d.Type)
	}
	if d.SDP == "" {
		return fmt.Errorf("session description is empty")
	}
	return nil
}

// MediaConfig describes the stream parameters attached to an offer. Unset
// fields are filled from server defaults before fan-out.
type MediaConfig struct {
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Bitrate    int    `json:"bitrate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// Merge fills unset fields from defaults.
func (m MediaConfig) Merge(defaults MediaConfig) MediaConfig {
	if m.Codec == "" {
		m.Codec = defaults.Codec
	}
	if m.SampleRate == 0 {
		m.SampleRate = defaults.SampleRate
	}
	if m.Bitrate == 0 {
		m.Bitrate = defaults.Bitrate
	}
	if m.Channels == 0 {
		m.Channels = defaults.Channels
	}
	return m
}

// Candidate is a connectivity option relayed between peers.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid,omitempty"`
	SDPMLineIndex int    `json:"sdp_mline_index"`
}

func (c *Candidate) Validate() error {
	if c.Candidate == "" {
		return fmt.Errorf("candidate is empty")
	}
	return nil
}

// DeviceInfo is client-reported playback/capture metadata.
type DeviceInfo struct {
	UserAgent  string `json:"user_agent,omitempty"`
	OutputKind string `json:"output_kind,omitempty"`
}

// Client-to-server payloads.

type JoinBroadcasterPayload struct {
	BroadcastID string `json:"broadcast_id"`
	Token       string `json:"token"`
}

func (p *JoinBroadcasterPayload) Validate() error {
	if p.BroadcastID == "" {
		return fmt.Errorf("broadcast_id is required")
	}
	if p.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

type JoinListenerPayload struct {
	BroadcastID string     `json:"broadcast_id"`
	Device      DeviceInfo `json:"device,omitempty"`
}

func (p *JoinListenerPayload) Validate() error {
	if p.BroadcastID == "" {
		return fmt.Errorf("broadcast_id is required")
	}
	return nil
}

type OfferPayload struct {
	BroadcastID string             `json:"broadcast_id"`
	Description SessionDescription `json:"description"`
	Media       MediaConfig        `json:"media,omitempty"`
}

func (p *OfferPayload) Validate() error {
	if p.BroadcastID == "" {
		return fmt.Errorf("broadcast_id is required")
	}
	return p.Description.Validate()
}

type AnswerPayload struct {
	BroadcastID string             `json:"broadcast_id"`
	Description SessionDescription `json:"description"`
	Device      DeviceInfo         `json:"device,omitempty"`
}

func (p *AnswerPayload) Validate() error {
	if p.BroadcastID == "" {
		return fmt.Errorf("broadcast_id is required")
	}
	return p.Description.Validate()
}

type CandidatePayload struct {
	BroadcastID string     `json:"broadcast_id"`
	Candidate   Candidate  `json:"candidate"`
	Target      *uuid.UUID `json:"target,omitempty"`
}

func (p *CandidatePayload) Validate() error {
	if p.BroadcastID == "" {
		return fmt.Errorf("broadcast_id is required")
	}
	return p.Candidate.Validate()
}

type RequestCallPayload struct {
	BroadcastID    string `json:"broadcast_id"`
	CallerName     string `json:"caller_name"`
	CallerLocation string `json:"caller_location,omitempty"`
}

func (p *RequestCallPayload) Validate() error {
	if p.BroadcastID == "" {
		return fmt.Errorf("broadcast_id is required")
	}
	if p.CallerName == "" {
		return fmt.Errorf("caller_name is required")
	}
	return nil
}

type CallActionPayload struct {
	CallID uuid.UUID `json:"call_id"`
	Reason string    `json:"reason,omitempty"`
}

func (p *CallActionPayload) Validate() error {
	if p.CallID == uuid.Nil {
		return fmt.Errorf("call_id is required")
	}
	return nil
}

// Server-to-client payloads.

type BroadcasterReadyPayload struct {
	BroadcastID string `json:"broadcast_id"`
}

type BroadcastInfoPayload struct {
	BroadcastID string          `json:"broadcast_id"`
	Broadcaster BroadcasterInfo `json:"broadcaster"`
	HasOffer    bool            `json:"has_offer"`
	Offer       *OfferPayload   `json:"offer,omitempty"`
	Stats       BroadcastStats  `json:"stats"`
}

type ListenerCountPayload struct {
	BroadcastID string `json:"broadcast_id"`
	Current     int    `json:"current"`
	Peak        int    `json:"peak"`
}

type BroadcastEndedPayload struct {
	BroadcastID string `json:"broadcast_id"`
	Reason      string `json:"reason"`
}

type CallPendingPayload struct {
	CallID   uuid.UUID `json:"call_id"`
	Position int       `json:"position"`
}

type CallStatusPayload struct {
	CallID uuid.UUID `json:"call_id"`
	Reason string    `json:"reason,omitempty"`
}

type AnswerForwardPayload struct {
	BroadcastID string             `json:"broadcast_id"`
	From        uuid.UUID          `json:"from"`
	Description SessionDescription `json:"description"`
	Device      DeviceInfo         `json:"device,omitempty"`
}

type CandidateForwardPayload struct {
	BroadcastID string    `json:"broadcast_id"`
	From        uuid.UUID `json:"from"`
	Candidate   Candidate `json:"candidate"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
