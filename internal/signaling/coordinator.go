// Package signaling relays session-establishment messages between the
// broadcaster and its listeners and callers. The coordinator never inspects
// media content; session descriptions and candidates pass through opaque.
package signaling

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/internal/models"
	"github.com/aircast/backend/internal/station"
)

// Coordinator fans signaling messages through a broadcast room. One
// broadcast is a single logical room; membership is owned by the station
// registry.
type Coordinator struct {
	station  *station.Station
	notifier station.Notifier
	defaults models.MediaConfig
	log      zerolog.Logger
}

// New creates a Coordinator. Offers missing media parameters are merged
// with defaults before fan-out.
func New(st *station.Station, notifier station.Notifier, defaults models.MediaConfig, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		station:  st,
		notifier: notifier,
		defaults: defaults,
		log:      logger.With().Str("component", "signaling").Logger(),
	}
}

// PublishOffer stores the broadcaster's session description as the
// broadcast's current offer and fans it out to every listener currently in
// the room. Only the registered broadcaster connection may publish.
func (c *Coordinator) PublishOffer(connID uuid.UUID, offer models.OfferPayload) error {
	offer.Media = offer.Media.Merge(c.defaults)

	if err := c.station.SetOffer(connID, &offer); err != nil {
		return err
	}

	members, err := c.station.RoomMembers(offer.BroadcastID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == connID {
			continue
		}
		c.notifier.Send(member, models.EventBroadcasterOffer, offer)
	}

	c.log.Debug().
		Str("broadcast_id", offer.BroadcastID).
		Int("fanout", len(members)-1).
		Msg("offer published")
	return nil
}

// RelayAnswer delivers a listener's answer to the broadcaster only, tagged
// with the sender's identity and device metadata.
func (c *Coordinator) RelayAnswer(connID uuid.UUID, answer models.AnswerPayload) error {
	broadcasterConn, err := c.station.BroadcasterConn(answer.BroadcastID)
	if err != nil {
		return err
	}
	c.station.CountMessage(answer.BroadcastID)
	c.notifier.Send(broadcasterConn, models.EventListenerAnswer, models.AnswerForwardPayload{
		BroadcastID: answer.BroadcastID,
		From:        connID,
		Description: answer.Description,
		Device:      answer.Device,
	})
	return nil
}

// RelayCandidate forwards a connectivity candidate point-to-point when a
// target is given, otherwise to the whole room excluding the sender.
func (c *Coordinator) RelayCandidate(connID uuid.UUID, payload models.CandidatePayload) error {
	forward := models.CandidateForwardPayload{
		BroadcastID: payload.BroadcastID,
		From:        connID,
		Candidate:   payload.Candidate,
	}

	c.station.CountMessage(payload.BroadcastID)

	if payload.Target != nil {
		c.notifier.Send(*payload.Target, models.EventRelayCandidate, forward)
		return nil
	}

	members, err := c.station.RoomMembers(payload.BroadcastID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == connID {
			continue
		}
		c.notifier.Send(member, models.EventRelayCandidate, forward)
	}
	return nil
}
