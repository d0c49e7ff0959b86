package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ChannelType identifies what feeds a mixer channel.
type ChannelType string

const (
	ChannelMic     ChannelType = "mic"
	ChannelMusic   ChannelType = "music"
	ChannelEffects ChannelType = "effects"
	ChannelLine    ChannelType = "line"
)

func (t ChannelType) Valid() bool {
	switch t {
	case ChannelMic, ChannelMusic, ChannelEffects, ChannelLine:
		return true
	}
	return false
}

// EQSettings holds the three band controls, each 0-100 where 50 is flat.
type EQSettings struct {
	Low  int `json:"low"`
	Mid  int `json:"mid"`
	High int `json:"high"`
}

// FlatEQ returns an EQ with every band at unity gain.
func FlatEQ() EQSettings {
	return EQSettings{Low: 50, Mid: 50, High: 50}
}

// EffectsSend holds per-channel send levels, 0-100.
type EffectsSend struct {
	Reverb int `json:"reverb"`
	Echo   int `json:"echo"`
	Chorus int `json:"chorus"`
}

// ChannelSettings is the externally controllable state of one mixer channel.
type ChannelSettings struct {
	ID      uuid.UUID   `json:"id"`
	Type    ChannelType `json:"type"`
	Label   string      `json:"label"`
	Volume  int         `json:"volume"`
	Gain    int         `json:"gain"`
	Muted   bool        `json:"muted"`
	Solo    bool        `json:"solo"`
	EQ      EQSettings  `json:"eq"`
	Effects EffectsSend `json:"effects"`
}

// DefaultChannelSettings returns a channel at nominal volume with a flat EQ.
func DefaultChannelSettings(typ ChannelType, label string) ChannelSettings {
	return ChannelSettings{
		ID:     uuid.New(),
		Type:   typ,
		Label:  label,
		Volume: 75,
		Gain:   50,
		EQ:     FlatEQ(),
	}
}

func inRange(v int) bool { return v >= 0 && v <= 100 }

func (s *ChannelSettings) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown channel type: %s", s.Type)
	}
	if !inRange(s.Volume) {
		return fmt.Errorf("volume out of range: %d", s.Volume)
	}
	if !inRange(s.Gain) {
		return fmt.Errorf("gain out of range: %d", s.Gain)
	}
	for name, v := range map[string]int{
		"eq.low":  s.EQ.Low,
		"eq.mid":  s.EQ.Mid,
		"eq.high": s.EQ.High,
	} {
		if !inRange(v) {
			return fmt.Errorf("%s out of range: %d", name, v)
		}
	}
	for name, v := range map[string]int{
		"effects.reverb": s.Effects.Reverb,
		"effects.echo":   s.Effects.Echo,
		"effects.chorus": s.Effects.Chorus,
	} {
		if !inRange(v) {
			return fmt.Errorf("%s out of range: %d", name, v)
		}
	}
	return nil
}
