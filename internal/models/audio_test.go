package models

import "testing"

func TestDefaultChannelSettings(t *testing.T) {
	s := DefaultChannelSettings(ChannelLine, "caller")
	if s.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("default settings should get a fresh id")
	}
	if s.Volume != 75 || s.Gain != 50 {
		t.Errorf("defaults = volume %d gain %d, want 75/50", s.Volume, s.Gain)
	}
	if s.EQ != FlatEQ() {
		t.Errorf("default EQ = %+v, want flat", s.EQ)
	}
	if s.Muted || s.Solo {
		t.Error("channels start unmuted and unsoloed")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults fail validation: %v", err)
	}
}

func TestChannelSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChannelSettings)
		wantErr bool
	}{
		{"defaults", func(*ChannelSettings) {}, false},
		{"volume max", func(s *ChannelSettings) { s.Volume = 100 }, false},
		{"volume over", func(s *ChannelSettings) { s.Volume = 101 }, true},
		{"volume negative", func(s *ChannelSettings) { s.Volume = -1 }, true},
		{"gain over", func(s *ChannelSettings) { s.Gain = 200 }, true},
		{"eq low over", func(s *ChannelSettings) { s.EQ.Low = 101 }, true},
		{"eq mid negative", func(s *ChannelSettings) { s.EQ.Mid = -5 }, true},
		{"eq high over", func(s *ChannelSettings) { s.EQ.High = 999 }, true},
		{"bad type", func(s *ChannelSettings) { s.Type = "vinyl" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultChannelSettings(ChannelMic, "host mic")
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChannelTypeValid(t *testing.T) {
	for _, typ := range []ChannelType{ChannelMic, ChannelMusic, ChannelEffects, ChannelLine} {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if ChannelType("tape").Valid() {
		t.Error("unknown type should be invalid")
	}
}
