package bridge

import (
	"github.com/rs/zerolog"
	"gitlab.com/gomidi/midi/v2"
)

// Classifier turns raw surface messages into semantic inputs. It is
// stateless; the fader fields describe how the device reports its
// absolute position.
type Classifier struct {
	FaderChannel uint8
	FaderMin     int
	FaderMax     int
	Log          zerolog.Logger
}

// Classify decodes a single message. The second return is false when the
// message produces no input: releases and sub-press velocities are
// dropped silently, anything unrecognized is dropped with a warning.
func (c *Classifier) Classify(msg midi.Message) (Input, bool) {
	var channel, key, velocity, control, value uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetControlChange(&channel, &control, &value):
		if control >= encoderBaseControl && control < encoderBaseControl+numEncoders {
			return EncoderInput{
				Index: int(control - encoderBaseControl),
				Delta: DecodeDelta(value),
			}, true
		}

	case msg.GetNoteStart(&channel, &key, &velocity):
		if velocity != 127 {
			return nil, false
		}
		for i, note := range LayerButtonNotes {
			if key == note {
				return LayerSwitchInput{Layer: i}, true
			}
		}
		for i, note := range ButtonIndexTable {
			if key == note {
				return ButtonInput{Row: i/8 + 1, Col: i % 8}, true
			}
		}
		if key >= encoderPushBase && key < encoderPushBase+numEncoders {
			return ButtonInput{Row: 0, Col: int(key - encoderPushBase)}, true
		}

	case msg.GetNoteEnd(&channel, &key):
		// Button release, no event.
		return nil, false

	case msg.GetPitchBend(&channel, &rel, &abs):
		if channel == c.FaderChannel {
			return FaderInput{Value: c.normalizeFader(int(rel))}, true
		}
	}

	c.Log.Warn().Str("message", msg.String()).Msg("unhandled surface message")
	return nil, false
}

// DecodeDelta recovers a signed rotation step from the encoder's
// magnitude-with-sign-by-range encoding: raw values above 64 carry a
// negative delta of raw-64. This is not two's complement.
func DecodeDelta(raw uint8) int {
	if raw > 64 {
		return -int(raw - 64)
	}
	return int(raw)
}

func (c *Classifier) normalizeFader(pitch int) float64 {
	span := c.FaderMax - c.FaderMin
	if span <= 0 {
		return 0
	}
	v := float64(pitch-c.FaderMin) / float64(span)
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
