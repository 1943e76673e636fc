package bridge

import (
	"context"
	"math"
)

// handleInput dispatches one surface gesture. Console failures are
// logged and swallowed; only surface transport errors propagate.
func (c *Controller) handleInput(ctx context.Context, input Input) error {
	switch input := input.(type) {
	case LayerSwitchInput:
		if input.Layer < 0 || input.Layer >= len(c.cfg.Layers) {
			c.log.Warn().Int("layer", input.Layer).Msg("layer not configured")
			return nil
		}
		return c.switchLayer(ctx, input.Layer)

	case EncoderInput:
		c.handleEncoder(ctx, input)

	case ButtonInput:
		c.handleButton(input)

	case FaderInput:
		c.handleFader(input)
	}
	return nil
}

func (c *Controller) handleEncoder(ctx context.Context, input EncoderInput) {
	layer := c.currentLayer()
	address, ok := layer.EncoderAddress(input.Index)
	if !ok {
		return
	}

	current, ok := c.cache[address]
	if !ok {
		v, err := c.console.Get(ctx, address)
		if err != nil {
			c.log.Error().Err(err).Str("address", address).Msg("no current value for encoder target")
			return
		}
		current = v
	}

	sensitivity := layer.EncoderSensitivity
	value := current + float64(input.Delta)*sensitivity/1000

	// Center detent: pan-like controls are hard to land exactly on
	// neutral with a relative encoder, so snap when close enough.
	if math.Abs(value-zeroValue) < sensitivity/1500 {
		value = zeroValue
	}
	value = clamp01(value)

	if err := c.console.Put(address, value); err != nil {
		c.log.Error().Err(err).Str("address", address).Msg("encoder put failed")
	}
}

func (c *Controller) handleButton(input ButtonInput) {
	layer := c.currentLayer()

	if input.Row == 0 {
		// Encoder push: momentary re-center, only where the layer opts in.
		if !layer.EnableZero {
			return
		}
		address, ok := layer.EncoderAddress(input.Col)
		if !ok {
			return
		}
		if err := c.console.Put(address, zeroValue); err != nil {
			c.log.Error().Err(err).Str("address", address).Msg("re-center put failed")
		}
		return
	}

	position := (input.Row-1)*8 + input.Col
	address, ok := layer.ButtonAddress(position)
	if !ok {
		return
	}

	engaged := c.cache[address] != 0
	if err := c.console.PutBool(address, !engaged); err != nil {
		c.log.Error().Err(err).Str("address", address).Msg("button toggle failed")
	}
}

func (c *Controller) handleFader(input FaderInput) {
	address := c.cfg.MainFaderAddress
	if address == "" {
		return
	}

	value := input.Value
	if math.Abs(value-zeroValue) < faderDetent {
		value = zeroValue
	}

	if err := c.console.Put(address, value); err != nil {
		c.log.Error().Err(err).Str("address", address).Msg("fader put failed")
	}
}
