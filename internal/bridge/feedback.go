package bridge

import (
	"context"
	"math"

	"github.com/kongr45gpen/event-depot/internal/config"
)

// switchLayer is the sole layer transition. It refetches the console's
// state, repaints the layer indicators, blanks the whole surface, then
// replays the cache so the LEDs reflect what the console actually holds.
// Also runs once at startup, for layer 0.
func (c *Controller) switchLayer(ctx context.Context, layer int) error {
	c.layer = layer
	c.log.Info().Int("layer", layer).Msg("switching layer")

	c.rebuildCache(ctx)

	for i, note := range LayerButtonNotes {
		if err := c.surface.LED(note, i == layer); err != nil {
			return err
		}
	}

	// Nothing from the previous layer may survive the switch: no lit
	// meter, no pending blink, no stale LED.
	c.meterLit = [config.NumMeters]bool{}
	c.mutegroupOn = [config.NumMeters]bool{}
	for _, note := range ButtonIndexTable {
		if err := c.surface.LED(note, false); err != nil {
			return err
		}
	}
	for i := 0; i < numEncoders; i++ {
		if err := c.surface.Ring(i, 0); err != nil {
			return err
		}
	}

	for _, address := range c.activeList {
		value, ok := c.cache[address]
		if !ok {
			continue
		}
		if err := c.render(address, value); err != nil {
			return err
		}
	}
	return nil
}

// rebuildCache refetches every active address. A fetch failure leaves
// that address absent, never aborts the rebuild.
func (c *Controller) rebuildCache(ctx context.Context) {
	c.cache = make(map[string]float64, len(c.activeList))
	for _, address := range c.activeList {
		value, err := c.console.Get(ctx, address)
		if err != nil {
			c.log.Error().Err(err).Str("address", address).Msg("failed to fetch initial value")
			continue
		}
		c.cache[address] = value
	}
	c.log.Debug().Int("addresses", len(c.cache)).Msg("rebuilt console cache")
}

// handleUpdate processes one streamed console message: meters go to the
// edge-triggered meter path, scalars update the cache and repaint
// whatever the current layer binds to that address.
func (c *Controller) handleUpdate(update Update) error {
	if update.Samples != nil {
		return c.handleMeters(update.Samples)
	}

	if _, ok := c.active[update.Address]; !ok {
		return nil
	}
	c.cache[update.Address] = update.Value
	return c.render(update.Address, update.Value)
}

// render paints the surface for one cached address. Only bindings of the
// current layer produce output; an address cached for another layer is
// left alone until that layer is switched in.
func (c *Controller) render(address string, value float64) error {
	layer := c.currentLayer()

	for i := 0; i < config.NumButtons; i++ {
		if bound, ok := layer.ButtonAddress(i); ok && bound == address {
			if err := c.surface.LED(ButtonIndexTable[i], buttonLit(layer, value)); err != nil {
				return err
			}
		}
	}

	for i := 0; i < numEncoders; i++ {
		if bound, ok := layer.EncoderAddress(i); ok && bound == address {
			if err := c.surface.Ring(i, c.ringValue(layer, value)); err != nil {
				return err
			}
		}
	}

	for i := 0; i < config.NumMeters; i++ {
		if bound, ok := layer.MutegroupAddress(i); ok && bound == address {
			// No direct output; the blink loop renders this.
			c.mutegroupOn[i] = value != 0
		}
	}

	if address == c.cfg.MainFaderAddress {
		if err := c.surface.MoveFader(*c.cfg.Midi.FaderChannel, c.faderPitch(value)); err != nil {
			return err
		}
	}
	return nil
}

func buttonLit(layer *config.Layer, value float64) bool {
	lit := value != 0
	if layer.InvertButtons {
		lit = !lit
	}
	return lit
}

func (c *Controller) ringValue(layer *config.Layer, value float64) uint8 {
	styleName := layer.EncoderStyle
	if styleName == "" {
		styleName = defaultStyle
	}
	style, ok := encoderStyles[styleName]
	if !ok {
		c.log.Warn().Str("style", styleName).Msg("unknown encoder style")
		style = encoderStyles[defaultStyle]
	}

	step := int(math.Round(value * float64(style.span)))
	if step < 0 {
		step = 0
	}
	if step > int(style.span) {
		step = int(style.span)
	}
	return style.base + uint8(step)
}

// faderPitch is the inverse of the input normalization; it drives the
// motorized fader to mirror the console's value.
func (c *Controller) faderPitch(value float64) int16 {
	min, max := c.cfg.Midi.FaderMin, c.cfg.Midi.FaderMax
	pitch := float64(min) + clamp01(value)*float64(max-min)
	return int16(math.Round(pitch))
}

// handleMeters renders one batched meter frame. LED writes are
// edge-triggered on the lit/unlit transition so a stream-rate meter
// feed does not saturate the MIDI link. The cache is never touched.
func (c *Controller) handleMeters(samples []int16) error {
	layer := c.currentLayer()

	for slot := 0; slot < config.NumMeters; slot++ {
		index, ok := layer.MeterSlot(slot)
		if !ok || index < 0 || index >= len(samples) {
			continue
		}

		intensity := float64(samples[index])/32768 + 1
		lit := intensity > c.cfg.MeterThreshold
		if lit == c.meterLit[slot] {
			continue
		}
		c.meterLit[slot] = lit

		// Meter slots light the lower button row.
		if err := c.surface.LED(ButtonIndexTable[8+slot], lit); err != nil {
			return err
		}
	}
	return nil
}

// blinkTick advances the mutegroup blink phase. A position whose own
// mute is lit solid is skipped: "muted directly" beats "muted via group".
func (c *Controller) blinkTick() error {
	c.blinkOn = !c.blinkOn
	layer := c.currentLayer()

	for position := 0; position < config.NumMeters; position++ {
		if address, ok := layer.ButtonAddress(position); ok {
			if value, cached := c.cache[address]; cached && buttonLit(layer, value) {
				continue
			}
		}

		note := ButtonIndexTable[position]
		var err error
		if c.blinkOn {
			err = c.surface.LED(note, c.mutegroupOn[position])
		} else {
			err = c.surface.LED(note, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
