package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kongr45gpen/event-depot/internal/config"
)

const (
	// zeroValue is the console's neutral position for faders and pans.
	zeroValue = 0.75

	// faderDetent snaps the physical fader to zeroValue when close.
	faderDetent = 0.025

	blinkPeriod       = 243 * time.Millisecond
	keepaliveInterval = time.Second
)

// Surface is the outgoing half of the control surface.
type Surface interface {
	LED(note uint8, on bool) error
	Ring(encoder int, value uint8) error
	MoveFader(channel uint8, pitch int16) error
	Keepalive() error
}

// Console is the mixing console's command interface. Put and PutBool are
// fire-and-forget; the console confirms by echoing the change through
// the update stream.
type Console interface {
	Get(ctx context.Context, address string) (float64, error)
	Put(address string, value float64) error
	PutBool(address string, on bool) error
}

// Update is one state change streamed by the console. Meter batches
// carry Samples; everything else carries Value.
type Update struct {
	Address string
	Value   float64
	Samples []int16
}

// Controller owns all mutable bridge state. Exactly one goroutine runs
// it; every other task reaches it through the input and update channels,
// so none of the state needs locking.
type Controller struct {
	cfg     *config.Config
	surface Surface
	console Console
	inputs  <-chan Input
	updates <-chan Update
	log     zerolog.Logger

	// Last value the console confirmed per address. Console feedback is
	// the only writer; local puts wait for their echo.
	cache map[string]float64

	active     map[string]struct{}
	activeList []string

	layer       int
	meterLit    [config.NumMeters]bool
	mutegroupOn [config.NumMeters]bool
	blinkOn     bool
}

// New wires a controller. The input channel carries classified surface
// gestures in arrival order; the update channel carries console feedback.
func New(cfg *config.Config, surface Surface, console Console, inputs <-chan Input, updates <-chan Update, log zerolog.Logger) *Controller {
	active := make(map[string]struct{})
	list := cfg.ActiveAddresses()
	for _, addr := range list {
		active[addr] = struct{}{}
	}
	if addr := cfg.MainFaderAddress; addr != "" {
		if _, ok := active[addr]; !ok {
			active[addr] = struct{}{}
			list = append(list, addr)
		}
	}

	return &Controller{
		cfg:        cfg,
		surface:    surface,
		console:    console,
		inputs:     inputs,
		updates:    updates,
		log:        log,
		cache:      make(map[string]float64),
		active:     active,
		activeList: list,
	}
}

// Run enters layer 0 and processes events until ctx is cancelled or the
// surface transport fails. A transport failure is fatal by design: a
// reopened device cannot be trusted to be the same hardware, so the
// process exits and the operator restarts it.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.switchLayer(ctx, 0); err != nil {
		return err
	}

	blink := time.NewTicker(blinkPeriod)
	defer blink.Stop()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case input, ok := <-c.inputs:
			if !ok {
				return nil
			}
			if err := c.handleInput(ctx, input); err != nil {
				return err
			}

		case update, ok := <-c.updates:
			if !ok {
				return nil
			}
			if err := c.handleUpdate(update); err != nil {
				return err
			}

		case <-blink.C:
			if err := c.blinkTick(); err != nil {
				return err
			}

		case <-keepalive.C:
			if err := c.surface.Keepalive(); err != nil {
				return fmt.Errorf("surface keepalive failed: %w", err)
			}
		}
	}
}

func (c *Controller) currentLayer() *config.Layer {
	return &c.cfg.Layers[c.layer]
}
