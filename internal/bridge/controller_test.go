package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kongr45gpen/event-depot/internal/config"
)

type ledWrite struct {
	note uint8
	on   bool
}

type ringWrite struct {
	encoder int
	value   uint8
}

type fakeSurface struct {
	leds       []ledWrite
	rings      []ringWrite
	faderMoves []int16
	keepalives int
	err        error
}

func (s *fakeSurface) LED(note uint8, on bool) error {
	if s.err != nil {
		return s.err
	}
	s.leds = append(s.leds, ledWrite{note, on})
	return nil
}

func (s *fakeSurface) Ring(encoder int, value uint8) error {
	if s.err != nil {
		return s.err
	}
	s.rings = append(s.rings, ringWrite{encoder, value})
	return nil
}

func (s *fakeSurface) MoveFader(channel uint8, pitch int16) error {
	if s.err != nil {
		return s.err
	}
	s.faderMoves = append(s.faderMoves, pitch)
	return nil
}

func (s *fakeSurface) Keepalive() error {
	if s.err != nil {
		return s.err
	}
	s.keepalives++
	return nil
}

// ledState replays the write log and returns the final on/off state per note.
func (s *fakeSurface) ledState() map[uint8]bool {
	state := make(map[uint8]bool)
	for _, w := range s.leds {
		state[w.note] = w.on
	}
	return state
}

type putCall struct {
	address string
	value   float64
}

type boolPutCall struct {
	address string
	on      bool
}

type fakeConsole struct {
	values   map[string]float64
	gets     []string
	puts     []putCall
	boolPuts []boolPutCall
}

func (c *fakeConsole) Get(ctx context.Context, address string) (float64, error) {
	c.gets = append(c.gets, address)
	v, ok := c.values[address]
	if !ok {
		return 0, fmt.Errorf("get %s: no reply from console", address)
	}
	return v, nil
}

func (c *fakeConsole) Put(address string, value float64) error {
	c.puts = append(c.puts, putCall{address, value})
	return nil
}

func (c *fakeConsole) PutBool(address string, on bool) error {
	c.boolPuts = append(c.boolPuts, boolPutCall{address, on})
	return nil
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }
func u8p(v uint8) *uint8    { return &v }

// testConfig builds two layers over a handful of addresses:
// layer 0 binds encoder 0, grid buttons 0 and 2, mutegroup 1 and meter 0;
// layer 1 binds encoder 0 and button 0 to different addresses.
func testConfig() *config.Config {
	cfg := &config.Config{
		Midi: config.MidiConfig{
			FaderChannel: u8p(8),
			FaderMin:     -8192,
			FaderMax:     8064,
		},
		MeterThreshold:   0.5,
		MainFaderAddress: "/lr/mix/fader",
		Layers: []config.Layer{
			{
				Encoders:           []*string{strp("/ch/01/mix/fader")},
				Buttons:            []*string{strp("/ch/01/mix/on"), nil, strp("/ch/03/mix/on")},
				Mutegroups:         []*string{nil, strp("/config/mute/1")},
				Meters:             []*int{intp(0)},
				EncoderStyle:       "single",
				EncoderSensitivity: 10,
			},
			{
				Encoders:           []*string{strp("/ch/02/mix/pan")},
				Buttons:            []*string{strp("/ch/02/mix/on")},
				EncoderStyle:       "trim",
				EncoderSensitivity: 10,
			},
		},
	}
	return cfg
}

func newTestController(cfg *config.Config) (*Controller, *fakeSurface, *fakeConsole) {
	surface := &fakeSurface{}
	console := &fakeConsole{values: map[string]float64{}}
	c := New(cfg, surface, console, nil, nil, zerolog.Nop())
	return c, surface, console
}

func TestSwitchLayerRefetchesAndRepaints(t *testing.T) {
	cfg := testConfig()
	c, surface, console := newTestController(cfg)
	console.values = map[string]float64{
		"/ch/01/mix/fader": 0.5,
		"/ch/01/mix/on":    1,
		"/ch/02/mix/pan":   0.75,
		"/ch/02/mix/on":    0,
		"/config/mute/1":   0,
	}

	require.NoError(t, c.switchLayer(context.Background(), 1))

	// Every active address was refetched, the bound main fader included.
	for _, address := range c.activeList {
		assert.Contains(t, console.gets, address)
	}

	state := surface.ledState()
	assert.False(t, state[LayerButtonNotes[0]], "old layer indicator must be dark")
	assert.True(t, state[LayerButtonNotes[1]], "new layer indicator must be lit")

	// Layer 1 binds /ch/02/mix/on to grid position 0; its cached value is
	// 0 so the final LED state stays off, after the blanking pass.
	assert.False(t, state[ButtonIndexTable[0]])

	// Encoder 0 repainted from the cache with the trim style: 17 + round(0.75*9).
	require.NotEmpty(t, surface.rings)
	last := surface.rings[len(surface.rings)-1]
	assert.Equal(t, ringWrite{encoder: 0, value: 17 + 7}, last)
}

func TestSwitchLayerIsIdempotentForLEDs(t *testing.T) {
	cfg := testConfig()
	c, surface, console := newTestController(cfg)
	console.values = map[string]float64{
		"/ch/01/mix/fader": 0.5,
		"/ch/01/mix/on":    1,
		"/config/mute/1":   1,
		"/ch/02/mix/pan":   0.25,
		"/ch/02/mix/on":    0,
	}

	require.NoError(t, c.switchLayer(context.Background(), 0))
	first := append([]ledWrite(nil), surface.leds...)
	firstRings := append([]ringWrite(nil), surface.rings...)

	surface.leds = nil
	surface.rings = nil
	require.NoError(t, c.switchLayer(context.Background(), 0))

	assert.Equal(t, first, surface.leds, "repeated switch must repaint identically")
	assert.Equal(t, firstRings, surface.rings)

	// Round-tripping through the other layer must not accumulate drift:
	// every return to layer 0 repaints it exactly like the first time.
	for round := 0; round < 2; round++ {
		surface.leds = nil
		surface.rings = nil
		require.NoError(t, c.switchLayer(context.Background(), 1))

		surface.leds = nil
		surface.rings = nil
		require.NoError(t, c.switchLayer(context.Background(), 0))

		assert.Equal(t, first, surface.leds, "round %d", round)
		assert.Equal(t, firstRings, surface.rings, "round %d", round)
	}
}

func TestSwitchLayerClearsTransientState(t *testing.T) {
	cfg := testConfig()
	c, _, _ := newTestController(cfg)
	c.meterLit[0] = true
	c.mutegroupOn[1] = true

	require.NoError(t, c.switchLayer(context.Background(), 1))

	assert.Equal(t, [config.NumMeters]bool{}, c.meterLit)
	assert.Equal(t, [config.NumMeters]bool{}, c.mutegroupOn)
}

func TestSwitchLayerToleratesFetchFailures(t *testing.T) {
	cfg := testConfig()
	c, _, console := newTestController(cfg)
	console.values = map[string]float64{"/ch/01/mix/fader": 0.5} // everything else times out

	require.NoError(t, c.switchLayer(context.Background(), 0))

	assert.Equal(t, map[string]float64{"/ch/01/mix/fader": 0.5}, c.cache)
}

func TestLayerSwitchInputOutOfRangeIgnored(t *testing.T) {
	cfg := testConfig()
	c, surface, _ := newTestController(cfg)

	require.NoError(t, c.handleInput(context.Background(), LayerSwitchInput{Layer: 5}))
	assert.Equal(t, 0, c.layer)
	assert.Empty(t, surface.leds)
}

func TestSurfaceFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	c, surface, console := newTestController(cfg)
	console.values["/ch/01/mix/fader"] = 0.5
	surface.err = errors.New("device unplugged")

	err := c.switchLayer(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, surface.err)
}
