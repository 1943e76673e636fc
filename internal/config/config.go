package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixed surface geometry: 8 top encoders and a 2x8 button grid.
const (
	NumEncoders = 8
	NumButtons  = 16
	NumMeters   = 8
)

const (
	defaultMeterThreshold = 0.5
	defaultSensitivity    = 10
	defaultFaderChannel   = 8
	defaultFaderMin       = -8192
	defaultFaderMax       = 8064
)

// MidiConfig selects the MIDI ports and describes the main fader's
// pitch-bend range as the device reports it. FaderChannel is nullable so
// an explicit channel 0 is distinguishable from an unset one; Load
// guarantees it is non-nil.
type MidiConfig struct {
	Input        string `yaml:"input"`
	Output       string `yaml:"output"`
	FaderChannel *uint8 `yaml:"fader_channel"`
	FaderMin     int    `yaml:"fader_min"`
	FaderMax     int    `yaml:"fader_max"`
}

// ConsoleConfig points at the mixer's OSC endpoint, e.g. "10.20.0.216:10024".
type ConsoleConfig struct {
	Address string `yaml:"address"`
}

// Layer is one complete mapping of the surface onto console addresses.
// Entries are positional; a nil entry leaves that control unbound.
type Layer struct {
	Encoders   []*string `yaml:"encoders"`
	Buttons    []*string `yaml:"buttons"`
	Mutegroups []*string `yaml:"mutegroups"`
	Meters     []*int    `yaml:"meters"`

	EnableZero         bool    `yaml:"enable_zero"`
	InvertButtons      bool    `yaml:"invert_buttons"`
	EncoderStyle       string  `yaml:"encoder_style"`
	EncoderSensitivity float64 `yaml:"encoder_sensitivity"`
}

// Config is the root configuration structure.
type Config struct {
	Midi             MidiConfig    `yaml:"midi"`
	Console          ConsoleConfig `yaml:"console"`
	MeterThreshold   float64       `yaml:"meter_threshold"`
	MainFaderAddress string        `yaml:"main_fader_address"`
	Layers           []Layer       `yaml:"layers"`
}

// Load reads the config from disk and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()

	if len(cfg.Layers) == 0 {
		return nil, fmt.Errorf("%s: at least one layer must be configured", path)
	}
	if cfg.Console.Address == "" {
		return nil, fmt.Errorf("%s: console.address is required", path)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MeterThreshold == 0 {
		c.MeterThreshold = defaultMeterThreshold
	}
	if c.Midi.FaderChannel == nil {
		channel := uint8(defaultFaderChannel)
		c.Midi.FaderChannel = &channel
	}
	if c.Midi.FaderMin == 0 && c.Midi.FaderMax == 0 {
		c.Midi.FaderMin = defaultFaderMin
		c.Midi.FaderMax = defaultFaderMax
	}
	for i := range c.Layers {
		if c.Layers[i].EncoderSensitivity == 0 {
			c.Layers[i].EncoderSensitivity = defaultSensitivity
		}
	}
}

// EncoderAddress returns the console address bound to encoder i,
// or false if the slot is out of range or unbound.
func (l *Layer) EncoderAddress(i int) (string, bool) {
	return lookupAddress(l.Encoders, i)
}

// ButtonAddress returns the console address bound to grid position i.
func (l *Layer) ButtonAddress(i int) (string, bool) {
	return lookupAddress(l.Buttons, i)
}

// MutegroupAddress returns the mutegroup address watched for grid position i.
func (l *Layer) MutegroupAddress(i int) (string, bool) {
	return lookupAddress(l.Mutegroups, i)
}

// MeterSlot returns the meter sample index rendered on meter slot i.
func (l *Layer) MeterSlot(i int) (int, bool) {
	if i < 0 || i >= len(l.Meters) || l.Meters[i] == nil {
		return 0, false
	}
	return *l.Meters[i], true
}

func lookupAddress(addrs []*string, i int) (string, bool) {
	if i < 0 || i >= len(addrs) || addrs[i] == nil || *addrs[i] == "" {
		return "", false
	}
	return *addrs[i], true
}

// ActiveAddresses returns every console address referenced by any layer's
// encoders, buttons or mutegroups, in configuration order without
// duplicates. Updates for addresses outside this set are ignored entirely.
func (c *Config) ActiveAddresses() []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(addrs []*string) {
		for _, a := range addrs {
			if a == nil || *a == "" {
				continue
			}
			if _, ok := seen[*a]; ok {
				continue
			}
			seen[*a] = struct{}{}
			out = append(out, *a)
		}
	}

	for i := range c.Layers {
		add(c.Layers[i].Encoders)
		add(c.Layers[i].Buttons)
		add(c.Layers[i].Mutegroups)
	}
	return out
}
