package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kongr45gpen/event-depot/internal/bridge"
	"github.com/kongr45gpen/event-depot/internal/config"
	"github.com/kongr45gpen/event-depot/internal/midi"
	"github.com/kongr45gpen/event-depot/internal/xair"
)

// A failed surface transport exits with a distinct status so supervisors
// can tell a hardware fault from a bad invocation.
const exitTransport = 4

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "event-depot.yaml", "path to YAML config")
	inputName := flag.String("input", "", "override MIDI input port name from config")
	outputName := flag.String("output", "", "override MIDI output port name from config")
	list := flag.Bool("list", false, "list available MIDI ports and exit")
	verbose := flag.Bool("v", false, "log at info level")
	debug := flag.Bool("vv", false, "log at debug level")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.InfoLevel
	}
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	if *list {
		fmt.Println("Inputs:")
		for _, name := range midi.ListInPorts() {
			fmt.Println("  ", name)
		}
		fmt.Println("Outputs:")
		for _, name := range midi.ListOutPorts() {
			fmt.Println("  ", name)
		}
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return 1
	}

	in := cfg.Midi.Input
	if *inputName != "" {
		in = *inputName
	}
	out := cfg.Midi.Output
	if *outputName != "" {
		out = *outputName
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	console, err := xair.Dial(cfg.Console.Address, log.With().Str("component", "xair").Logger())
	if err != nil {
		log.Error().Err(err).Msg("failed to reach console")
		return 1
	}
	defer console.Close()
	console.Start(ctx)

	log.Info().Str("input", in).Str("output", out).Msg("opening control surface")
	surface, err := midi.Open(in, out)
	if err != nil {
		log.Error().Err(err).Msg("failed to open MIDI device")
		return exitTransport
	}
	defer surface.Close()

	classifier := &bridge.Classifier{
		FaderChannel: *cfg.Midi.FaderChannel,
		FaderMin:     cfg.Midi.FaderMin,
		FaderMax:     cfg.Midi.FaderMax,
		Log:          log.With().Str("component", "classify").Logger(),
	}

	inputs := make(chan bridge.Input, 64)
	go func() {
		for msg := range surface.Messages() {
			input, ok := classifier.Classify(msg)
			if !ok {
				continue
			}
			log.Debug().Str("message", msg.String()).Msgf("surface input: %#v", input)
			select {
			case inputs <- input:
			case <-ctx.Done():
				return
			}
		}
	}()

	updates := make(chan bridge.Update, 64)
	go func() {
		for u := range console.Updates() {
			select {
			case updates <- bridge.Update{Address: u.Address, Value: u.Value, Samples: u.Samples}:
			case <-ctx.Done():
				return
			}
		}
	}()

	controller := bridge.New(cfg, surface, console, inputs, updates,
		log.With().Str("component", "bridge").Logger())

	if err := controller.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("interrupted, shutting down")
			return 0
		}
		log.Error().Err(err).Msg("bridge terminated")
		return exitTransport
	}
	return 0
}
