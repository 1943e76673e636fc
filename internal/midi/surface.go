package midi

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register rtmidi driver
)

// ListInPorts returns the names of available MIDI input ports.
func ListInPorts() []string {
	ins := midi.GetInPorts()
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}

// ListOutPorts returns the names of available MIDI output ports.
func ListOutPorts() []string {
	outs := midi.GetOutPorts()
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names
}

func findInPort(name string) drivers.In {
	for _, in := range midi.GetInPorts() {
		if in.String() == name {
			return in
		}
	}
	return nil
}

func findOutPort(name string) drivers.Out {
	for _, out := range midi.GetOutPorts() {
		if out.String() == name {
			return out
		}
	}
	return nil
}

// Surface is an open connection to the control surface. Incoming messages
// are buffered without ever blocking the driver callback and drained
// through Messages; outgoing writes address the surface's LEDs, encoder
// rings and motor fader.
type Surface struct {
	in   drivers.In
	stop func()
	send func(midi.Message) error

	mu      sync.Mutex
	backlog []midi.Message
	wake    chan struct{}
	out     chan midi.Message
	done    chan struct{}
}

// Open opens the named input and output ports and starts listening.
// It fails if either port is absent; matching is exact.
func Open(inName, outName string) (*Surface, error) {
	inPort := findInPort(inName)
	if inPort == nil {
		return nil, fmt.Errorf("input port not found: %s", inName)
	}
	outPort := findOutPort(outName)
	if outPort == nil {
		return nil, fmt.Errorf("output port not found: %s", outName)
	}

	send, err := midi.SendTo(outPort)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender for %s: %w", outName, err)
	}

	s := &Surface{
		in:   inPort,
		send: send,
		wake: make(chan struct{}, 1),
		out:  make(chan midi.Message),
		done: make(chan struct{}),
	}

	stop, err := midi.ListenTo(inPort, func(msg midi.Message, timestampms int32) {
		s.enqueue(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start listening on %s: %w", inName, err)
	}
	s.stop = stop

	go s.drain()

	return s, nil
}

// enqueue runs inside the driver callback and must return immediately,
// so messages land in an unbounded backlog rather than a channel.
func (s *Surface) enqueue(msg midi.Message) {
	s.mu.Lock()
	s.backlog = append(s.backlog, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Surface) drain() {
	for {
		s.mu.Lock()
		pending := s.backlog
		s.backlog = nil
		s.mu.Unlock()

		for _, msg := range pending {
			select {
			case s.out <- msg:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// Messages returns the stream of raw messages received from the surface,
// in arrival order.
func (s *Surface) Messages() <-chan midi.Message {
	return s.out
}

// LED switches a button or indicator LED by note number.
func (s *Surface) LED(note uint8, on bool) error {
	var velocity uint8
	if on {
		velocity = 127
	}
	return s.send(midi.NoteOn(0, note, velocity))
}

// Ring sets the LED ring of the given top encoder to a raw ring value,
// already computed for the firmware's display style.
func (s *Surface) Ring(encoder int, value uint8) error {
	return s.send(midi.ControlChange(0, uint8(48+encoder), value))
}

// MoveFader drives the motorized fader to a raw pitch-bend position.
func (s *Surface) MoveFader(channel uint8, pitch int16) error {
	return s.send(midi.Pitchbend(channel, pitch))
}

// Keepalive sends an Active Sensing message. It carries no musical
// meaning; its only purpose is to surface a severed connection through
// the send path's error.
func (s *Surface) Keepalive() error {
	return s.send(midi.Activesense())
}

// Close stops the listener and releases both ports.
func (s *Surface) Close() {
	close(s.done)
	if s.stop != nil {
		s.stop()
	}
	midi.CloseDriver()
}
