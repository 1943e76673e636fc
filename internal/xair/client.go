// Package xair talks to a Behringer X-Air mixer over its OSC protocol.
//
// The mixer answers a parameter request with a plain message on the same
// address, and pushes unsolicited updates for as long as an /xremote
// subscription is kept alive, all over a single UDP socket. A stock OSC
// client cannot multiplex that, so Client owns the socket itself and uses
// go-osc only as the wire codec.
package xair

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"
)

const (
	// The mixer stops pushing updates roughly 10 seconds after the last
	// /xremote request, so the subscription is renewed well within that.
	renewInterval = 5 * time.Second

	meterPrefix = "/meters"

	requestTimeout = 500 * time.Millisecond

	readBufferSize = 65536

	// Pushed updates waiting for the consumer. Scalar traffic is light;
	// the meter stream is the only thing that can pile up here.
	updateBacklog = 1024
)

// Update is one state change reported by the console. Scalar updates
// carry Value; meter batches carry Samples instead and leave Value zero.
type Update struct {
	Address string
	Value   float64
	Samples []int16
}

// IsMeter reports whether the update is a batched meter frame.
func (u Update) IsMeter() bool {
	return u.Samples != nil
}

// Client is a connected console session.
type Client struct {
	conn *net.UDPConn
	log  zerolog.Logger

	updates chan Update

	mu      sync.Mutex
	waiters map[string][]chan float64
}

// Dial resolves and connects the console endpoint. No traffic is
// exchanged until Start.
func Dial(address string, log zerolog.Logger) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolving console address %s: %w", address, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to console %s: %w", address, err)
	}

	return &Client{
		conn:    conn,
		log:     log,
		updates: make(chan Update, updateBacklog),
		waiters: make(map[string][]chan float64),
	}, nil
}

// Start launches the socket reader and the subscription renewal loop.
// Both stop when ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	go c.readLoop(ctx)
	go c.renewLoop(ctx)
}

// Updates returns the stream of console-initiated state changes,
// in arrival order.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Get requests the current value of a console address and waits for the
// reply. A console that stays silent past the request timeout yields an
// error; the caller decides whether that matters.
func (c *Client) Get(ctx context.Context, address string) (float64, error) {
	reply := make(chan float64, 1)

	c.mu.Lock()
	c.waiters[address] = append(c.waiters[address], reply)
	c.mu.Unlock()

	if err := c.sendMessage(osc.NewMessage(address)); err != nil {
		c.removeWaiter(address, reply)
		return 0, err
	}

	select {
	case v := <-reply:
		return v, nil
	case <-time.After(requestTimeout):
		c.removeWaiter(address, reply)
		return 0, fmt.Errorf("get %s: no reply from console", address)
	case <-ctx.Done():
		c.removeWaiter(address, reply)
		return 0, ctx.Err()
	}
}

// Put writes a float parameter. Fire and forget: the console confirms by
// echoing the change through the subscription stream.
func (c *Client) Put(address string, value float64) error {
	msg := osc.NewMessage(address)
	msg.Append(float32(value))
	return c.sendMessage(msg)
}

// PutBool writes an on/off parameter. The console represents these as
// integers.
func (c *Client) PutBool(address string, on bool) error {
	msg := osc.NewMessage(address)
	if on {
		msg.Append(int32(1))
	} else {
		msg.Append(int32(0))
	}
	return c.sendMessage(msg)
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) sendMessage(msg *osc.Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Address, err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Address, err)
	}
	return nil
}

func (c *Client) renewLoop(ctx context.Context) {
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		c.renew()
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) renew() {
	if err := c.sendMessage(osc.NewMessage("/xremote")); err != nil {
		c.log.Error().Err(err).Msg("failed to renew console subscription")
		return
	}

	// Batch subscription for the input meters. Delivered as blob frames
	// on the same address.
	meters := osc.NewMessage(meterPrefix)
	meters.Append(meterPrefix + "/1")
	if err := c.sendMessage(meters); err != nil {
		c.log.Error().Err(err).Msg("failed to renew meter subscription")
	}
}

func (c *Client) readLoop(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// A connected UDP socket surfaces ICMP failures (port
			// unreachable while the console reboots) as read errors.
			// The console comes back; the subscription must outlive it.
			c.log.Warn().Err(err).Msg("console read failed")
			continue
		}

		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed console packet")
			continue
		}

		msg, ok := packet.(*osc.Message)
		if !ok {
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg *osc.Message) {
	if strings.HasPrefix(msg.Address, meterPrefix) {
		samples, err := decodeMeterBlob(msg.Arguments)
		if err != nil {
			c.log.Warn().Err(err).Str("address", msg.Address).Msg("dropping meter frame")
			return
		}
		c.deliver(Update{Address: msg.Address, Samples: samples})
		return
	}

	if len(msg.Arguments) == 0 {
		c.log.Debug().Str("address", msg.Address).Msg("console message without arguments")
		return
	}
	value, ok := scalarValue(msg.Arguments[0])
	if !ok {
		c.log.Warn().Str("address", msg.Address).Msg("console argument is not a scalar")
		return
	}

	c.fulfil(msg.Address, value)
	c.deliver(Update{Address: msg.Address, Value: value})
}

// fulfil hands the value to the oldest pending Get for this address, if any.
func (c *Client) fulfil(address string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.waiters[address]
	if len(pending) == 0 {
		return
	}
	pending[0] <- value
	if len(pending) == 1 {
		delete(c.waiters, address)
	} else {
		c.waiters[address] = pending[1:]
	}
}

func (c *Client) removeWaiter(address string, reply chan float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.waiters[address]
	for i, ch := range pending {
		if ch == reply {
			c.waiters[address] = append(pending[:i:i], pending[i+1:]...)
			break
		}
	}
	if len(c.waiters[address]) == 0 {
		delete(c.waiters, address)
	}
}

// deliver never blocks the socket reader: a pending Get reply must stay
// reachable even while the consumer is busy, so a full backlog sheds the
// update instead of waiting. The cache keeps only last-known values and
// the meter stream is refreshed continuously, so a shed update is
// superseded, not lost.
func (c *Client) deliver(u Update) {
	select {
	case c.updates <- u:
	default:
		c.log.Debug().Str("address", u.Address).Msg("update backlog full, shedding")
	}
}

func scalarValue(arg interface{}) (float64, bool) {
	switch v := arg.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// decodeMeterBlob unpacks the console's meter frame: a little-endian
// int32 sample count followed by that many int16 samples.
func decodeMeterBlob(args []interface{}) ([]int16, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("meter frame without payload")
	}
	blob, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("meter payload is not a blob")
	}
	if len(blob) < 4 {
		return nil, fmt.Errorf("meter blob too short: %d bytes", len(blob))
	}

	count := int(int32(binary.LittleEndian.Uint32(blob[:4])))
	if count < 0 || 4+2*count > len(blob) {
		return nil, fmt.Errorf("meter blob declares %d samples in %d bytes", count, len(blob))
	}

	samples := make([]int16, count)
	for i := 0; i < count; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(blob[4+2*i:]))
	}
	return samples, nil
}
