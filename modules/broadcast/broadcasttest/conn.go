// Package broadcasttest provides recording connections for hub tests.
package broadcasttest

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

// Conn records every frame written to it.
type Conn struct {
	mu     sync.Mutex
	frames []broadcast.Envelope
	closed bool
}

// WriteMessage records data when it is a JSON envelope.
func (c *Conn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	var env broadcast.Envelope
	if err := json.Unmarshal(data, &env); err == nil {
		c.frames = append(c.frames, env)
	}
	return nil
}

// Close marks the connection closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames returns the recorded envelopes.
func (c *Conn) Frames() []broadcast.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broadcast.Envelope(nil), c.frames...)
}

// Named returns the recorded envelopes for event.
func (c *Conn) Named(event string) []broadcast.Envelope {
	var out []broadcast.Envelope
	for _, f := range c.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// WaitFor polls until n envelopes named event were recorded or the timeout expires.
func (c *Conn) WaitFor(event string, n int, timeout time.Duration) []broadcast.Envelope {
	deadline := time.Now().Add(timeout)
	for {
		got := c.Named(event)
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Connect registers a client on hub backed by a recording Conn and starts
// its write pump. The client is closed when the test's cleanup runs.
func Connect(t testing.TB, hub *broadcast.Hub, id string, handshake map[string]string) (*broadcast.Client, *Conn) {
	t.Helper()
	conn := &Conn{}
	client := broadcast.NewClient(id, hub.Namespace(), conn, handshake, broadcast.ClientOptions{SendBuffer: 64})
	hub.Register(client)
	go client.WritePump()
	t.Cleanup(client.Close)
	return client, conn
}
