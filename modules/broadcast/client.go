package broadcast

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"golang.org/x/time/rate"
)

// Conn is the subset of a WebSocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ClientOptions configures per-connection limits.
type ClientOptions struct {
	SendBuffer int
	RateLimit  float64
	RateBurst  int
}

// DefaultClientOptions returns the default connection limits.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBuffer: 256,
		RateLimit:  20,
		RateBurst:  40,
	}
}

// Client is a connected socket. All writes go through its send queue so the
// socket has a single writer.
type Client struct {
	ID        string
	Namespace Namespace
	// Handshake holds the connect-time query parameters (token, username).
	Handshake map[string]string

	conn      Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter

	mu     sync.RWMutex
	values map[string]any
}

// NewClient creates a client for conn. Call WritePump to start delivery.
func NewClient(id string, ns Namespace, conn Conn, handshake map[string]string, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultClientOptions().SendBuffer
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if handshake == nil {
		handshake = make(map[string]string)
	}
	return &Client{
		ID:        id,
		Namespace: ns,
		Handshake: handshake,
		conn:      conn,
		send:      make(chan []byte, opts.SendBuffer),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(limit, burst),
		values:    make(map[string]any),
	}
}

// WritePump drains the send queue to the socket until the client is closed.
func (c *Client) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[hub:%s] Write to client %s failed: %v", c.Namespace, c.ID, err)
				c.Close()
				return
			}
		}
	}
}

// Allow reports whether the client may process another inbound event.
func (c *Client) Allow() bool {
	return c.limiter.Allow()
}

// Close stops the write pump and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Set stores a per-connection attribute.
func (c *Client) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Get returns a per-connection attribute.
func (c *Client) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// enqueue waits up to timeout for queue space. A false return means the
// client is closed or too slow to keep up.
func (c *Client) enqueue(data []byte, timeout time.Duration) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		return false
	}
}

// tryEnqueue never blocks; the frame is dropped when the queue is full.
func (c *Client) tryEnqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
