package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrChannelClosed = errors.New("channel is closed")

// Listener receives each parsed inbound message exactly once.
type Listener func(payload map[string]any)

// Channel is a client-side wrapper around one websocket connection to a
// named provider endpoint. Requests sent before the connection is open are
// queued and flushed in send order the moment it opens; inbound frames are
// parsed as JSON and fanned out to every registered listener.
//
// A Channel owns its connection exclusively and dies with it: once the
// socket closes there is no reconnect, callers create a new Channel.
type Channel struct {
	endpoint string

	mu        sync.Mutex
	conn      *websocket.Conn
	open      bool
	closed    bool
	pending   [][]byte // outbound frames queued before open, FIFO
	listeners []Listener

	done chan struct{}
}

// NewChannel creates a channel for <base>/<endpoint>. The optional listener
// is registered before any frame can arrive; more can be added with
// Subscribe. The connection is not dialed until Connect.
func NewChannel(base, endpoint string, listener Listener) *Channel {
	c := &Channel{
		endpoint: strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(endpoint, "/"),
		done:     make(chan struct{}),
	}
	if listener != nil {
		c.listeners = append(c.listeners, listener)
	}
	return c
}

// Subscribe registers an additional listener. Safe to call before or after
// Connect.
func (c *Channel) Subscribe(listener Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Send serializes the request and transmits it if the connection is open,
// otherwise appends it to the pending queue. The queue is unbounded; there
// is no delivery acknowledgment.
func (c *Channel) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if !c.open {
		c.pending = append(c.pending, data)
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Connect dials the endpoint, flushes the pending queue strictly in enqueue
// order, and starts the read loop. Pending sends are discarded once flushed.
func (c *Channel) Connect(ctx context.Context, header http.Header) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		if resp != nil {
			return errors.Join(err, errors.New("handshake status "+resp.Status))
		}
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrChannelClosed
	}
	c.conn = conn
	for _, frame := range c.pending {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.closed = true
			c.mu.Unlock()
			conn.Close()
			return err
		}
	}
	c.pending = nil
	c.open = true
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

func (c *Channel) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Closure is terminal for a channel; callers dial a new one.
			slog.Info("provider channel closed", "endpoint", c.endpoint, "error", err)
			c.mu.Lock()
			c.open = false
			c.closed = true
			c.mu.Unlock()
			return
		}

		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			slog.Warn("dropping malformed provider frame", "endpoint", c.endpoint, "error", err)
			continue
		}

		c.mu.Lock()
		listeners := append([]Listener(nil), c.listeners...)
		c.mu.Unlock()

		for _, listener := range listeners {
			listener(payload)
		}
	}
}

// Done is closed once the read loop has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. A closed channel rejects further sends.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.open = false
	if c.conn != nil {
		return c.conn.Close()
	}
	// Never dialed, so no read loop will ever close done.
	close(c.done)
	return nil
}
