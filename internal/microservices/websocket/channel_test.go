package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

// testServer upgrades every request and exposes the inbound frames; frames
// written to send are pushed to the client.
type testServer struct {
	*httptest.Server
	received chan string
	send     chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		received: make(chan string, 16),
		send:     make(chan string, 16),
	}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		go func() {
			for msg := range ts.send {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ts.received <- string(data)
		}
	}))
	t.Cleanup(ts.Server.Close)
	return ts
}

func (ts *testServer) wsBase() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func recv(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

func TestChannel_QueuesBeforeConnectAndFlushesInOrder(t *testing.T) {
	ts := newTestServer(t)
	channel := NewChannel(ts.wsBase(), "/ws/providers", nil)

	// Queued while there is no connection at all.
	assert.NoError(t, channel.Send(map[string]any{"seq": 1}))
	assert.NoError(t, channel.Send(map[string]any{"seq": 2}))
	assert.NoError(t, channel.Send(map[string]any{"seq": 3}))

	err := channel.Connect(context.Background(), nil)
	assert.NoError(t, err)
	defer channel.Close()

	assert.JSONEq(t, `{"seq":1}`, recv(t, ts.received))
	assert.JSONEq(t, `{"seq":2}`, recv(t, ts.received))
	assert.JSONEq(t, `{"seq":3}`, recv(t, ts.received))
}

func TestChannel_SendAfterOpenGoesStraightOut(t *testing.T) {
	ts := newTestServer(t)
	channel := NewChannel(ts.wsBase(), "/ws/providers", nil)

	assert.NoError(t, channel.Connect(context.Background(), nil))
	defer channel.Close()

	assert.NoError(t, channel.Send(map[string]any{"command": "QUOTE"}))
	assert.JSONEq(t, `{"command":"QUOTE"}`, recv(t, ts.received))
}

func TestChannel_FansOutToEveryListenerOnce(t *testing.T) {
	ts := newTestServer(t)

	first := make(chan map[string]any, 4)
	second := make(chan map[string]any, 4)
	channel := NewChannel(ts.wsBase(), "/ws/providers", func(msg map[string]any) {
		first <- msg
	})
	channel.Subscribe(func(msg map[string]any) {
		second <- msg
	})

	assert.NoError(t, channel.Connect(context.Background(), nil))
	defer channel.Close()

	ts.send <- `{"provider":"sculpteo","state":"RESULT"}`

	for _, ch := range []chan map[string]any{first, second} {
		select {
		case msg := <-ch:
			assert.Equal(t, "sculpteo", msg["provider"])
			assert.Equal(t, "RESULT", msg["state"])
		case <-time.After(2 * time.Second):
			t.Fatal("listener never received the frame")
		}
	}
	// Exactly once: nothing else buffered.
	assert.Empty(t, first)
	assert.Empty(t, second)
}

func TestChannel_DropsMalformedFrames(t *testing.T) {
	ts := newTestServer(t)

	got := make(chan map[string]any, 4)
	channel := NewChannel(ts.wsBase(), "/ws/providers", func(msg map[string]any) {
		got <- msg
	})

	assert.NoError(t, channel.Connect(context.Background(), nil))
	defer channel.Close()

	ts.send <- `this is not json`
	ts.send <- `{"state":"RESULT"}`

	select {
	case msg := <-got:
		// The malformed frame was skipped, the valid one delivered.
		assert.Equal(t, "RESULT", msg["state"])
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame was never delivered")
	}
	assert.Empty(t, got)
}

func TestChannel_ServerCloseIsTerminal(t *testing.T) {
	ts := newTestServer(t)
	channel := NewChannel(ts.wsBase(), "/ws/providers", nil)

	assert.NoError(t, channel.Connect(context.Background(), nil))
	close(ts.send) // server sends a close frame

	select {
	case <-channel.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel never observed the close")
	}

	assert.ErrorIs(t, channel.Send(map[string]any{"seq": 1}), ErrChannelClosed)
}

func TestChannel_CloseRejectsFurtherSends(t *testing.T) {
	channel := NewChannel("ws://localhost:0", "/ws/providers", nil)
	assert.NoError(t, channel.Send(map[string]any{"seq": 1}))

	assert.NoError(t, channel.Close())
	assert.ErrorIs(t, channel.Send(map[string]any{"seq": 2}), ErrChannelClosed)

	// Done is closed even though the channel was never dialed.
	select {
	case <-channel.Done():
	case <-time.After(time.Second):
		t.Fatal("done never closed")
	}
}
