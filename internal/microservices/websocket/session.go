package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	WriteWait      = 10 * time.Second // max time to write a message to the peer
	MaxMessageSize = 64 * 1024        // maximum inbound frame size allowed from peer
)

// Session is the server side of one provider websocket. Worker goroutines
// and the read loop both write to the peer, so writes are serialized here.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewSession(conn *websocket.Conn) *Session {
	conn.SetReadLimit(MaxMessageSize)
	return &Session{conn: conn}
}

// WriteJSON sends v as a JSON text frame under the write deadline.
func (s *Session) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return s.conn.WriteJSON(v)
}

// ReadMessage blocks for the next frame from the peer.
func (s *Session) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(WriteWait),
	)
	return s.conn.Close()
}
