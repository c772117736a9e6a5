package websocket

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mobius/internal/progress"
	"mobius/internal/providers"
)

// HTTP upgrade handlers for the provider websocket endpoints.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// allow all origins for development purpose; can restrict later
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ProvidersHandler upgrades /ws/providers connections. Every inbound JSON
// request is dispatched to the provider services; every worker state
// transition is written back to the peer as a JSON frame.
func ProvidersHandler(dispatcher *providers.Dispatcher, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: user ID not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade to WebSocket"})
			return
		}
		session := NewSession(conn)
		defer session.Close()

		log.Info("providers socket opened", "user", userID)

		for {
			data, err := session.ReadMessage()
			if err != nil {
				log.Info("providers socket closed", "user", userID, "error", err)
				return
			}

			req, err := ParseRequest(data)
			if err != nil {
				log.Warn("dropping bad provider request", "user", userID, "error", err)
				continue
			}
			req.UserID = userID.(string)
			if req.ID == "" {
				req.ID = uuid.New().String()
			}

			dispatcher.Dispatch(*req, func(state providers.WorkerState) {
				if err := session.WriteJSON(state); err != nil {
					log.Warn("failed to write worker state", "user", userID, "error", err)
				}
			})
		}
	}
}

// UploadProgressHandler upgrades /ws/upload_progress connections and
// forwards the user's progress bus updates until either side goes away.
func UploadProgressHandler(bus progress.Bus, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: user ID not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade to WebSocket"})
			return
		}
		session := NewSession(conn)
		defer session.Close()

		updates, cancel := bus.Subscribe(c.Request.Context(), userID.(string))
		defer cancel()

		// Reads only serve to notice the peer going away; this socket is
		// one-way.
		readerGone := make(chan struct{})
		go func() {
			defer close(readerGone)
			for {
				if data, err := session.ReadMessage(); err != nil {
					return
				} else {
					log.Warn("unexpected message on progress socket", "user", userID, "message", string(data))
				}
			}
		}()

		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if err := session.WriteJSON(update); err != nil {
					log.Info("progress socket closed", "user", userID, "error", err)
					return
				}
			case <-readerGone:
				return
			}
		}
	}
}
