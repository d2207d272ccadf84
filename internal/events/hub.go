// Package events streams committed audit entries to websocket subscribers.
package events

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
)

// Event is one message pushed to feed subscribers.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// subscriber is one websocket client. send is drained by its writePump; a
// full buffer drops the subscriber rather than blocking the hub.
type subscriber struct {
	id      string
	address string
	conn    *websocket.Conn
	send    chan Event
}

// Hub fans events out to all connected subscribers. Delivery is best effort:
// the ledger never waits on a slow client.
type Hub struct {
	broadcast  chan Event
	register   chan *subscriber
	unregister chan *subscriber
	stop       chan struct{}
	count      atomic.Int64
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewHub creates a hub and starts its broadcast loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		broadcast:  make(chan Event, 256),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		stop:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}

	go h.run()

	return h
}

// PublishAuditEntry implements marketplace.AuditPublisher. It never blocks;
// when the hub is saturated the event is dropped.
func (h *Hub) PublishAuditEntry(entry *marketplace.AuditEntry) {
	event := Event{
		Type:      string(entry.Kind),
		Payload:   entry,
		Timestamp: entry.Timestamp,
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Event feed saturated, dropping audit event",
			zap.Uint64("seq", entry.Seq))
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// Close disconnects all subscribers and stops the broadcast loop.
func (h *Hub) Close() {
	close(h.stop)
}

// HandleConnection handles GET /api/v1/ws, upgrading the request and
// subscribing the client to the feed.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}

	sub := &subscriber{
		id:      uuid.NewString(),
		address: auth.CallerAddress(c),
		conn:    conn,
		send:    make(chan Event, 64),
	}

	select {
	case h.register <- sub:
	case <-h.stop:
		conn.Close()
		return
	}

	go h.readPump(sub)
	go h.writePump(sub)
}

// run owns the subscriber set. Registration, removal and broadcast all pass
// through this goroutine, so the set needs no lock.
func (h *Hub) run() {
	subscribers := make(map[*subscriber]bool)

	for {
		select {
		case sub := <-h.register:
			subscribers[sub] = true
			h.count.Store(int64(len(subscribers)))
			h.logger.Info("Feed subscriber connected",
				zap.String("subscriber_id", sub.id),
				zap.String("address", sub.address))

		case sub := <-h.unregister:
			if subscribers[sub] {
				delete(subscribers, sub)
				close(sub.send)
				h.count.Store(int64(len(subscribers)))
				h.logger.Info("Feed subscriber disconnected",
					zap.String("subscriber_id", sub.id))
			}

		case event := <-h.broadcast:
			for sub := range subscribers {
				select {
				case sub.send <- event:
				default:
					delete(subscribers, sub)
					close(sub.send)
					h.count.Store(int64(len(subscribers)))
				}
			}

		case <-h.stop:
			for sub := range subscribers {
				delete(subscribers, sub)
				close(sub.send)
			}
			h.count.Store(0)
			return
		}
	}
}

// readPump drains client frames. The feed is one way, so inbound payloads
// are discarded; the loop only keeps the pong deadline fresh and detects
// disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		// after Close the run loop is gone and nobody drains unregister
		select {
		case h.unregister <- sub:
		case <-h.stop:
		}
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("Feed subscriber read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes events to the client and keeps the connection alive with
// pings.
func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
