package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is what a waiting page receives for each reservation event.
type WSMessage struct {
	Type        domain.EventType    `json:"type"`
	Reservation *domain.Reservation `json:"reservation"`
	Contract    *domain.Contract    `json:"contract,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes reservation events to the pages watching each reservation.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*wsClient]struct{})}
}

func (h *Hub) Name() string { return "websocket" }

// Publish never blocks on a slow page; a full buffer drops the message and
// the page falls back to polling the reservation.
func (h *Hub) Publish(ctx context.Context, event domain.ReservationEvent) error {
	h.mu.RLock()
	clients := h.subs[event.Reservation.ID]
	if len(clients) == 0 {
		h.mu.RUnlock()
		return nil
	}
	body, err := json.Marshal(WSMessage{Type: event.Type, Reservation: event.Reservation, Contract: event.Contract})
	if err != nil {
		h.mu.RUnlock()
		return err
	}
	for c := range clients {
		select {
		case c.send <- body:
		default:
			logger.Warn("Websocket client too slow, dropping event", "reservationID", event.Reservation.ID)
		}
	}
	h.mu.RUnlock()
	return nil
}

func (h *Hub) subscribe(reservationID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[reservationID] == nil {
		h.subs[reservationID] = make(map[*wsClient]struct{})
	}
	h.subs[reservationID][c] = struct{}{}
}

func (h *Hub) unsubscribe(reservationID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[reservationID], c)
	if len(h.subs[reservationID]) == 0 {
		delete(h.subs, reservationID)
	}
	close(c.send)
}

func (h *Hub) subscribers(reservationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[reservationID])
}

// serve owns conn until the peer goes away. The first message is the
// reservation as read after subscribing, so no event falls between the
// snapshot and the stream.
func (h *Hub) serve(reservationID string, conn *websocket.Conn, snapshot func() (WSMessage, error)) {
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.subscribe(reservationID, c)

	go c.writePump()

	initial, err := snapshot()
	if err == nil {
		var body []byte
		if body, err = json.Marshal(initial); err == nil {
			select {
			case c.send <- body:
			default:
				logger.Warn("Websocket client too slow, dropping snapshot", "reservationID", reservationID)
			}
		}
	}
	if err != nil {
		logger.Warn("Websocket snapshot failed", "reservationID", reservationID, "error", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Websocket read error", "reservationID", reservationID, "error", err)
			}
			break
		}
	}
	h.unsubscribe(reservationID, c)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case body, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
