/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/davinci/games/davinci"
	"github.com/Seednode/davinci/lobby"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	sendBuffer     = 64
	maxMessageSize = 8 << 10
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	qrSize         = 320
)

// Client is one websocket connection. Everything it is sent, acks and
// events alike, goes through send so the order is kept.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan any
	done   chan struct{}
	closer sync.Once
}

func (c *Client) close() {
	c.closer.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub tracks connected clients and implements lobby.Notifier on top of
// them. A client that cannot keep up is dropped rather than blocking the
// room that is notifying it.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	c.close()
}

func (h *Hub) deliver(c *Client, msg any) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		h.logger.Warn("client too slow, dropping", zap.String("participant", c.id))
		c.close()
	}
}

func (h *Hub) Notify(participantID string, ev lobby.Event) {
	h.mu.RLock()
	c, ok := h.clients[participantID]
	h.mu.RUnlock()

	if ok {
		h.deliver(c, ev)
	}
}

func (h *Hub) NotifyAll(ev lobby.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		h.deliver(c, ev)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			return origin == "" || slices.Contains(cfg.corsOrigins, "*") || slices.Contains(cfg.corsOrigins, origin)
		},
	}
}

func serveWS(s *server) httprouter.Handle {
	upgrader := newUpgrader(s.cfg)
	logger := s.logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("upgrade failed", zap.String("client", realIP(r)), zap.Error(err))
			return
		}

		c := &Client{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan any, sendBuffer),
			done: make(chan struct{}),
		}

		s.hub.register(c)

		logger.Info("client connected",
			zap.String("participant", c.id),
			zap.String("client", realIP(r)),
		)

		go c.writePump(logger)

		s.service.Connect(c.id)

		c.readPump(s, logger)

		s.hub.unregister(c)
		s.service.Disconnect(c.id)

		logger.Info("client disconnected", zap.String("participant", c.id))
	}
}

func (c *Client) readPump(s *server, logger *zap.Logger) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	reply := func(resp lobby.Response) {
		s.hub.deliver(c, resp)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("read failed", zap.String("participant", c.id), zap.Error(err))
			}
			return
		}

		var req lobby.Request
		if err := json.Unmarshal(data, &req); err != nil {
			reply(lobby.Response{
				Type:    "ack",
				Error:   davinci.CodeInvalidRequest,
				Message: "malformed request: " + err.Error(),
			})
			continue
		}

		s.service.Handle(c.id, req, reply)
	}
}

func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debug("write failed", zap.String("participant", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// roomURL is the address a QR code for roomID points at.
func roomURL(cfg *Config, r *http.Request, roomID string) string {
	// Respect TLS and X-Forwarded-Proto if present.
	scheme := cfg.scheme()
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(proto)
	}

	return scheme + "://" + r.Host + cfg.prefix + "/?room=" + roomID
}

func serveRoomQR(s *server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")

		if _, ok := s.registry.Room(roomID); !ok {
			serveError(s.cfg, w, http.StatusNotFound, "room not found")
			return
		}

		png, err := qrcode.Encode(roomURL(s.cfg, r, roomID), qrcode.Medium, qrSize)
		if err != nil {
			s.logger.Error("qr generation failed", zap.String("room", roomID), zap.Error(err))
			serveError(s.cfg, w, http.StatusInternalServerError, "qr generation failed")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(s.cfg, w)

		_, _ = w.Write(png)
	}
}
