package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/production-management/internal/auth"
	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

// TokenValidator checks the access token presented on the socket handshake.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*auth.Claims, error)
}

// Client is one connected socket. A user may hold several.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan []byte
}

// Hub keeps the connected sockets and routes frames to them by user.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	tokens     TokenValidator
	principals auth.PrincipalResolver
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewHub builds a hub. Sockets are only accepted for users principals still
// resolves. An empty origins list accepts every origin.
func NewHub(tokens TokenValidator, principals auth.PrincipalResolver, origins []string, logger *slog.Logger) *Hub {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		tokens:     tokens,
		principals: principals,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				_, wildcard := allowed["*"]
				return ok || wildcard
			},
		},
	}
}

// Run owns client registration until ctx is done, then closes every socket.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("websocket client connected", "user_id", client.userID)
			h.broadcastOnline()
		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			if ok {
				h.logger.Info("websocket client disconnected", "user_id", client.userID)
				h.broadcastOnline()
			}
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("websocket hub stopped")
			return
		}
	}
}

// SendToUser queues msg on every socket of userID. A client whose buffer is
// full misses the frame.
func (h *Hub) SendToUser(userID int64, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.userID != userID {
			continue
		}
		h.offer(client, payload, msg.Event)
	}
	return nil
}

func (h *Hub) Broadcast(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		h.offer(client, payload, msg.Event)
	}
	return nil
}

func (h *Hub) offer(client *Client, payload []byte, event string) {
	select {
	case client.send <- payload:
	default:
		h.logger.Warn("websocket client buffer full, frame dropped", "user_id", client.userID, "event", event)
	}
}

// OnlineUsers lists the distinct connected user ids in ascending order.
func (h *Hub) OnlineUsers() []int64 {
	h.mu.RLock()
	seen := make(map[int64]struct{}, len(h.clients))
	for client := range h.clients {
		seen[client.userID] = struct{}{}
	}
	h.mu.RUnlock()

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Hub) broadcastOnline() {
	if err := h.Broadcast(Message{Event: EventOnlineUsers, Data: h.OnlineUsers()}); err != nil {
		h.logger.Error("failed to broadcast online users", "error", err)
	}
}

// ServeWs authenticates the handshake with the access token from the "token"
// query parameter or the Authorization header, then upgrades.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = transport.BearerToken(r)
	}
	if token == "" {
		h.logger.Info("websocket connection rejected: missing token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		h.logger.Info("websocket connection rejected: invalid token", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	principal, err := h.principals.Resolve(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("websocket connection rejected: failed to resolve permissions", "user_id", claims.UserID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if principal == nil {
		h.logger.Info("websocket connection rejected: inactive user", "user_id", claims.UserID)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{hub: h, conn: conn, userID: principal.UserID, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// writePump writes one queued message per frame and keeps the peer alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process control messages
// and notice disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}
