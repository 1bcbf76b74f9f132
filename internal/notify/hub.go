package notify

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"yield-ledger-go/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types pushed to connected clients.
const (
	EventBalanceUpdate    = "balance_update"
	EventDepositCompleted = "deposit_completed"
	EventSignalGenerated  = "signal_generated"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Event is one message for a user, or for everyone when UserId is empty.
type Event struct {
	Type   string            `json:"type"`
	UserId string            `json:"user_id,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ev Event)
}

type client struct {
	userId string
	conn   *websocket.Conn
}

// Hub is the registry of live websocket connections keyed by user. All writes
// to a connection happen on the run goroutine.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*websocket.Conn]bool
	register   chan client
	unregister chan client
	broadcast  chan Event

	listenAddr string
	server     *http.Server
	upgrader   websocket.Upgrader

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func NewHub(cfg models.HubConfig) *Hub {
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]bool),
		register:   make(chan client, 100),
		unregister: make(chan client, 100),
		broadcast:  make(chan Event, 100),
		listenAddr: cfg.ListenAddr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the dispatch loop and, when a listen address is configured, the
// websocket endpoint at /ws.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		if h.listenAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/ws", h)
			h.server = &http.Server{Addr: h.listenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				if serveErr := h.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					zap.L().Error("Websocket hub server stopped", zap.Error(serveErr))
				}
			}()
			zap.L().Info("Websocket hub listening", zap.String("addr", h.listenAddr))
		}
		go h.run()
	})
}

// Stop closes the endpoint and every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		zap.L().Info("Stopping websocket hub")
		if h.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := h.server.Shutdown(ctx); err != nil {
				zap.L().Warn("Websocket hub shutdown error", zap.Error(err))
			}
		}
		close(h.stopChan)
		select {
		case <-h.doneChan:
		case <-time.After(shutdownTimeout):
			zap.L().Warn("Websocket hub did not stop in time")
		}
	})
}

// Publish queues an event. Events are dropped when the hub is stopped or its
// queue is full.
func (h *Hub) Publish(ev Event) {
	select {
	case <-h.stopChan:
		return
	default:
	}
	select {
	case h.broadcast <- ev:
	default:
		zap.L().Warn("Websocket hub queue full, dropping event",
			zap.String("type", ev.Type),
			zap.String("user_id", ev.UserId))
	}
}

// Connections returns the number of live connections for a user.
func (h *Hub) Connections(userId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userId])
}

// ServeHTTP upgrades a request carrying ?user_id= and keeps the connection
// registered until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("user_id")
	if userId == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}

	c := client{userId: userId, conn: conn}
	select {
	case h.register <- c:
	case <-h.stopChan:
		conn.Close()
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("Websocket read error", zap.String("user_id", userId), zap.Error(err))
			}
			break
		}
	}

	select {
	case h.unregister <- c:
	case <-h.stopChan:
	}
}

func (h *Hub) run() {
	defer close(h.doneChan)
	for {
		select {
		case <-h.stopChan:
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.userId] == nil {
				h.clients[c.userId] = make(map[*websocket.Conn]bool)
			}
			h.clients[c.userId][c.conn] = true
			count := len(h.clients[c.userId])
			h.mu.Unlock()
			zap.L().Info("Websocket client registered",
				zap.String("user_id", c.userId),
				zap.Int("connection_count", count))

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c.userId, c.conn)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := h.clients
	if ev.UserId != "" {
		targets = map[string]map[*websocket.Conn]bool{ev.UserId: h.clients[ev.UserId]}
	}

	for userId, conns := range targets {
		for conn := range conns {
			err := conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err == nil {
				err = conn.WriteJSON(ev)
			}
			if err != nil {
				zap.L().Warn("Failed to send websocket message",
					zap.String("user_id", userId),
					zap.String("type", ev.Type),
					zap.Error(err))
				h.remove(userId, conn)
			}
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(userId string, conn *websocket.Conn) {
	conns, ok := h.clients[userId]
	if !ok {
		return
	}
	if _, ok := conns[conn]; ok {
		delete(conns, conn)
		conn.Close()
	}
	if len(conns) == 0 {
		delete(h.clients, userId)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userId, conns := range h.clients {
		for conn := range conns {
			conn.Close()
		}
		delete(h.clients, userId)
	}
}
