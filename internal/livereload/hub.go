// Package livereload pushes reload signals to connected browsers over
// WebSocket.
//
// The Hub follows a hub pattern: one goroutine owns registration,
// unregistration and broadcasting, and every client has its own write pump
// fed by a buffered channel.
package livereload

import (
	"context"
	_ "embed"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/sitepipe/internal/logging"
)

// Paths served by the dev server for live reload.
const (
	EndpointPath = "/__livereload"
	ScriptPath   = "/__livereload.js"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

//go:embed livereload.js
var clientScript []byte

// ClientScript returns the browser script that connects to the hub.
func ClientScript() []byte {
	return clientScript
}

// Message is sent to every browser as JSON.
type Message struct {
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message types.
const (
	TypeReload = "reload"
	TypeHello  = "hello"
)

// Client is one connected browser tab.
type Client struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
}

// OriginValidator decides whether a browser origin may connect.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// LocalOrigins allows loopback origins and the listed host names.
type LocalOrigins struct {
	Hosts []string
}

// IsAllowedOrigin implements OriginValidator.
func (l LocalOrigins) IsAllowedOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	for _, allowed := range l.Hosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

// Hub tracks connected browsers and broadcasts reload messages to them.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	origins OriginValidator
	logger  logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
}

// NewHub creates a hub and starts its event loop. A nil validator accepts
// only loopback origins.
func NewHub(origins OriginValidator, logger logging.Logger) *Hub {
	if origins == nil {
		origins = LocalOrigins{}
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client, 32),
		unregister: make(chan *Client, 32),
		origins:    origins,
		logger:     logger.WithComponent("livereload"),
		ctx:        ctx,
		cancel:     cancel,
	}

	go h.run()
	return h
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	if origin := r.Header.Get("Origin"); origin != "" && !h.origins.IsAllowedOrigin(origin) {
		h.logger.Warn(r.Context(), nil, "Rejected live reload connection", "origin", origin)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origins are checked above.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, 16),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	hello, _ := json.Marshal(Message{Type: TypeHello, Timestamp: time.Now()})
	client.send <- hello

	h.handleClient(client)
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(h.ctx, "Browser connected", "client", client.ID, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.ID]
			delete(h.clients, client.ID)
			count := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.logger.Debug(h.ctx, "Browser disconnected", "client", client.ID, "clients", count)
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// A client that cannot keep up reloads on reconnect anyway.
					h.logger.Debug(h.ctx, "Dropping message for slow client", "client", client.ID)
				}
			}
			h.mu.RUnlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// handleClient runs the write pump and blocks on the read loop until the
// browser goes away.
func (h *Hub) handleClient(client *Client) {
	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	go h.writePump(ctx, client)

	// Browsers send nothing; reading detects close frames.
	for {
		if _, _, err := client.conn.Read(ctx); err != nil {
			break
		}
	}

	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
	client.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) writePump(ctx context.Context, client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-client.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := client.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "WebSocket write failed", "client", client.ID, "error", err.Error())
				client.conn.CloseNow()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := client.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				client.conn.CloseNow()
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Broadcast sends msg to every connected browser.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to encode live reload message")
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn(h.ctx, nil, "Broadcast queue full, dropping message", "type", msg.Type)
	}
}

// Reload asks every browser to reload. path names the changed output file,
// relative to the output root.
func (h *Hub) Reload(path string) {
	h.logger.Info(h.ctx, "Reloading browsers", "path", path, "clients", h.Clients())
	h.Broadcast(Message{Type: TypeReload, Path: path})
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.isShutdown.Store(true)

		h.mu.Lock()
		clients := make([]*Client, 0, len(h.clients))
		for _, client := range h.clients {
			clients = append(clients, client)
		}
		h.clients = make(map[string]*Client)
		h.mu.Unlock()

		h.cancel()
		for _, client := range clients {
			client.conn.CloseNow()
		}
	})
	return ctx.Err()
}

// IsShutdown reports whether Shutdown has been called.
func (h *Hub) IsShutdown() bool {
	return h.isShutdown.Load()
}
