// Package network streams terrain updates to viewers over websockets and
// accepts their reference point updates.
package network

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"terrainstream/internal/config"
)

// Handler processes one message received from a viewer.
type Handler func(ctx context.Context, viewer string, env Envelope)

// ConnectHook runs when a viewer connects, before its read loop starts. It
// may Send to the viewer.
type ConnectHook func(viewer string)

// Hub fans server messages out to every connected viewer.
type Hub struct {
	logger       *log.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	maxSize      int64
	seq          atomic.Uint64

	mu        sync.RWMutex
	viewers   map[string]*viewer
	handlers  map[MessageType][]Handler
	onConnect []ConnectHook
}

type viewer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewHub(cfg config.NetworkConfig, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	maxSize := cfg.MaxMessageBytes
	if maxSize <= 0 {
		maxSize = 64 * 1024
	}
	writeTimeout := cfg.WriteTimeout.Duration()
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		pingInterval: cfg.PingInterval.Duration(),
		maxSize:      maxSize,
		viewers:      make(map[string]*viewer),
		handlers:     make(map[MessageType][]Handler),
	}
}

func (h *Hub) Register(msgType MessageType, handler Handler) {
	h.mu.Lock()
	h.handlers[msgType] = append(h.handlers[msgType], handler)
	h.mu.Unlock()
}

func (h *Hub) OnConnect(hook ConnectHook) {
	h.mu.Lock()
	h.onConnect = append(h.onConnect, hook)
	h.mu.Unlock()
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// ServeHTTP upgrades the request and serves the viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	v := &viewer{id: uuid.NewString(), conn: conn}
	conn.SetReadLimit(h.maxSize)

	h.mu.Lock()
	h.viewers[v.id] = v
	hooks := append([]ConnectHook(nil), h.onConnect...)
	h.mu.Unlock()
	h.logger.Printf("viewer %s connected from %s", v.id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		h.remove(v)
		h.logger.Printf("viewer %s disconnected", v.id)
	}()

	for _, hook := range hooks {
		hook(v.id)
	}
	if h.pingInterval > 0 {
		go h.keepAlive(ctx, v)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("viewer %s read: %v", v.id, err)
			}
			return
		}
		env, err := Decode(data)
		if err != nil {
			h.logger.Printf("decode message from viewer %s: %v", v.id, err)
			continue
		}
		for _, handler := range h.handlersFor(env.Type) {
			handler(ctx, v.id, env)
		}
	}
}

func (h *Hub) keepAlive(ctx context.Context, v *viewer) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.mu.Lock()
			err := v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout))
			v.mu.Unlock()
			if err != nil {
				h.logger.Printf("ping viewer %s: %v", v.id, err)
				v.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) handlersFor(msgType MessageType) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Handler(nil), h.handlers[msgType]...)
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	delete(h.viewers, v.id)
	h.mu.Unlock()
	v.conn.Close()
}

// Send writes one message to a single viewer.
func (h *Hub) Send(viewerID string, msgType MessageType, payload any) error {
	h.mu.RLock()
	v, ok := h.viewers[viewerID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("viewer %s not connected", viewerID)
	}
	data, err := h.prepare(msgType, payload)
	if err != nil {
		return err
	}
	return h.write(v, data)
}

// Broadcast writes one message to every viewer. Viewers whose write fails
// are disconnected.
func (h *Hub) Broadcast(msgType MessageType, payload any) error {
	h.mu.RLock()
	if len(h.viewers) == 0 {
		h.mu.RUnlock()
		return nil
	}
	targets := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		targets = append(targets, v)
	}
	h.mu.RUnlock()

	data, err := h.prepare(msgType, payload)
	if err != nil {
		return err
	}
	for _, v := range targets {
		if err := h.write(v, data); err != nil {
			h.logger.Printf("write %s to viewer %s: %v", msgType, v.id, err)
			h.remove(v)
		}
	}
	return nil
}

func (h *Hub) write(v *viewer, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return v.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Hub) prepare(msgType MessageType, payload any) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       h.seq.Add(1),
		Payload:   raw,
	}
	return Encode(env)
}
