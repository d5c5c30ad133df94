package service

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// clientSendBuffer is how many broadcasts a client may fall behind
	// before it is dropped.
	clientSendBuffer = 16

	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// wsClient is one connected websocket consumer. Broadcasts go through
// the buffered send channel; only the write pump touches the
// connection for data frames, so gorilla's single-writer rule holds.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// hub tracks connected websocket clients and fans broadcasts out to
// them. A client that cannot keep up, its send buffer full when a
// broadcast arrives, is disconnected rather than allowed to stall the
// broadcaster.
type hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	metrics  *Metrics

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	stopc   chan struct{}
	wg      sync.WaitGroup

	connections  atomic.Int64
	slowDrops    atomic.Int64
	messagesSent atomic.Int64
	bytesSent    atomic.Int64
}

func newHub(logger *slog.Logger, metrics *Metrics) *hub {
	return &hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				// Monitor endpoints are same-network tooling, any origin
				// may connect
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		metrics: metrics,
		clients: make(map[*wsClient]struct{}),
	}
}

// start arms the hub for a new serving cycle
func (h *hub) start() {
	h.mu.Lock()
	h.stopc = make(chan struct{})
	h.mu.Unlock()
}

// stop disconnects every client and waits for the pumps to exit
func (h *hub) stop(timeout time.Duration) {
	h.mu.Lock()
	if h.stopc != nil {
		select {
		case <-h.stopc:
		default:
			close(h.stopc)
		}
	}
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c, "shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		h.logger.Warn("websocket pumps did not exit before timeout")
	}
}

// clientCount returns the number of connected clients
func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWS upgrades an HTTP request and registers the client
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	stopc := h.stopc
	h.mu.RUnlock()
	if stopc == nil {
		http.Error(w, "websocket hub not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		quit: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.connections.Add(1)
	if h.metrics != nil {
		h.metrics.wsClients.Set(float64(count))
	}
	h.logger.Info("websocket client connected", "remote", r.RemoteAddr, "clients", count)

	h.wg.Add(2)
	go h.writePump(client, stopc)
	go h.readPump(client)
}

// broadcast fans one message out to every connected client. The send
// is non-blocking: a client whose buffer is full is dropped.
func (h *hub) broadcast(data []byte) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.closed.Load() {
			continue
		}
		select {
		case c.send <- data:
			h.messagesSent.Add(1)
			h.bytesSent.Add(int64(len(data)))
			if h.metrics != nil {
				h.metrics.wsMessagesSent.Inc()
				h.metrics.wsBytesSent.Add(float64(len(data)))
			}
		default:
			h.slowDrops.Add(1)
			h.remove(c, "slow_client")
		}
	}
}

// remove disconnects one client. Safe to call from any goroutine and
// more than once.
func (h *hub) remove(c *wsClient, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)

		h.mu.Lock()
		delete(h.clients, c)
		count := len(h.clients)
		h.mu.Unlock()

		_ = c.conn.Close()

		if h.metrics != nil {
			h.metrics.wsClients.Set(float64(count))
			h.metrics.wsClientsDropped.WithLabelValues(reason).Inc()
		}
		h.logger.Info("websocket client disconnected", "reason", reason, "clients", count)
	})
}

// writePump moves broadcasts from the send channel onto the wire and
// keeps the connection alive with pings.
func (h *hub) writePump(c *wsClient, stopc chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c, "write_error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c, "ping_failed")
				return
			}
		case <-c.quit:
			return
		case <-stopc:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor stopping"))
			h.remove(c, "shutdown")
			return
		}
	}
}

// readPump drains the connection so control frames are processed. The
// monitor is broadcast only, inbound data frames are discarded.
func (h *hub) readPump(c *wsClient) {
	defer h.wg.Done()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c, "read_closed")
			return
		}
	}
}
