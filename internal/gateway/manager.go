package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Manager fans display snapshots out to websocket clients. The flow is
// strictly one-way: clients receive DisplayUpdate frames and send nothing
// back into the core.
type Manager struct {
	mu    sync.RWMutex
	conns map[*Conn]bool

	upgrader websocket.Upgrader
	config   Config
}

// Conn is one websocket client.
type Conn struct {
	ID   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	mgr  *Manager
}

// Config holds websocket connection settings.
type Config struct {
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default websocket configuration. Origins are
// unrestricted; the gateway binds to localhost.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

func NewManager(config Config) *Manager {
	return &Manager{
		conns: make(map[*Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// Handle upgrades an HTTP request to a websocket connection and starts its
// pumps.
func (m *Manager) Handle(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := &Conn{
		ID:   uuid.New().String()[:8],
		ws:   ws,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
		mgr:  m,
	}

	m.mu.Lock()
	m.conns[conn] = true
	m.mu.Unlock()
	log.Debug().Str("conn", conn.ID).Msg("display client connected")

	go conn.writePump()
	go conn.readPump()
}

// Push marshals v and queues it to every connected client. Clients that
// cannot keep up are dropped.
func (m *Manager) Push(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal display snapshot")
		return
	}

	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			log.Debug().Str("conn", c.ID).Msg("display client too slow, dropping")
			m.unregister(c)
		}
	}
}

// Count returns the number of connected display clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Manager) unregister(c *Conn) {
	c.once.Do(func() {
		m.mu.Lock()
		delete(m.conns, c)
		m.mu.Unlock()

		close(c.done)
		c.ws.Close()
		log.Debug().Str("conn", c.ID).Msg("display client disconnected")
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.mgr.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.mgr.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.mgr.unregister(c)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.mgr.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.mgr.unregister(c)
				return
			}
		}
	}
}

// readPump discards client input; it exists to notice closed connections.
func (c *Conn) readPump() {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.mgr.unregister(c)
			return
		}
	}
}
