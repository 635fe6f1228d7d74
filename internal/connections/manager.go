package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deepgram/glmchat/internal/logger"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// Manager tracks live stream connections so they can be kept alive while a
// reply is generated and closed together on shutdown.
type Manager struct {
	connections sync.Map
	mu          sync.RWMutex
	timeouts    TimeoutConfig
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers a new WebSocket connection
func (m *Manager) AddConnection(conn *websocket.Conn) {
	m.connections.Store(conn, struct{}{})
}

// RemoveConnection removes a WebSocket connection
func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	m.connections.Delete(conn)
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// HasConnection checks if a specific connection exists
func (m *Manager) HasConnection(conn *websocket.Conn) bool {
	_, exists := m.connections.Load(conn)
	return exists
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeouts
}

// SetTimeouts updates the timeout configuration
func (m *Manager) SetTimeouts(timeouts TimeoutConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = timeouts
}

// KeepAlive arms the read deadline of conn, extends it on every pong and
// pings the peer until done is closed. Pings are written with WriteControl,
// which may be called concurrently with the connection's other writes.
func (m *Manager) KeepAlive(conn *websocket.Conn, done <-chan struct{}) {
	timeouts := m.GetTimeouts()

	_ = conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(timeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
}

// CloseAll sends a going-away close frame to every registered connection and
// forgets them.
func (m *Manager) CloseAll() int {
	deadline := time.Now().Add(m.GetTimeouts().WriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")

	closed := 0
	m.connections.Range(func(key, value interface{}) bool {
		conn := key.(*websocket.Conn)
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			logger.For(logger.HANDLER).Debug().Err(err).Msg("Failed to send close frame")
		}
		_ = conn.Close()
		m.connections.Delete(conn)
		closed++
		return true
	})
	return closed
}
