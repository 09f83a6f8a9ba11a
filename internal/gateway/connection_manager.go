package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/TalexCK/GameVoting/internal/voting"
)

// ConnectionManager owns the lobby's WebSocket connections. It doubles as
// the roster: a player counts as online while at least one of their
// connections is open.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[*Connection]bool
	players     map[uuid.UUID]*playerEntry

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan []byte

	// onQuit fires when a player's last connection closes.
	onQuit func(uuid.UUID)
}

type playerEntry struct {
	name  string
	conns int
}

// Connection is one WebSocket client.
type Connection struct {
	ID       string
	PlayerID uuid.UUID
	Name     string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds WebSocket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates the lobby connection manager. onQuit may be
// nil.
func NewConnectionManager(config ConnectionConfig, onQuit func(uuid.UUID)) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		players:     make(map[uuid.UUID]*playerEntry),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan []byte, 1000),
		onQuit:      onQuit,
	}
}

// SetOnQuit installs the disconnect hook. Call before serving traffic.
func (cm *ConnectionManager) SetOnQuit(fn func(uuid.UUID)) {
	cm.onQuit = fn
}

// Start processes broadcasts until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case data := <-cm.broadcastCh:
			cm.deliver(data)
		}
	}
}

// OnlineCount implements voting.Roster.
func (cm *ConnectionManager) OnlineCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.players)
}

// PlayerName implements the coordinator's NameResolver.
func (cm *ConnectionManager) PlayerName(id uuid.UUID) (string, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	entry, ok := cm.players[id]
	if !ok {
		return "", false
	}
	return entry.name, true
}

// Notify implements voting.Notifier by broadcasting the event to the lobby.
func (cm *ConnectionManager) Notify(ev voting.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	select {
	case cm.broadcastCh <- data:
	default:
		log.Warn().Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP request to a lobby WebSocket.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerID uuid.UUID, name string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		Name:        name,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player", name).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true
	entry, ok := cm.players[conn.PlayerID]
	if !ok {
		entry = &playerEntry{name: conn.Name}
		cm.players[conn.PlayerID] = entry
	}
	entry.name = conn.Name
	entry.conns++

	log.Debug().
		Str("connection_id", conn.ID).
		Int("online_players", len(cm.players)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if !cm.connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)

	lastConn := false
	if entry, ok := cm.players[conn.PlayerID]; ok {
		entry.conns--
		if entry.conns <= 0 {
			delete(cm.players, conn.PlayerID)
			lastConn = true
		}
	}
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player", conn.Name).
		Msg("connection unregistered")

	if lastConn && cm.onQuit != nil {
		cm.onQuit(conn.PlayerID)
	}
}

// deliver fans one encoded message out to every connection.
func (cm *ConnectionManager) deliver(data []byte) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("player", conn.Name).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}
}

// Stats reports the current connection counts.
func (cm *ConnectionManager) Stats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"online_players":    len(cm.players),
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		// Clients only listen; inbound payloads are ignored.
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
