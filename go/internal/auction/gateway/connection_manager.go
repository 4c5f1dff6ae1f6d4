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
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ConnectionManager fans lot events out to websocket connections grouped by lot.
type ConnectionManager struct {
	lotConnections map[uuid.UUID]map[*Connection]struct{}
	mu             sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	BidderID string
	LotID    uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	closeOnce   sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &ConnectionManager{
		lotConnections: make(map[uuid.UUID]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and sends the
// initial snapshot, if any, before live events.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, bidderID string, lotID uuid.UUID, initial *models.LotSnapshot) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		BidderID:    bidderID,
		LotID:       lotID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	if initial != nil {
		data, err := json.Marshal(events.Frame{Kind: events.FrameSnapshot, Snapshot: initial})
		if err == nil {
			connection.Send <- data
		}
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("bidder_id", bidderID).
		Str("lot_id", lotID.String()).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.lotConnections[conn.LotID] == nil {
		cm.lotConnections[conn.LotID] = make(map[*Connection]struct{})
	}
	cm.lotConnections[conn.LotID][conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("lot_id", conn.LotID.String()).
		Int("total_connections", len(cm.lotConnections[conn.LotID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, ok := cm.lotConnections[conn.LotID]
	if !ok {
		return
	}
	if _, ok := connections[conn]; !ok {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.lotConnections, conn.LotID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("lot_id", conn.LotID.String()).
		Msg("connection unregistered")
}

// Publish sends lot events to every connection watching the lot. A
// connection whose buffer is full is closed; the client resyncs by polling.
func (cm *ConnectionManager) Publish(_ context.Context, lotID uuid.UUID, evs []models.LotEvent) error {
	cm.mu.RLock()
	connections := make([]*Connection, 0, len(cm.lotConnections[lotID]))
	for conn := range cm.lotConnections[lotID] {
		connections = append(connections, conn)
	}
	cm.mu.RUnlock()
	if len(connections) == 0 {
		return nil
	}

	for i := range evs {
		ev := evs[i]
		if !ev.Type.Mutating() {
			continue
		}
		data, err := json.Marshal(events.Frame{Kind: events.FrameEvent, Event: &ev})
		if err != nil {
			return fmt.Errorf("failed to marshal event for broadcast: %w", err)
		}
		for _, conn := range connections {
			cm.send(conn, data)
		}
	}

	log.Debug().
		Str("lot_id", lotID.String()).
		Int("events", len(evs)).
		Int("connections", len(connections)).
		Msg("events broadcasted")
	return nil
}

func (cm *ConnectionManager) send(conn *Connection, data []byte) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if _, ok := cm.lotConnections[conn.LotID][conn]; !ok {
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("lot_id", conn.LotID.String()).
			Msg("connection send buffer full, closing connection")
		go conn.close()
	}
}

// Connections returns the number of open connections for a lot.
func (cm *ConnectionManager) Connections(lotID uuid.UUID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.lotConnections[lotID])
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	perLot := make(map[string]int, len(cm.lotConnections))
	for lotID, connections := range cm.lotConnections {
		total += len(connections)
		perLot[lotID.String()] = len(connections)
	}
	return map[string]interface{}{
		"total_connections": total,
		"active_lots":       len(cm.lotConnections),
		"lot_connections":   perLot,
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
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
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer c.close()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		// Clients do not send commands; reads only keep the deadline fresh.
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
