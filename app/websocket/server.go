package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"SmartIMS/app/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	TypeConnected        MessageType = "connected"
	TypeInventoryUpdated MessageType = "inventory_updated"
	TypeLowStockAlert    MessageType = "low_stock_alert"
	TypeSubscribe        MessageType = "subscribe"
	TypeHeartbeat        MessageType = "heartbeat"
)

// ClientType represents the type of connected client
type ClientType string

const (
	ClientDashboard ClientType = "dashboard"
	ClientMobile    ClientType = "mobile"
)

const (
	sendBuffer  = 256
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second
	writeWait   = 10 * time.Second
	mdnsService = "_smartims._tcp"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// LowStockAlert is the payload of low_stock_alert
type LowStockAlert struct {
	ProductID    uint   `json:"product_id"`
	ProductName  string `json:"product_name"`
	WarehouseID  uint   `json:"warehouse_id"`
	Warehouse    string `json:"warehouse"`
	Quantity     int    `json:"quantity"`
	ReorderLevel int    `json:"reorder_level"`
	Shortfall    int    `json:"shortfall"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID          string
	Type        ClientType
	Connection  *websocket.Conn
	Send        chan []byte
	Server      *Server
	ConnectedAt time.Time
	RemoteAddr  string

	// warehouse filters inventory events; 0 receives all
	warehouse atomic.Uint64
}

// WarehouseID returns the warehouse the client is subscribed to, 0 for all
func (c *Client) WarehouseID() uint {
	return uint(c.warehouse.Load())
}

type outbound struct {
	data        []byte
	warehouseID uint
}

type directMessage struct {
	client *Client
	data   []byte
}

// Server fans inventory events out to WebSocket clients. Only the Run loop
// touches client send channels.
type Server struct {
	clients    map[string]*Client
	broadcast  chan outbound
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	log        *logrus.Logger

	// HeartbeatInterval is read when Run starts
	HeartbeatInterval time.Duration
}

// NewServer creates a new WebSocket server
func NewServer(log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		clients:    make(map[string]*Client),
		broadcast:  make(chan outbound, sendBuffer),
		direct:     make(chan directMessage, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		HeartbeatInterval: 30 * time.Second,
	}
}

// Run handles the hub loop until ctx is done, then disconnects every client
func (s *Server) Run(ctx context.Context) {
	interval := s.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client.ID] = client
			s.mu.Unlock()
			s.log.WithFields(logrus.Fields{
				"client":    client.ID,
				"type":      client.Type,
				"warehouse": client.WarehouseID(),
			}).Info("WebSocket client registered")
			s.deliver(client, s.encode(TypeConnected, client.ID, map[string]interface{}{
				"client_id":    client.ID,
				"warehouse_id": client.WarehouseID(),
			}))

		case client := <-s.unregister:
			s.drop(client)

		case msg := <-s.direct:
			s.mu.RLock()
			_, ok := s.clients[msg.client.ID]
			s.mu.RUnlock()
			if ok {
				s.deliver(msg.client, msg.data)
			}

		case msg := <-s.broadcast:
			s.mu.RLock()
			targets := make([]*Client, 0, len(s.clients))
			for _, client := range s.clients {
				if wh := client.WarehouseID(); msg.warehouseID == 0 || wh == 0 || wh == msg.warehouseID {
					targets = append(targets, client)
				}
			}
			s.mu.RUnlock()
			for _, client := range targets {
				s.deliver(client, msg.data)
			}

		case <-ticker.C:
			data := s.encode(TypeHeartbeat, "", map[string]string{"ping": "pong"})
			for _, client := range s.snapshot() {
				s.deliver(client, data)
			}

		case <-ctx.Done():
			for _, client := range s.snapshot() {
				s.drop(client)
			}
			close(s.done)
			s.log.Info("WebSocket hub stopped")
			return
		}
	}
}

// deliver queues data for one client, disconnecting it when its buffer is full
func (s *Server) deliver(client *Client, data []byte) {
	if data == nil {
		return
	}
	select {
	case client.Send <- data:
	default:
		s.log.WithField("client", client.ID).Warn("WebSocket client buffer full, disconnecting")
		s.drop(client)
	}
}

func (s *Server) drop(client *Client) {
	s.mu.Lock()
	_, ok := s.clients[client.ID]
	delete(s.clients, client.ID)
	s.mu.Unlock()
	if ok {
		close(client.Send)
		s.log.WithField("client", client.ID).Info("WebSocket client unregistered")
	}
}

func (s *Server) snapshot() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clients := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	return clients
}

func (s *Server) encode(kind MessageType, clientID string, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.WithError(err).Error("Error marshaling message payload")
		return nil
	}
	data, err := json.Marshal(Message{
		Type:      kind,
		ClientID:  clientID,
		Timestamp: time.Now(),
		Data:      raw,
	})
	if err != nil {
		s.log.WithError(err).Error("Error marshaling message")
		return nil
	}
	return data
}

// ServeHTTP upgrades the connection. ?type= names the client kind and
// ?warehouse_id= restricts inventory events to one warehouse.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientType := ClientType(r.URL.Query().Get("type"))
	if clientType == "" {
		clientType = ClientDashboard
	}
	var warehouseID uint
	if raw := r.URL.Query().Get("warehouse_id"); raw != "" {
		id, err := cast.ToUintE(raw)
		if err != nil {
			http.Error(w, "warehouse_id must be a non-negative integer", http.StatusBadRequest)
			return
		}
		warehouseID = id
	}

	select {
	case <-s.done:
		http.Error(w, "WebSocket hub stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Type:        clientType,
		Connection:  conn,
		Send:        make(chan []byte, sendBuffer),
		Server:      s,
		ConnectedAt: time.Now(),
		RemoteAddr:  r.RemoteAddr,
	}
	client.warehouse.Store(uint64(warehouseID))

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// PublishInventoryChange broadcasts inventory_updated and, when the new level
// is at or below the reorder level, low_stock_alert
func (s *Server) PublishInventoryChange(level models.InventoryLevel) {
	s.publish(s.encode(TypeInventoryUpdated, "", level), level.WarehouseID)

	if level.StockStatus == models.StockStatusLow {
		s.publish(s.encode(TypeLowStockAlert, "", LowStockAlert{
			ProductID:    level.ProductID,
			ProductName:  level.ProductName,
			WarehouseID:  level.WarehouseID,
			Warehouse:    level.Warehouse,
			Quantity:     level.Quantity,
			ReorderLevel: level.ReorderLevel,
			Shortfall:    level.ReorderLevel - level.Quantity,
		}), level.WarehouseID)
	}
}

// PublishLowStock broadcasts low_stock_alert for an item found by a stock check
func (s *Server) PublishLowStock(item models.LowStockItem) {
	s.publish(s.encode(TypeLowStockAlert, "", LowStockAlert{
		ProductID:    item.ProductID,
		ProductName:  item.ProductName,
		WarehouseID:  item.WarehouseID,
		Warehouse:    item.Warehouse,
		Quantity:     item.CurrentStock,
		ReorderLevel: item.ReorderLevel,
		Shortfall:    item.ReorderLevel - item.CurrentStock,
	}), item.WarehouseID)
}

func (s *Server) publish(data []byte, warehouseID uint) {
	if data == nil {
		return
	}
	select {
	case s.broadcast <- outbound{data: data, warehouseID: warehouseID}:
	case <-s.done:
	default:
		s.log.Warn("WebSocket broadcast queue full, dropping event")
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// GetServerStatus returns current hub status
func (s *Server) GetServerStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := map[ClientType]int{}
	for _, client := range s.clients {
		byType[client.Type]++
	}
	return map[string]interface{}{
		"total_clients":     len(s.clients),
		"dashboard_clients": byType[ClientDashboard],
		"mobile_clients":    byType[ClientMobile],
	}
}

// StartMDNS announces the API on the local network until ctx is done
func (s *Server) StartMDNS(ctx context.Context, port int) error {
	server, err := zeroconf.Register(
		"SmartIMS API",
		mdnsService,
		"local.",
		port,
		[]string{"version=1.0", "path=/ws"},
		nil,
	)
	if err != nil {
		return err
	}
	s.log.WithField("service", mdnsService).Info("mDNS: API announced on the local network")

	go func() {
		<-ctx.Done()
		server.Shutdown()
		s.log.Info("mDNS: Service announcement stopped")
	}()
	return nil
}

// readPump handles reading messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Server.unregister <- c:
		case <-c.Server.done:
		}
		c.Connection.Close()
	}()

	c.Connection.SetReadDeadline(time.Now().Add(pongWait))
	c.Connection.SetPongHandler(func(string) error {
		c.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Server.log.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		var message Message
		if err := json.Unmarshal(raw, &message); err != nil {
			c.Server.log.WithError(err).Debug("Error parsing message")
			continue
		}
		c.handleMessage(&message)
	}
}

// writePump handles writing messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages from clients
func (c *Client) handleMessage(message *Message) {
	switch message.Type {
	case TypeHeartbeat:
		c.reply(c.Server.encode(TypeHeartbeat, c.ID, map[string]string{"status": "alive"}))

	case TypeSubscribe:
		var sub struct {
			WarehouseID interface{} `json:"warehouse_id"`
		}
		if err := json.Unmarshal(message.Data, &sub); err != nil {
			return
		}
		id, err := cast.ToUintE(sub.WarehouseID)
		if err != nil {
			return
		}
		c.warehouse.Store(uint64(id))
		c.reply(c.Server.encode(TypeSubscribe, c.ID, map[string]uint{"warehouse_id": id}))

	default:
		c.Server.log.WithFields(logrus.Fields{
			"client": c.ID,
			"type":   message.Type,
		}).Debug("Unknown message type")
	}
}

func (c *Client) reply(data []byte) {
	if data == nil {
		return
	}
	select {
	case c.Server.direct <- directMessage{client: c, data: data}:
	case <-c.Server.done:
	}
}
