package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/monitor"
	"github.com/ternarybob/pipewatch/internal/services/events"
)

const (
	writeWait = 10 * time.Second

	// Snapshot requests a single client may make per second
	snapshotRate = 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Message types
const (
	MessageHello            = "hello"
	MessageSnapshot         = "snapshot"
	MessageJobUpdate        = "job_update"
	MessageNotice           = "notice"
	MessageScheduledTrigger = "scheduled_trigger"
	MessagePong             = "pong"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// HelloPayload is the first message of every connection
type HelloPayload struct {
	ServerInstanceID string `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
	Version          string `json:"version"`
}

// ViewSource supplies the current view of every job kind
type ViewSource interface {
	Views() []monitor.View
}

// wsClient is one connection and the lock serializing its writes
type wsClient struct {
	conn     *websocket.Conn
	mu       sync.Mutex
	snapshot *rate.Limiter
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketHandler pushes job views, notices and scheduled triggers to
// console clients
type WebSocketHandler struct {
	logger           arbor.ILogger
	views            ViewSource
	coalescer        *events.ViewCoalescer
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	serverInstanceID string
}

// NewWebSocketHandler creates the handler and subscribes it to eventService
// when one is given
func NewWebSocketHandler(eventService interfaces.EventService, views ViewSource, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		views:            views,
		clients:          make(map[*websocket.Conn]*wsClient),
		serverInstanceID: common.NewInstanceID(),
	}

	var throttle time.Duration
	if config != nil {
		throttle = common.ParseDurationOr(config.UpdateThrottle, 0)
	}
	h.coalescer = events.NewViewCoalescer(throttle, h.broadcastViews, logger)

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	if eventService != nil {
		h.subscribe(eventService)
	}
	return h
}

func (h *WebSocketHandler) subscribe(eventService interfaces.EventService) {
	subscriptions := map[interfaces.EventType]interfaces.EventHandler{
		interfaces.EventJobUpdated: func(ctx context.Context, event interfaces.Event) error {
			if v, ok := event.Payload.(monitor.View); ok {
				h.coalescer.Record(v)
			}
			return nil
		},
		interfaces.EventJobNotice: func(ctx context.Context, event interfaces.Event) error {
			if notice, ok := event.Payload.(models.Notice); ok {
				h.broadcast(WSMessage{Type: MessageNotice, Payload: notice})
			}
			return nil
		},
		interfaces.EventScheduledTrigger: func(ctx context.Context, event interfaces.Event) error {
			if trigger, ok := event.Payload.(models.ScheduledTrigger); ok {
				h.broadcast(WSMessage{Type: MessageScheduledTrigger, Payload: trigger})
			}
			return nil
		},
	}

	for eventType, handler := range subscriptions {
		if err := eventService.Subscribe(eventType, handler); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket handler")
		}
	}
}

// Start flushes throttled job updates until ctx is done
func (h *WebSocketHandler) Start(ctx context.Context) {
	h.coalescer.Start(ctx)
}

// ServerInstanceID returns the ID reported to clients in the hello message
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{
		conn:     conn,
		snapshot: rate.NewLimiter(rate.Limit(snapshotRate), snapshotRate),
	}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.send(client, WSMessage{Type: MessageHello, Payload: HelloPayload{
		ServerInstanceID: h.serverInstanceID,
		Version:          common.GetVersion(),
	}})
	h.sendSnapshot(client)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
		h.handleClientMessage(client, data)
	}
}

// handleClientMessage answers "snapshot" and "ping" requests; anything else
// is ignored
func (h *WebSocketHandler) handleClientMessage(client *wsClient, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug().Err(err).Msg("Ignoring malformed WebSocket message")
		return
	}

	switch msg.Type {
	case MessageSnapshot:
		if !client.snapshot.Allow() {
			h.logger.Debug().Msg("WebSocket snapshot request throttled")
			return
		}
		h.sendSnapshot(client)
	case "ping":
		h.send(client, WSMessage{Type: MessagePong, Payload: time.Now().UTC().Format(time.RFC3339)})
	}
}

func (h *WebSocketHandler) sendSnapshot(client *wsClient) {
	if h.views == nil {
		return
	}
	views := h.views.Views()
	panels := make([]JobPanel, 0, len(views))
	for _, v := range views {
		panels = append(panels, NewJobPanel(v))
	}
	h.send(client, WSMessage{Type: MessageSnapshot, Payload: panels})
}

func (h *WebSocketHandler) send(client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}
	if err := client.write(data); err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
	}
}

// broadcastViews is the coalescer's flush target
func (h *WebSocketHandler) broadcastViews(views []monitor.View) {
	for _, v := range views {
		h.broadcast(WSMessage{Type: MessageJobUpdate, Payload: NewJobPanel(v)})
	}
}

// broadcast sends msg to all connected clients
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(data); err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}

// Close disconnects every client
func (h *WebSocketHandler) Close() {
	h.coalescer.Flush()

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, client := range h.clients {
		client.mu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		client.mu.Unlock()
		conn.Close()
	}
}
