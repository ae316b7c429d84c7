package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rimkus-dev/sentiment/internal/metrics"
	"github.com/rimkus-dev/sentiment/internal/sentiment"
	"github.com/rimkus-dev/sentiment/internal/service"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

// Client message types.
const (
	MessageAnalyze = "analyze"
	MessageReset   = "reset"
	MessageInit    = "init"
)

// Server message types.
const (
	MessageState = "state"
	MessageError = "error"
)

// ClientMessage is a message sent by a WebSocket client.
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerMessage is a message pushed to a WebSocket client.
type ServerMessage struct {
	State   *sentiment.State `json:"state,omitempty"`
	Type    string           `json:"type"`
	Message string           `json:"message,omitempty"`
}

// WebSocketHandler gives every connection its own sentiment session, disposed
// when the connection closes.
type WebSocketHandler struct {
	baseCtx  context.Context
	shutdown context.CancelFunc
	service  *service.Sentiment
	metrics  *metrics.WebSocketMetrics
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(svc *service.Sentiment, m *metrics.WebSocketMetrics, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHandler{
		baseCtx:  ctx,
		shutdown: cancel,
		service:  svc,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger,
	}
}

// Shutdown closes every open connection.
func (h *WebSocketHandler) Shutdown() {
	h.shutdown()
}

// ServeHTTP upgrades the connection and serves it until it closes.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &wsConn{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		metrics: h.metrics,
		logger:  h.logger.With("remote", r.RemoteAddr),
	}
	c.ctx, c.cancel = context.WithCancel(h.baseCtx)

	session, err := h.service.Open(sentiment.WithOnChange(c.pushState))
	if err != nil {
		c.logger.Error("Failed to open sentiment session", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	c.setSession(session)

	h.metrics.ActiveConnections.Inc()
	c.logger.Info("WebSocket client connected", "session", session.ID())

	c.wg.Add(1)
	go c.writePump()

	c.pushState()
	c.readPump()

	c.cancel()
	h.service.Release(session)
	c.tasks.Wait()
	c.wg.Wait()
	_ = conn.Close()

	h.metrics.ActiveConnections.Dec()
	c.logger.Info("WebSocket client disconnected", "session", session.ID())
}

type wsConn struct {
	conn    *websocket.Conn
	send    chan []byte
	metrics *metrics.WebSocketMetrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// tasks tracks analyze and init calls started by the read loop.
	tasks sync.WaitGroup

	mu      sync.Mutex
	session *sentiment.Session
}

func (c *wsConn) setSession(s *sentiment.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *wsConn) getSession() *sentiment.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session
}

func (c *wsConn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read failed", "error", err)
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.pushError("invalid message")
				continue
			}
			return
		}
		c.metrics.MessagesReceived.Inc()
		c.handle(msg)
	}
}

func (c *wsConn) handle(msg ClientMessage) {
	session := c.getSession()

	switch msg.Type {
	case MessageAnalyze:
		c.tasks.Add(1)
		go func() {
			defer c.tasks.Done()
			if err := session.Analyze(c.ctx, msg.Text); err != nil {
				c.pushFailure(err)
			}
		}()
	case MessageInit:
		c.tasks.Add(1)
		go func() {
			defer c.tasks.Done()
			if err := session.InitPipeline(c.ctx); err != nil {
				c.pushFailure(err)
			}
		}()
	case MessageReset:
		session.Reset()
	default:
		c.pushError("unknown message type: " + msg.Type)
	}
}

func (c *wsConn) pushFailure(err error) {
	var loadErr *sentiment.LoadError
	var analyzeErr *sentiment.AnalyzeError

	switch {
	case errors.As(err, &loadErr):
		c.pushError(sentiment.LoadFailedMessage)
	case errors.As(err, &analyzeErr):
		c.pushError(sentiment.AnalyzeFailedMessage)
	case c.ctx.Err() != nil:
	default:
		c.logger.Error("Sentiment request failed", "error", err)
	}
}

func (c *wsConn) pushState() {
	session := c.getSession()
	if session == nil {
		return
	}
	state := session.State()
	c.push(ServerMessage{Type: MessageState, State: &state})
}

func (c *wsConn) pushError(message string) {
	c.push(ServerMessage{Type: MessageError, Message: message})
}

// push queues a message without blocking. Messages to a client that cannot
// keep up are dropped.
func (c *wsConn) push(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	select {
	case <-c.ctx.Done():
	case c.send <- data:
	default:
		c.logger.Warn("WebSocket send buffer full, message dropped")
	}
}

func (c *wsConn) writePump() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.conn.Close()
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("WebSocket write failed", "error", err)
				c.cancel()
				_ = c.conn.Close()
				return
			}
			c.metrics.MessagesPublished.Inc()
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				_ = c.conn.Close()
				return
			}
		}
	}
}
