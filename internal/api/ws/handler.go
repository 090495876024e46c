package ws

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Acknowledger applies acks received from subscribers.
type Acknowledger interface {
	MarkProcessed(eventID watchdog.EventID, sessionID watchdog.SessionID)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades stream requests and runs their connections.
type Handler struct {
	hub   *Hub
	acker Acknowledger
}

// NewHandler creates a stream handler.
func NewHandler(hub *Hub, acker Acknowledger) *Handler {
	return &Handler{hub: hub, acker: acker}
}

// HandleConnection handles GET /v1/stream?session=<id>.
func (h *Handler) HandleConnection(c *gin.Context) {
	raw := c.Query("session")
	sessionID, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session query parameter must be an int32"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:        id.NewConnID(),
		sessionID: watchdog.SessionID(sessionID),
		conn:      conn,
		send:      make(chan transport.Message, sendBuffer),
		done:      make(chan struct{}),
		hub:       h.hub,
	}
	cl.logger = h.hub.logger.With(
		logging.Session(cl.sessionID),
		zap.String("conn_id", cl.id.String()),
		zap.String("client_id", c.GetHeader(transport.ClientIDHeader)),
	)

	replaced, ok := h.hub.register(cl)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	if replaced != nil {
		replaced.logger.Info("subscriber replaced by newer connection")
		replaced.shutdown("replaced by newer subscriber")
	}

	h.hub.metrics.IncWSConnections()
	cl.logger.Info("subscriber connected")

	go cl.writePump()
	cl.readPump(h.acker)

	h.hub.unregister(cl)
	cl.shutdown("")
	h.hub.metrics.DecWSConnections()
	cl.logger.Info("subscriber disconnected")
}

type client struct {
	id        id.ConnID
	sessionID watchdog.SessionID
	conn      *websocket.Conn
	send      chan transport.Message
	hub       *Hub
	logger    *logging.Logger

	closeOnce   sync.Once
	done        chan struct{}
	closeReason string
}

func (c *client) enqueue(msg transport.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// shutdown stops the write pump, which sends a close frame carrying reason.
func (c *client) shutdown(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

func (c *client) readPump(acker Acknowledger) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := transport.Decode(data)
		if err != nil {
			c.hub.metrics.RecordWSMessage("in", "invalid")
			c.enqueue(transport.ErrorMessage(err.Error()))
			continue
		}
		c.hub.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case transport.TypeAck:
			if msg.SessionID != 0 && msg.SessionID != c.sessionID {
				c.enqueue(transport.ErrorMessage("ack for a session this stream is not subscribed to"))
				continue
			}
			acker.MarkProcessed(msg.EventID, c.sessionID)
		case transport.TypePing:
			c.enqueue(transport.Message{Type: transport.TypePong})
		case transport.TypePong:
		default:
			c.enqueue(transport.ErrorMessage("unexpected message type " + msg.Type))
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			data, err := transport.Encode(msg)
			if err != nil {
				c.logger.Error("failed to encode frame", zap.Error(err))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
			c.hub.metrics.RecordWSMessage("out", msg.Type)
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			if c.closeReason != "" {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, c.closeReason),
					time.Now().Add(writeWait))
			}
			return
		}
	}
}
