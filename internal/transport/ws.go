package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
)

// StreamPath is the daemon's websocket endpoint.
const StreamPath = "/v1/stream"

// ClientIDHeader optionally identifies the consumer process.
const ClientIDHeader = "X-Client-ID"

const writeWait = 5 * time.Second

// StreamURL turns a daemon base URL (http, https, ws or wss) into the
// websocket stream URL of a session.
func StreamURL(base string, sessionID int32) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + StreamPath
	u.RawQuery = url.Values{"session": {strconv.FormatInt(int64(sessionID), 10)}}.Encode()
	return u.String(), nil
}

// WS is a websocket connection subscribed to one session's events.
type WS struct {
	conn      *websocket.Conn
	sessionID int32
	logger    *logging.Logger

	writeMu sync.Mutex
}

// DialWS connects to the daemon at base and subscribes to sessionID.
// clientID may be empty.
func DialWS(ctx context.Context, base string, sessionID int32, clientID string, logger *logging.Logger) (*WS, error) {
	target, err := StreamURL(base, sessionID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var header http.Header
	if clientID != "" {
		header = http.Header{ClientIDHeader: {clientID}}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &WS{
		conn:      conn,
		sessionID: sessionID,
		logger:    logger.Named("ws").With(logging.Session(sessionID)),
	}, nil
}

// Read blocks for the next frame. Pings are answered transparently.
func (w *WS) Read() (Message, error) {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		msg, err := Decode(data)
		if err != nil {
			w.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if msg.Type == TypePing {
			if err := w.write(Message{Type: TypePong}); err != nil {
				return Message{}, err
			}
			continue
		}
		return msg, nil
	}
}

// SendAck implements heartbeat.Transport.
func (w *WS) SendAck(sessionID int32, eventID int64) {
	if err := w.write(AckMessage(sessionID, eventID)); err != nil {
		w.logger.Warn("ack not delivered", logging.Event(eventID), zap.Error(err))
	}
}

// Ping asks the daemon for a pong.
func (w *WS) Ping() error {
	return w.write(Message{Type: TypePing})
}

func (w *WS) write(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection.
func (w *WS) Close() error {
	w.writeMu.Lock()
	err := w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	w.writeMu.Unlock()

	if cerr := w.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// IsClosed reports whether err ends the read loop normally.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}
