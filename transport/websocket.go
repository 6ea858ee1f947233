package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const closeWriteTimeout = 2 * time.Second

// WebSocket is the production Transport: one gorilla/websocket connection
// carrying one text frame per message. The same instance is reusable across
// Connect/Close cycles, which is how the connection manager drives
// reconnects.
//
// A generation counter guards against stale events: Connect and Close bump
// it, and the dial goroutine and read pump discard anything that belongs to
// a previous generation. That is what makes Close silent and keeps the
// error-then-close ordering intact for transport-initiated failures.
type WebSocket struct {
	endpoint string
	token    string
	log      *logrus.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	gen     int
	dialing bool

	onOpen    func()
	onMessage func([]byte)
	onError   func(error)
	onClose   func(int, string)
}

// NewWebSocket creates a transport for the given endpoint URI. When token is
// non-empty it is attached to the connection URI as the "token" query
// parameter. A nil logger falls back to the logrus standard logger.
func NewWebSocket(endpoint, token string, log *logrus.Logger) *WebSocket {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebSocket{
		endpoint: endpoint,
		token:    token,
		log:      log,
	}
}

// Connect starts a dial attempt. It returns an error only for local
// problems (a malformed endpoint, or a connect while one is already live);
// the dial outcome itself arrives through OnOpen or OnError/OnClose.
func (ws *WebSocket) Connect(ctx context.Context) error {
	target, err := ws.dialURL()
	if err != nil {
		return err
	}

	ws.mu.Lock()
	if ws.dialing || ws.conn != nil {
		ws.mu.Unlock()
		return errors.New("transport: connect while already active")
	}
	ws.gen++
	gen := ws.gen
	ws.dialing = true
	ws.mu.Unlock()

	ws.log.WithFields(logrus.Fields{
		"endpoint": ws.endpoint,
	}).Debug("websocket dial")

	go ws.dial(ctx, target, gen)
	return nil
}

func (ws *WebSocket) dialURL() (string, error) {
	u, err := url.Parse(ws.endpoint)
	if err != nil {
		return "", fmt.Errorf("transport: bad endpoint: %w", err)
	}
	if ws.token != "" {
		q := u.Query()
		q.Set("token", ws.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (ws *WebSocket) dial(ctx context.Context, target string, gen int) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)

	ws.mu.Lock()
	if gen != ws.gen {
		// Close() or a newer Connect() superseded this dial.
		ws.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	ws.dialing = false

	if err != nil {
		onError, onClose := ws.onError, ws.onClose
		ws.mu.Unlock()
		ws.log.WithError(err).Debug("websocket dial failed")
		if onError != nil {
			onError(fmt.Errorf("transport: dial: %w", err))
		}
		if onClose != nil {
			onClose(CloseAbnormal, err.Error())
		}
		return
	}

	ws.conn = conn
	onOpen := ws.onOpen
	ws.mu.Unlock()

	go ws.readPump(conn, gen)
	if onOpen != nil {
		onOpen()
	}
}

func (ws *WebSocket) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ws.pumpClosed(gen, err)
			return
		}

		ws.mu.Lock()
		if gen != ws.gen {
			ws.mu.Unlock()
			return
		}
		onMessage := ws.onMessage
		ws.mu.Unlock()

		if onMessage != nil {
			onMessage(data)
		}
	}
}

// pumpClosed reports the end of a connection. A close frame from the peer
// surfaces as a close event with the peer's code; anything else (reset,
// EOF) is an error followed by an abnormal close.
func (ws *WebSocket) pumpClosed(gen int, err error) {
	ws.mu.Lock()
	if gen != ws.gen {
		// Explicit Close() already tore this connection down.
		ws.mu.Unlock()
		return
	}
	ws.gen++
	if ws.conn != nil {
		ws.conn.Close()
		ws.conn = nil
	}
	onError, onClose := ws.onError, ws.onClose
	ws.mu.Unlock()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		ws.log.WithFields(logrus.Fields{
			"code":   ce.Code,
			"reason": ce.Text,
		}).Debug("websocket closed by peer")
		if onClose != nil {
			onClose(ce.Code, ce.Text)
		}
		return
	}

	ws.log.WithError(err).Debug("websocket read failed")
	if onError != nil {
		onError(fmt.Errorf("transport: read: %w", err))
	}
	if onClose != nil {
		onClose(CloseAbnormal, err.Error())
	}
}

// Send writes one text frame. It returns ErrNotConnected with no live
// connection and the write error otherwise; a failed write is also
// detected by the read pump, which reports the error/close events.
func (ws *WebSocket) Send(data []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.conn == nil {
		return ErrNotConnected
	}
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Close tears the connection down without emitting events. A best-effort
// normal close frame tells the peer the shutdown is deliberate.
func (ws *WebSocket) Close() error {
	ws.mu.Lock()
	ws.gen++
	ws.dialing = false
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(CloseNormal, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	return conn.Close()
}

// OnOpen replaces the open callback.
func (ws *WebSocket) OnOpen(fn func()) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.onOpen = fn
}

// OnMessage replaces the inbound frame callback.
func (ws *WebSocket) OnMessage(fn func([]byte)) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.onMessage = fn
}

// OnError replaces the error callback.
func (ws *WebSocket) OnError(fn func(error)) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.onError = fn
}

// OnClose replaces the close callback.
func (ws *WebSocket) OnClose(fn func(int, string)) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.onClose = fn
}

var _ Transport = (*WebSocket)(nil)
