package infra

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebsocketOption heartbeat timings
type WebsocketOption struct {
	WriteWait    time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
}

// Websocket upgrades echo requests and keeps the connection alive with pings
type Websocket struct {
	upgrader     websocket.Upgrader
	writeWait    time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
}

// NewWebsocket .
func NewWebsocket(options ...*WebsocketOption) *Websocket {
	ws := &Websocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			HandshakeTimeout: 3 * time.Second,
		},
		writeWait: 10 * time.Second,
		pongWait:  30 * time.Second,
	}
	if len(options) > 0 {
		option := options[0]
		if option.WriteWait > 0 {
			ws.writeWait = option.WriteWait
		}
		if option.PongWait > 0 {
			ws.pongWait = option.PongWait
		}
		ws.pingInterval = option.PingInterval
	}
	if ws.pingInterval <= 0 || ws.pingInterval >= ws.pongWait {
		ws.pingInterval = ws.pongWait * 9 / 10
	}
	return ws
}

// Session one upgraded connection. Done is closed once the peer is gone.
type Session struct {
	conn      *websocket.Conn
	writeWait time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// Done closed when the connection is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// WriteJSON send v as a text frame, only one goroutine may write at a time
func (s *Session) WriteJSON(v interface{}) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	return s.conn.WriteJSON(v)
}

// Close close the connection, safe to call more than once
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.writeWait))
		s.conn.Close()
		close(s.done)
	})
}

// WithHeartbeat wrap handler function with heartbeat probe.
//
// handler owns the write side of the session, the read side is drained
// in the background so pongs and close frames get processed.
func (ws *Websocket) WithHeartbeat(handler func(*Session) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := ws.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// upgrader already replied
			return nil
		}

		s := &Session{conn: conn, writeWait: ws.writeWait, done: make(chan struct{})}
		go ws.readRoutine(s)
		go ws.heartbeatRoutine(s)
		go processRoutine(s, handler)
		return nil
	}
}

func (ws *Websocket) readRoutine(s *Session) {
	defer s.Close()
	s.conn.SetReadDeadline(time.Now().Add(ws.pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(ws.pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

func (ws *Websocket) heartbeatRoutine(s *Session) {
	ticker := time.NewTicker(ws.pingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ws.writeWait)); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func processRoutine(s *Session, handler func(*Session) error) {
	defer s.Close()
	handler(s)
}
