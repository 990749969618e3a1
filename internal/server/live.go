package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/transport"
	"github.com/roverscan/rovermap/pkg/streaming"
)

const (
	sendChSize     = 64
	subscribeSize  = 4
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// LiveCommand is the payload of a command message on the live feed.
type LiveCommand struct {
	ID string `json:"id,omitempty"`
	transport.Request
}

// LiveAck answers a LiveCommand with the same ID.
type LiveAck struct {
	ID string `json:"id,omitempty"`
	session.Ack
}

// liveClient manages one viewer connection with a single write goroutine.
type liveClient struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newLiveClient(conn *ws.Conn, logger *slog.Logger) *liveClient {
	return &liveClient{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// handleLive upgrades the request and streams snapshots until the viewer
// leaves or the server stops. Viewers may send command messages.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	c := newLiveClient(conn, s.log.With("remote", r.RemoteAddr))
	defer c.close()

	snaps, unsubscribe := s.engine.Subscribe(subscribeSize)
	defer unsubscribe()

	go c.writeLoop()
	go c.readLoop(s.handleLiveMessage)

	c.sendSnapshot(s.engine.Snapshot())
	for {
		select {
		case <-c.done:
			return
		case <-s.done:
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			c.sendSnapshot(snap)
		}
	}
}

// handleLiveMessage runs one viewer message and returns the reply.
func (s *Server) handleLiveMessage(c *liveClient, env streaming.Envelope) {
	if env.Type != streaming.TypeCommand {
		c.sendMessage(streaming.TypeError, streaming.ErrorMessage{Message: "unsupported message type " + env.Type})
		return
	}
	var in LiveCommand
	if err := env.Into(&in); err != nil {
		c.sendMessage(streaming.TypeError, streaming.ErrorMessage{Message: err.Error()})
		return
	}
	cmd, err := in.Command(s.engine.Defaults())
	if err != nil {
		c.sendMessage(streaming.TypeAck, LiveAck{ID: in.ID, Ack: transport.FailedAck(err)})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	ack, err := s.engine.Submit(ctx, cmd)
	if err != nil {
		ack = transport.FailedAck(err)
	}
	c.sendMessage(streaming.TypeAck, LiveAck{ID: in.ID, Ack: ack})
}

// writeLoop drains sendCh and pings the viewer. It returns on error or
// shutdown.
func (c *liveClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("WebSocket SetWriteDeadline error", "error", err)
				c.close()
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Debug("WebSocket write error", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop reads viewer messages until the connection fails.
func (c *liveClient) readLoop(handle func(*liveClient, streaming.Envelope)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
		env, err := streaming.Decode(message)
		if err != nil {
			c.sendMessage(streaming.TypeError, streaming.ErrorMessage{Message: err.Error()})
			continue
		}
		handle(c, env)
	}
}

// sendSnapshot queues a snapshot, dropping it when the viewer lags.
func (c *liveClient) sendSnapshot(snap session.Snapshot) {
	data, err := streaming.Encode(streaming.TypeSnapshot, snap)
	if err != nil {
		c.logger.Error("Failed to encode snapshot", "error", err)
		return
	}
	select {
	case c.sendCh <- data:
	default:
		c.logger.Debug("Live send channel full, dropping snapshot", "frame", snap.Frame)
	}
}

// sendMessage queues a reply, waiting for room unless the connection ends.
func (c *liveClient) sendMessage(msgType string, payload any) {
	data, err := streaming.Encode(msgType, payload)
	if err != nil {
		c.logger.Error("Failed to encode message", "type", msgType, "error", err)
		return
	}
	select {
	case c.sendCh <- data:
	case <-c.done:
	}
}

// close sends a close frame and shuts the connection once.
func (c *liveClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = c.conn.Close()
	})
}
