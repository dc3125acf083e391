// Package ws serves the real-time viewer connection: a full state snapshot on
// connect, then every store change as it happens.
package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/events"
	"github.com/stepherg/sentinel/internal/metrics"
	"github.com/stepherg/sentinel/internal/protocol"
	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// Keepalive timing follows the gorilla/websocket chat server.
const (
	pongWait   = 75 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second

	maxMessageSize = 512 * 1024
)

// Handler upgrades HTTP to WebSocket and binds the connection to the store
// and the broadcast hub.
type Handler struct {
	Upgrader websocket.Upgrader
	Store    *store.Store
	Hub      *events.Hub
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

// State is the server side lifecycle of one connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type client struct {
	h     *Handler
	id    string
	conn  *websocket.Conn
	log   *zap.Logger
	mu    sync.Mutex // serialises writes
	state atomic.Int32
	sub   *events.Subscription
	done  chan struct{}
	once  sync.Once
}

// CheckOrigin returns an upgrader origin check accepting only allowed. An
// empty value or "*" accepts every origin.
func CheckOrigin(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "" || allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	c, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", zap.Error(err))
		return
	}
	id := uuid.NewString()
	cl := &client{
		h:    h,
		id:   id,
		conn: c,
		log:  log.With(zap.String("conn", id), zap.String("remote", r.RemoteAddr)),
		done: make(chan struct{}),
	}
	go cl.run()
}

func (c *client) State() State { return State(c.state.Load()) }

func (c *client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Debug("connection state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (c *client) run() {
	defer c.recover("reader")
	defer c.close()

	c.h.Metrics.ConnectionOpened()
	defer c.h.Metrics.ConnectionClosed()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Subscribe before taking the snapshot so nothing published in between
	// is lost. An event already folded into the snapshot may arrive again
	// as an update; applying it twice leaves the viewer in the same state.
	c.sub = c.h.Hub.Subscribe()
	if err := c.write(protocol.Snapshot(c.h.Store.Snapshot())); err != nil {
		c.log.Debug("snapshot write failed", zap.Error(err))
		return
	}
	c.setState(StateOpen)
	c.log.Info("viewer connected")

	go c.keepalive()
	go c.forward()

	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		c.handle(message)
	}
}

// keepalive sends control-frame pings until the connection closes.
func (c *client) keepalive() {
	defer c.recover("keepalive")
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// forward writes hub events to the socket in publish order.
func (c *client) forward() {
	defer c.recover("forwarder")
	ch := c.sub.Events()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// Evicted by the hub: this viewer stopped draining.
				c.log.Warn("subscriber evicted")
				c.close()
				return
			}
			if err := c.write(protocol.FromEvent(ev)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) handle(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		c.log.Debug("dropping frame", zap.Error(err))
		return
	}
	c.h.Metrics.MessageReceived(string(env.Kind), env.Known())

	switch env.Kind {
	case protocol.KindPing:
		if err := c.write(protocol.Pong()); err != nil {
			c.close()
		}
	case protocol.KindSettingsChangeRequest:
		var patch telemetry.SettingsPatch
		if err := env.Into(&patch); err != nil {
			c.log.Info("invalid settings change", zap.Error(err))
			return
		}
		// The result reaches this viewer through the hub like everyone else.
		if _, err := c.h.Store.Settings.Update(patch); err != nil {
			c.log.Info("settings change rejected", zap.Error(err))
		}
	case protocol.KindReadingSubmissionRequest:
		var sub protocol.ReadingSubmission
		if err := env.Into(&sub); err != nil {
			c.log.Info("invalid reading submission", zap.Error(err))
			return
		}
		reading, err := sub.Reading()
		if err == nil {
			_, err = c.h.Store.Readings.Ingest(reading)
		}
		if err != nil {
			c.log.Info("reading submission rejected", zap.Error(err))
		}
	default:
		if env.Known() {
			c.log.Debug("ignoring server-bound kind from viewer", zap.String("kind", string(env.Kind)))
			return
		}
		c.log.Info("ignoring unknown frame kind", zap.String("kind", string(env.Kind)))
	}
}

var errClosed = errors.New("connection closed")

func (c *client) write(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateClosed {
		return errClosed
	}
	// Refresh per-message write deadline to avoid stale timeout from prior ping when queue backs up.
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(m)
	if err == nil {
		return nil
	}
	var nerr net.Error
	switch {
	case errors.As(err, &nerr) && nerr.Timeout(), errors.Is(err, os.ErrDeadlineExceeded):
		c.log.Info("write deadline exceeded", zap.String("kind", string(m.Kind)), zap.Error(err))
	case errors.Is(err, websocket.ErrCloseSent), errors.Is(err, net.ErrClosed):
		c.log.Debug("write after close", zap.String("kind", string(m.Kind)))
	default:
		c.log.Info("write error", zap.String("kind", string(m.Kind)), zap.Error(err))
	}
	return err
}

// close is terminal and safe to call from any goroutine.
func (c *client) close() {
	c.once.Do(func() {
		c.setState(StateClosed)
		close(c.done)
		c.h.Hub.Unsubscribe(c.sub)
		_ = c.conn.Close()
		c.log.Info("viewer disconnected")
	})
}

// recover keeps a panic in one connection from taking down the process.
func (c *client) recover(where string) {
	if r := recover(); r != nil {
		c.log.Error("connection panic", zap.String("goroutine", where), zap.Any("panic", r), zap.Stack("stack"))
		c.close()
	}
}
