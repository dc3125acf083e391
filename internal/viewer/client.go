// Package viewer is the dashboard side of the real-time connection. A Client
// keeps a Cache in sync with the server and reconnects on a fixed delay
// whenever the connection drops.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/protocol"
	"github.com/stepherg/sentinel/internal/telemetry"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultPingInterval   = 30 * time.Second

	writeWait = 10 * time.Second
)

var ErrNotOpen = errors.New("viewer: connection not open")

// State is the client side lifecycle of the connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Client maintains one connection to the server's /ws endpoint.
type Client struct {
	URL    string
	Dialer *websocket.Dialer
	Cache  *Cache
	Log    *zap.Logger

	// Backoff paces reconnects. Defaults to a constant DefaultReconnectDelay.
	Backoff      backoff.BackOff
	PingInterval time.Duration

	// OnState and OnFrame are optional observers. OnFrame runs on the read
	// goroutine after the frame has been applied to the cache.
	OnState func(State)
	OnFrame func(protocol.Kind)

	state atomic.Int32
	mu    sync.Mutex // guards conn and serialises writes
	conn  *websocket.Conn
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.logger().Debug("viewer state", zap.Stringer("state", s))
	if c.OnState != nil {
		c.OnState(s)
	}
}

func (c *Client) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// Run connects and keeps reconnecting until ctx is done or the backoff
// policy gives up.
func (c *Client) Run(ctx context.Context) error {
	if c.Cache == nil {
		c.Cache = NewCache()
	}
	b := c.Backoff
	if b == nil {
		b = backoff.NewConstantBackOff(DefaultReconnectDelay)
	}
	log := c.logger().With(zap.String("url", c.URL))
	defer c.setState(StateDisconnected)

	for {
		opened, err := c.session(ctx)
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opened {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		log.Info("viewer disconnected", zap.Error(err), zap.Duration("retry_in", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session dials once and serves the connection until it fails. opened
// reports whether the connection reached StateOpen.
func (c *Client) session(ctx context.Context) (opened bool, err error) {
	c.setState(StateConnecting)
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateOpen)

	stop := make(chan struct{})
	defer func() {
		close(stop)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()
	go c.keepalive(ctx, conn, stop)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			c.logger().Warn("viewer: bad frame", zap.Error(err))
			continue
		}
		if err := c.Cache.Apply(env); err != nil {
			c.logger().Debug("viewer: frame not applied", zap.String("kind", string(env.Kind)), zap.Error(err))
			continue
		}
		if c.OnFrame != nil {
			c.OnFrame(env.Kind)
		}
	}
}

// keepalive sends a liveness probe every PingInterval and closes conn when
// ctx ends so the read loop unblocks.
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	interval := c.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := c.Send(protocol.Ping()); err != nil {
				c.logger().Debug("viewer: ping failed", zap.Error(err))
			}
		}
	}
}

// Send writes one frame on the open connection.
func (c *Client) Send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotOpen
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(m)
}

// UpdateSettings asks the server to apply p. The result arrives as a
// settings update.
func (c *Client) UpdateSettings(p telemetry.SettingsPatch) error {
	return c.Send(protocol.SettingsChangeRequest(p))
}

func (c *Client) SubmitReading(s protocol.ReadingSubmission) error {
	return c.Send(protocol.ReadingSubmissionRequest(s))
}
