// Package webhook registers the gateway as an Xmidt webhook consumer and
// ingests the device events delivered to it.
package webhook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Config holds configuration for Argus webhook registration.
// The webhook definition is stored as an Argus item in Bucket (default hooks).
type Config struct {
	Enable         bool
	ArgusURL       string
	Bucket         string
	AuthBasic      string
	CallbackURL    string
	Events         []string
	DeviceMatchers []string
	Duration       time.Duration // webhook lifetime for ancla registration
	TTL            int           // seconds for Argus item ttl (0 => default 24h server side)
	Retries        int
	RetryDelay     time.Duration // default 5s

	// HTTPClient is used by raw registration; defaults to a 30s timeout client.
	HTTPClient *http.Client
}

// Item is the payload sent to Argus store bucket.
type Item struct {
	ID   string      `json:"id"`
	Data interface{} `json:"data"`
	TTL  int         `json:"ttl,omitempty"`
}

// WebhookData is the opaque data stored (convention between fanout service and gateway).
type WebhookData struct {
	Callback string   `json:"callback"`
	Events   []string `json:"events"`
	Devices  []string `json:"devices"`
}

func (c Config) withDefaults() Config {
	if c.Bucket == "" {
		c.Bucket = "hooks"
	}
	if len(c.Events) == 0 {
		c.Events = []string{".*"}
	}
	if len(c.DeviceMatchers) == 0 {
		c.DeviceMatchers = []string{".*"}
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// ItemID is deterministic per callback URL so re-registration overwrites.
func (c Config) ItemID() string {
	h := sha256.Sum256([]byte(strings.ToLower(c.CallbackURL)))
	return hex.EncodeToString(h[:])
}

// Register stores or updates the webhook definition in Argus via PUT /store/<bucket>/<id>,
// retrying until it succeeds, retries run out or ctx is done.
func (c Config) Register(ctx context.Context, log *zap.Logger) error {
	if !c.Enable {
		log.Info("webhook: disabled")
		return nil
	}
	if c.ArgusURL == "" || c.CallbackURL == "" {
		return fmt.Errorf("webhook: missing argus url or callback url")
	}
	c = c.withDefaults()

	id := c.ItemID()
	item := Item{ID: id, Data: WebhookData{Callback: c.CallbackURL, Events: c.Events, Devices: c.DeviceMatchers}}
	if c.TTL > 0 {
		item.TTL = c.TTL
	}
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("webhook: marshal item: %w", err)
	}
	url := fmt.Sprintf("%s/store/%s/%s", strings.TrimRight(c.ArgusURL, "/"), c.Bucket, id)
	log = log.With(zap.String("id", id), zap.String("callback", c.CallbackURL))

	return retry(ctx, log, c.Retries, c.RetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.AuthBasic != "" {
			req.Header.Set("Authorization", c.AuthBasic)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		log.Info("webhook: registered", zap.Int("status", resp.StatusCode))
		return nil
	})
}

// retry runs attempt once plus up to retries more times, waiting delay
// between attempts.
func retry(ctx context.Context, log *zap.Logger, retries int, delay time.Duration, attempt func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn("webhook: registration attempt failed", zap.Duration("retry_in", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(attempt, b, notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("webhook: max retries exhausted: %w", err)
	}
	return nil
}
