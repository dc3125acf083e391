// Package relay forwards settings changes upstream to Xmidt as WRP events.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	wrp "github.com/xmidt-org/wrp-go/v3"
)

// WRPDoer sends one WRP message and returns the reply, if any.
type WRPDoer interface {
	Do(context.Context, *wrp.Message) (*wrp.Message, error)
}

// WRPClient posts msgpack WRP messages to a Scytale endpoint.
type WRPClient struct {
	Client *http.Client
	URL    string
	// Authorization is sent as is when it names a scheme; bare credentials
	// are sent as Basic.
	Authorization string
}

// ErrBadStatus matches every *StatusError.
var ErrBadStatus = errors.New("relay: scytale rejected message")

// StatusError is returned for a non-2xx reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay: scytale returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrBadStatus }

const (
	maxErrorBody = 512
	maxReplyBody = 1 << 20
)

// Do posts m. Scytale acknowledges events with an empty body, in which case
// the reply is nil.
func (wc *WRPClient) Do(ctx context.Context, m *wrp.Message) (*wrp.Message, error) {
	req, err := wc.request(ctx, m)
	if err != nil {
		return nil, err
	}
	client := wc.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readReply(resp)
}

func (wc *WRPClient) request(ctx context.Context, m *wrp.Message) (*http.Request, error) {
	var body bytes.Buffer
	if err := wrp.NewEncoder(&body, wrp.Msgpack).Encode(m); err != nil {
		return nil, fmt.Errorf("relay: encode %s: %w", m.Destination, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.URL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", wrp.Msgpack.ContentType())
	if auth := authorization(wc.Authorization); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req, nil
}

func readReply(resp *http.Response) (*wrp.Message, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return nil, fmt.Errorf("relay: read reply: %w", err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	var reply wrp.Message
	if err := wrp.NewDecoderBytes(body, wrp.Msgpack).Decode(&reply); err != nil {
		return nil, fmt.Errorf("relay: decode reply: %w", err)
	}
	return &reply, nil
}

// authorization normalises the configured credential into a header value.
func authorization(raw string) string {
	auth := strings.TrimSpace(raw)
	if auth == "" {
		return ""
	}
	scheme, _, found := strings.Cut(auth, " ")
	if found {
		switch strings.ToLower(scheme) {
		case "basic", "bearer", "digest":
			return auth
		}
	}
	return "Basic " + auth
}
