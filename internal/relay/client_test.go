package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wrp "github.com/xmidt-org/wrp-go/v3"
)

func TestAuthorization(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"dXNlcjpwYXNz", "Basic dXNlcjpwYXNz"},
		{" Basic dXNlcjpwYXNz ", "Basic dXNlcjpwYXNz"},
		{"Bearer token123", "Bearer token123"},
		{"bearer token123", "bearer token123"},
		{"Digest something", "Digest something"},
		{"Token abc", "Basic Token abc"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, authorization(tt.in), "input %q", tt.in)
	}
}

func TestWRPClientPostsMsgpack(t *testing.T) {
	var got wrp.Message
	var contentType, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		auth = r.Header.Get("Authorization")
		if err := wrp.NewDecoder(r.Body, wrp.Msgpack).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := &WRPClient{URL: srv.URL, Authorization: "dXNlcjpwYXNz"}
	reply, err := client.Do(context.Background(), &wrp.Message{
		Type:        wrp.SimpleEventMessageType,
		Source:      "sentinel/gateway",
		Destination: "mac:112233445566/config",
	})
	require.NoError(t, err)
	assert.Nil(t, reply, "empty acknowledgement has no reply")
	assert.Equal(t, "application/msgpack", contentType)
	assert.Equal(t, "Basic dXNlcjpwYXNz", auth)
	assert.Equal(t, "mac:112233445566/config", got.Destination)
	assert.Equal(t, wrp.SimpleEventMessageType, got.Type)
}

func TestWRPClientDecodesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/msgpack")
		_ = wrp.NewEncoder(w, wrp.Msgpack).Encode(&wrp.Message{
			Type:   wrp.SimpleEventMessageType,
			Source: "mac:112233445566/config",
		})
	}))
	defer srv.Close()

	reply, err := (&WRPClient{URL: srv.URL}).Do(context.Background(), &wrp.Message{Type: wrp.SimpleEventMessageType})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "mac:112233445566/config", reply.Source)
}

func TestWRPClientBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device offline", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := (&WRPClient{URL: srv.URL}).Do(context.Background(), &wrp.Message{})
	require.ErrorIs(t, err, ErrBadStatus)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "device offline", se.Body)
}
