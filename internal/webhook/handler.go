package webhook

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	wrp "github.com/xmidt-org/wrp-go/v3"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/ingest"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// IncomingEvent is the plain JSON form accepted besides WRP.
type IncomingEvent struct {
	Device  string          `json:"device"`
	Service string          `json:"service"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Handler ingests device events delivered by the Xmidt fan-out. The event
// payload is the same JSON document devices POST to /api/sensor.
type Handler struct {
	Ingester *ingest.Ingester
	Log      *zap.Logger
}

// event is the decoded form shared by every accepted encoding.
type event struct {
	device  string
	service string
	name    string
	payload []byte
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 512*1024))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	ev, err := decodeEvent(r, body)
	if err != nil {
		log.Info("webhook: undecodable body", zap.Error(err), zap.String("preview", previewBytes(body, 128)))
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	readings, err := h.Ingester.IngestRaw(ev.payload)
	if err != nil {
		log.Info("webhook: payload rejected",
			zap.String("device", ev.device),
			zap.String("event", ev.name),
			zap.Error(err),
			zap.String("preview", previewBytes(ev.payload, 128)),
		)
		if telemetry.IsValidation(err) {
			http.Error(w, ingest.ErrNoSensorData, http.StatusBadRequest)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	log.Debug("webhook: event ingested",
		zap.String("device", ev.device),
		zap.String("service", nz(ev.service, "unknown")),
		zap.String("event", ev.name),
		zap.Int("readings", len(readings)),
	)
	w.WriteHeader(http.StatusAccepted)
}

// decodeEvent accepts a msgpack WRP message, a JSON WRP message, or an
// IncomingEvent. Anything else is treated as a bare payload described by
// headers.
func decodeEvent(r *http.Request, body []byte) (event, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == wrp.Msgpack.ContentType() {
		var msg wrp.Message
		if err := wrp.NewDecoderBytes(body, wrp.Msgpack).Decode(&msg); err != nil {
			return event{}, err
		}
		return fromWRP(&msg), nil
	}

	var probe map[string]json.RawMessage
	if json.Unmarshal(body, &probe) == nil {
		if _, isWRP := probe["msg_type"]; isWRP {
			var msg wrp.Message
			if err := wrp.NewDecoderBytes(body, wrp.JSON).Decode(&msg); err != nil {
				return event{}, err
			}
			return fromWRP(&msg), nil
		}
		var in IncomingEvent
		if json.Unmarshal(body, &in) == nil && in.Device != "" && len(in.Payload) > 0 {
			return event{device: in.Device, service: in.Service, name: in.Name, payload: in.Payload}, nil
		}
	}

	// Fallback heuristic: attempt minimal parse from headers.
	device := r.Header.Get("X-Xmidt-Device")
	if device == "" {
		device = r.Header.Get("X-Device-ID")
	}
	return event{
		device:  strings.TrimSpace(device),
		service: r.Header.Get("X-Service"),
		name:    nz(r.Header.Get("X-Event-Name"), "Unknown"),
		payload: body,
	}, nil
}

func fromWRP(msg *wrp.Message) event {
	return event{
		device:  extractDeviceFromSource(msg.Source),
		service: extractServiceFromSource(msg.Source),
		name:    extractEventFromDestination(msg.Destination),
		payload: msg.Payload,
	}
}

// extractDeviceFromSource returns "mac:112233445566" from
// "mac:112233445566/service".
func extractDeviceFromSource(source string) string {
	device, _, _ := strings.Cut(source, "/")
	return device
}

func extractServiceFromSource(source string) string {
	_, service, _ := strings.Cut(source, "/")
	return service
}

// extractEventFromDestination turns "event:<service>/<a>/<b>" into "a.b".
// A destination with a single segment is returned as is.
func extractEventFromDestination(dest string) string {
	dest = strings.TrimPrefix(dest, "event:")
	if dest == "" {
		return ""
	}
	parts := strings.Split(dest, "/")
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[1:], ".")
}

// previewBytes returns a printable (possibly truncated) string representation of raw bytes.
func previewBytes(b []byte, max int) string {
	if len(b) == 0 {
		return ""
	}
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}

// nz returns fallback if s is empty.
func nz(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
