package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stepherg/sentinel/internal/ingest"
	"github.com/stepherg/sentinel/internal/protocol"
	"github.com/stepherg/sentinel/internal/store"
	"github.com/stepherg/sentinel/internal/telemetry"
)

// ListSensors returns every latest reading, or only the one named by ?type=.
func (h *APIHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("type"); id != "" {
		out := []telemetry.SensorReading{}
		if latest, ok := h.store.Readings.Latest(id); ok {
			out = append(out, latest)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Readings.LatestAll())
}

func (h *APIHandler) SensorHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "type")
	writeJSON(w, http.StatusOK, h.store.Readings.History(id, queryLimit(r, store.DefaultHistoryLimit)))
}

// CreateReading stores one fully described reading.
func (h *APIHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	var req protocol.ReadingSubmission
	if err := decodeStrict(w, r, &req); err != nil {
		writeInvalid(w, "Invalid sensor data", err)
		return
	}
	reading, err := req.Reading()
	if err != nil {
		writeInvalid(w, "Invalid sensor data", err)
		return
	}
	stored, err := h.store.Readings.Ingest(reading)
	if err != nil {
		writeInvalid(w, "Invalid sensor data", err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

type pushResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// IngestPush accepts the device push document {temperature?, gas?, battery?}.
func (h *APIHandler) IngestPush(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, pushResponse{Message: "invalid request body"})
		return
	}
	if _, err := h.ingester.IngestRaw(body); err != nil {
		if telemetry.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, pushResponse{Message: ingest.ErrNoSensorData})
			return
		}
		h.log.Error("push ingest", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, pushResponse{Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, pushResponse{Success: true})
}

func (h *APIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Settings.Get())
}

// PatchSettings merges the provided fields and returns the full record.
func (h *APIHandler) PatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch telemetry.SettingsPatch
	if err := decodeStrict(w, r, &patch); err != nil {
		writeInvalid(w, "Invalid settings data", err)
		return
	}
	updated, err := h.store.Settings.Update(patch)
	if err != nil {
		writeInvalid(w, "Invalid settings data", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *APIHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Activity.Recent(queryLimit(r, store.DefaultActivityLimit)))
}

type activityRequest struct {
	Category telemetry.Category `json:"category"`
	Message  string             `json:"message"`
	IconHint string             `json:"iconHint"`
}

func (h *APIHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeInvalid(w, "Invalid activity data", err)
		return
	}
	entry, err := h.store.Activity.Append(telemetry.ActivityEntry{
		Category: req.Category,
		Message:  req.Message,
		IconHint: req.IconHint,
	})
	if err != nil {
		writeInvalid(w, "Invalid activity data", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
	Sensors     int    `json:"sensors"`
}

func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sensors: h.store.Readings.Len()}
	if h.hub != nil {
		resp.Subscribers = h.hub.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}
