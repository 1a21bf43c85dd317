package microservice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/types"
	"github.com/rs/zerolog"
)

// StatusHandler exposes the managed devices as JSON.
type StatusHandler struct {
	manager *DeviceManager
	logger  zerolog.Logger
}

// DeviceDetail is the body of GET /devices/{serial}.
type DeviceDetail struct {
	DeviceStatus
	Attributes map[device.Attribute]any `json:"attributes"`
	Pending    []types.PendingCommand   `json:"pending"`
}

// NewStatusHandler creates a handler over manager.
func NewStatusHandler(manager *DeviceManager, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		manager: manager,
		logger:  logger.With().Str("component", "StatusHandler").Logger(),
	}
}

// RegisterRoutes mounts the device routes on r.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/devices", h.handleList)
	r.Get("/devices/{serial}", h.handleDevice)
	r.Post("/devices/{serial}/refresh", h.handleRefresh)
	r.Get("/discovery", h.handleDiscovery)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *StatusHandler) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Devices())
}

func (h *StatusHandler) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Addresses())
}

func (h *StatusHandler) handleDevice(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	s, ok := h.manager.Session(serial)
	status, found := h.manager.Status(serial)
	if !ok || !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown device"})
		return
	}
	writeJSON(w, http.StatusOK, DeviceDetail{
		DeviceStatus: status,
		Attributes:   s.Attributes(),
		Pending:      s.Pending(),
	})
}

// handleRefresh asks the device to republish its state.
func (h *StatusHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	s, ok := h.manager.Session(serial)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown device"})
		return
	}
	err := s.RequestCurrentStatus()
	if err == nil && s.Profile().Family == types.FamilyFan {
		err = s.RequestEnvironmentalData()
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
	case errors.Is(err, device.ErrNotConnected):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "device not connected"})
	default:
		h.logger.Warn().Err(err).Str("serial", serial).Msg("Refresh request failed.")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "refresh failed"})
	}
}
