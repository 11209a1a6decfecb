package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wattbridge/ecoflow-bridge/internal/coordinator"
	"github.com/wattbridge/ecoflow-bridge/internal/ecoflow"
)

// deviceResponse is the detail view for one managed device.
type deviceResponse struct {
	SN              string         `json:"sn"`
	State           map[string]any `json:"state"`
	Source          string         `json:"source"`
	UpdatedAt       time.Time      `json:"updated_at"`
	IntervalSeconds int            `json:"interval_seconds"`
	Healthy         bool           `json:"healthy"`
	LastError       string         `json:"last_error,omitempty"`
}

// coordinatorFor resolves the coordinator for the sn URL parameter,
// writing a 404 when the device is not managed.
func (s *Server) coordinatorFor(w http.ResponseWriter, r *http.Request) (DeviceCoordinator, bool) {
	sn := chi.URLParam(r, "sn")
	coord, ok := s.coordinators[sn]
	if !ok {
		writeNotFound(w, "unknown device: "+sn)
		return nil, false
	}
	return coord, true
}

// handleListDevices returns the account device list from the cloud,
// annotated with which serial numbers this bridge manages.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.cloud == nil {
		writeUpstreamError(w, "cloud client not configured")
		return
	}

	devices, err := s.cloud.DeviceList(r.Context())
	if err != nil {
		s.logger.Warn("device list fetch failed", "error", err)
		writeUpstreamError(w, "fetching device list: "+err.Error())
		return
	}

	type entry struct {
		SN          string `json:"sn"`
		Name        string `json:"name,omitempty"`
		ProductName string `json:"product_name,omitempty"`
		Online      bool   `json:"online"`
		Managed     bool   `json:"managed"`
	}

	out := make([]entry, 0, len(devices))
	for _, d := range devices {
		_, managed := s.coordinators[d.SN]
		out = append(out, entry{
			SN:          d.SN,
			Name:        d.Name,
			ProductName: d.ProductName,
			Online:      d.IsOnline(),
			Managed:     managed,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// handleGetDevice returns the coordinator view of one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	snapshot := coord.State()
	resp := deviceResponse{
		SN:              coord.SN(),
		State:           snapshot.State,
		Source:          snapshot.Source,
		UpdatedAt:       snapshot.UpdatedAt,
		IntervalSeconds: int(coord.UpdateInterval() / time.Second),
		Healthy:         coord.LastError() == nil,
	}
	if err := coord.LastError(); err != nil {
		resp.LastError = err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetDeviceState returns only the merged state map.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	snapshot := coord.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"sn":         snapshot.SN,
		"state":      snapshot.State,
		"source":     snapshot.Source,
		"updated_at": snapshot.UpdatedAt,
	})
}

// handleRefreshDevice forces an immediate poll.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	if err := coord.Refresh(r.Context()); err != nil {
		writeUpstreamError(w, "refresh failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, coord.State())
}

// handleGetHistory returns recent state history for a device.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeNotFound(w, "history not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetHistory(r.Context(), coord.SN(), limit)
	if err != nil {
		writeInternalError(w, "querying history: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sn":      coord.SN(),
		"entries": entries,
	})
}

// handleExecuteCommand dispatches a registry command to the device.
func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	var req coordinator.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid command body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "command name is required")
		return
	}

	err := coord.ExecuteCommand(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"command": req.Name,
			"status":  "accepted",
		})
	case errors.Is(err, coordinator.ErrUnknownCommand),
		errors.Is(err, coordinator.ErrInvalidArgument):
		writeBadRequest(w, err.Error())
	case errors.Is(err, ecoflow.ErrAuthentication):
		writeUnauthorized(w, "cloud rejected credentials")
	default:
		writeUpstreamError(w, "command failed: "+err.Error())
	}
}

// intervalRequest is the polling interval update body.
type intervalRequest struct {
	Seconds int `json:"seconds"`
}

// handleSetInterval updates and persists the polling interval.
func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid interval body: "+err.Error())
		return
	}

	interval := time.Duration(req.Seconds) * time.Second
	if err := coord.SetUpdateInterval(r.Context(), interval); err != nil {
		if errors.Is(err, coordinator.ErrInvalidArgument) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "updating interval: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sn":               coord.SN(),
		"interval_seconds": req.Seconds,
	})
}

// handleGetDiagnostics returns the rolling diagnostics buffers.
func (s *Server) handleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, coord.Diagnostics())
}
