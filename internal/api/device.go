package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/airlink/internal/appliance"
)

// StateResponse is the body of GET /api/v1/state.
type StateResponse struct {
	Serial      string           `json:"serial"`
	ProductType string           `json:"product_type"`
	Status      appliance.Status `json:"status"`
	State       appliance.State  `json:"state"`
}

// CommandRequest is the body of POST /api/v1/commands.
//
// Either Action (with Value) or Command (with Data) must be set. Action uses
// the named vocabulary ("power", "fan-speed", ...); Command sends a raw
// command name with its data map.
type CommandRequest struct {
	Action  string            `json:"action,omitempty"`
	Value   string            `json:"value,omitempty"`
	Command string            `json:"command,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	profile := s.device.Profile()
	writeJSON(w, http.StatusOK, StateResponse{
		Serial:      profile.Serial,
		ProductType: profile.ProductType,
		Status:      s.device.Status(),
		State:       s.device.State(),
	})
}

func (s *Server) handleGetFaults(w http.ResponseWriter, _ *http.Request) {
	faults := s.device.Faults()
	writeJSON(w, http.StatusOK, map[string]any{
		"faults": faults,
		"count":  len(faults),
	})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.device.Connection())
}

// handleReconnect drops the current connection and runs one connect
// evaluation from scratch.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	connected := s.device.ForceReconnect(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"connected":  connected,
		"connection": s.device.Connection(),
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var err error
	switch {
	case req.Action != "" && req.Command != "":
		writeBadRequest(w, "set either action or command, not both")
		return
	case req.Action != "":
		err = s.device.Perform(r.Context(), req.Action, req.Value)
	case req.Command != "":
		err = s.device.SendCommand(r.Context(), req.Command, req.Data)
	default:
		writeBadRequest(w, "action or command is required")
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
	case errors.Is(err, appliance.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, appliance.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConnected, "appliance is not connected")
	default:
		s.logger.Warn("command publish failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "command could not be published")
	}
}
