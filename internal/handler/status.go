package handler

import (
	"net/http"
	"time"

	"github.com/openclaw/chat-gateway-go/internal/httputil"
	"github.com/openclaw/chat-gateway-go/internal/model"
)

// StateReader reads the current session state.
type StateReader interface {
	Snapshot() model.SessionState
}

// StatusResponse is the minimal read surface for operational tooling.
type StatusResponse struct {
	IsConnected      bool   `json:"isConnected"`
	IsFullyValidated bool   `json:"isFullyValidated"`
	ConnectedNumber  string `json:"connectedNumber"`
	Timestamp        int64  `json:"timestamp"`
}

type StatusHandler struct {
	state StateReader
}

func NewStatusHandler(state StateReader) *StatusHandler {
	return &StatusHandler{state: state}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state := h.state.Snapshot()

	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		IsConnected:      state.Connected(),
		IsFullyValidated: state.Validated(),
		ConnectedNumber:  state.ConnectedIdentity,
		Timestamp:        time.Now().UnixMilli(),
	})
}
