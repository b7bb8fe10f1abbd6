package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/openclaw/chat-gateway-go/internal/httputil"
	"github.com/openclaw/chat-gateway-go/internal/model"
	"github.com/openclaw/chat-gateway-go/internal/repository"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// ArchiveHandler exposes the message archive read-only, for operational
// inspection. Registered only when the archive is enabled.
type ArchiveHandler struct {
	deliveries repository.DeliveryLogRepository
	inbound    repository.InboundLogRepository
}

func NewArchiveHandler(deliveries repository.DeliveryLogRepository, inbound repository.InboundLogRepository) *ArchiveHandler {
	return &ArchiveHandler{deliveries: deliveries, inbound: inbound}
}

type deliveryLogResponse struct {
	Deliveries  []model.DeliveryRecord `json:"deliveries"`
	SentCount   int                    `json:"sentCount"`
	FailedCount int                    `json:"failedCount"`
}

func (h *ArchiveHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.deliveries.FindRecent(ctx, logLimit(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sent, err := h.deliveries.CountByStatus(ctx, string(model.DeliveryStatusSent))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	failed, err := h.deliveries.CountByStatus(ctx, string(model.DeliveryStatusFailed))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if records == nil {
		records = []model.DeliveryRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, deliveryLogResponse{
		Deliveries:  records,
		SentCount:   sent,
		FailedCount: failed,
	})
}

func (h *ArchiveHandler) ListInbound(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC3339",
			})
			return
		}
		since = parsed
	}

	records, err := h.inbound.FindSince(r.Context(), since, logLimit(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if records == nil {
		records = []model.InboundRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"messages": records})
}

func logLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > maxLogLimit {
		return defaultLogLimit
	}
	return limit
}
