package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/svanlent/seller-scraper/internal/fetcher"
	"github.com/svanlent/seller-scraper/internal/models"
	"github.com/svanlent/seller-scraper/internal/scraper"
)

// MaxBatchIDs caps how many sellers one batch request may ask for.
const MaxBatchIDs = 5

// OutboxHealth reports relay backlog counts for the health endpoint.
// *database.Relay satisfies it; nil disables the outbox section.
type OutboxHealth interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	service *scraper.Service
	outbox  OutboxHealth
	logger  zerolog.Logger
}

func NewHandlers(service *scraper.Service, outbox OutboxHealth, logger zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		outbox:  outbox,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// BatchItemResponse is one per-ID outcome in a batch lookup response.
type BatchItemResponse struct {
	SellerID int64                `json:"sellerId"`
	Status   string               `json:"status"`
	Record   *models.SellerRecord `json:"record,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// BatchResponse preserves the request's ID order.
type BatchResponse struct {
	Items []BatchItemResponse `json:"items"`
}

// GetSeller handles GET /api/v1/sellers/{sellerID}.
func (h *Handlers) GetSeller(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "sellerID")
	sellerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_id", "seller id must be numeric")
		return
	}

	record, err := h.service.Lookup(r.Context(), sellerID)
	if err != nil {
		status, kind := classifyLookupError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Int64("seller_id", sellerID).Err(err).Msg("lookup failed")
		}
		h.respondError(w, status, kind, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, record)
}

// GetSellers handles GET /api/v1/sellers?ids=1,2,3. Outcomes are reported
// per ID; the response is 200 even when individual lookups fail.
func (h *Handlers) GetSellers(w http.ResponseWriter, r *http.Request) {
	rawIDs := r.URL.Query().Get("ids")
	if rawIDs == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "ids query parameter is required")
		return
	}

	parts := strings.Split(rawIDs, ",")
	if len(parts) > MaxBatchIDs {
		h.respondError(w, http.StatusBadRequest, "invalid_request",
			"at most "+strconv.Itoa(MaxBatchIDs)+" ids per request")
		return
	}

	sellerIDs := make([]int64, 0, len(parts))
	for _, part := range parts {
		sellerID, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid_id", "invalid seller id: "+part)
			return
		}
		sellerIDs = append(sellerIDs, sellerID)
	}

	items := h.service.LookupBatch(r.Context(), sellerIDs)

	resp := BatchResponse{Items: make([]BatchItemResponse, 0, len(items))}
	for _, item := range items {
		out := BatchItemResponse{SellerID: item.SellerID, Record: item.Record}
		if item.Err != nil {
			_, out.Status = classifyLookupError(item.Err)
			out.Error = item.Err.Error()
		} else {
			out.Status = "ok"
		}
		resp.Items = append(resp.Items, out)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Health handles GET /healthz. With a relay wired in it also reports the
// outbox backlog and degrades the status when events pile up.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, pendingErr := h.outbox.GetPendingCount(r.Context())
		deadLetter, deadLetterErr := h.outbox.GetDeadLetterCount(r.Context())

		if err := errors.Join(pendingErr, deadLetterErr); err != nil {
			h.logger.Error().Err(err).Msg("failed to query outbox backlog")
			health["status"] = "warning"
			health["message"] = "outbox backlog unavailable"
			health["outbox"] = map[string]interface{}{"error": err.Error()}
			h.respondJSON(w, status, health)
			return
		}

		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "high number of pending outbox events"
		}
		if deadLetter > 100 {
			health["status"] = "error"
			health["message"] = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// classifyLookupError maps a lookup failure to an HTTP status and a stable
// error kind for the response body.
func classifyLookupError(err error) (int, string) {
	switch {
	case errors.Is(err, scraper.ErrInvalidSellerID):
		return http.StatusBadRequest, "invalid_id"
	case errors.Is(err, scraper.ErrSellerNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, scraper.ErrEmptySeller):
		return http.StatusNotFound, "empty"
	case fetcher.IsTimeout(err):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusBadGateway, "fetch_failed"
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, kind, message string) {
	h.respondJSON(w, status, map[string]string{"error": message, "kind": kind})
}
