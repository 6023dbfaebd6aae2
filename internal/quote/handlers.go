package quote

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradeguard/backend-quotes/internal/common"
)

// Handler exposes the quote endpoints.
type Handler struct {
	Service *Service
	MaxBody int64
}

// Create handles POST /api/v1/quotes. The raw body is stored verbatim.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	maxBody := h.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read request body", nil)
		return
	}
	if int64(len(raw)) > maxBody {
		common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "document exceeds size limit", nil)
		return
	}
	result, err := h.Service.Create(r.Context(), raw)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}

// Get handles GET /api/v1/quotes/{id}, serving the stored document verbatim.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Service.Raw(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// Metrics handles GET /api/v1/quotes/{id}/metrics.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Metrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Summary handles POST /api/v1/quotes/{id}/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	view, err := h.Service.Summary(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Decision handles POST /api/v1/quotes/{id}/decision.
func (h *Handler) Decision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	result, err := h.Service.Decision(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": result})
}

// List handles GET /api/v1/quotes for authenticated agents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	items, total, err := h.Service.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}
