package checkout

import (
	"net/http"

	"github.com/tradeguard/backend-quotes/internal/common"
)

// Handler exposes the checkout session endpoint.
type Handler struct {
	Service *Service
}

// Create handles POST /api/v1/checkout-session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	result, err := h.Service.Create(r.Context(), req)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}
