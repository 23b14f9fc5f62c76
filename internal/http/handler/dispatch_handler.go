package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mizuki-dev/guildgate/internal/http/response"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/service"
)

// DispatchHandler triggers a bulk join pass for a guild. The pass runs on
// the request context, so closing the connection cancels it; the report then
// covers only the users processed before cancellation.
type DispatchHandler struct {
	dispatch *service.DispatchService
}

func NewDispatchHandler(dispatch *service.DispatchService) *DispatchHandler {
	return &DispatchHandler{dispatch: dispatch}
}

func (h *DispatchHandler) DispatchJoin(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	observability.Audit(r, "bulk_dispatch_started", "guild_id", guildID)
	report := h.dispatch.DispatchJoin(r.Context(), guildID)
	response.JSON(w, r, http.StatusOK, report)
}
