package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mizuki-dev/guildgate/internal/domain"
	"github.com/mizuki-dev/guildgate/internal/http/response"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/repository"
)

// SettingsHandler reads and writes the per-guild gate configuration.
type SettingsHandler struct {
	settings *repository.SettingsStore
}

func NewSettingsHandler(settings *repository.SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	response.JSON(w, r, http.StatusOK, h.settings.Get(guildID))
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	var sec domain.SecurityConfig
	if err := json.NewDecoder(r.Body).Decode(&sec); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed request body", nil)
		return
	}
	h.settings.Set(r.Context(), guildID, sec)
	observability.Audit(r, "guild_settings_updated",
		"guild_id", guildID,
		"proxy_block", sec.ProxyBlock,
		"vpn_block", sec.VPNBlock,
		"mobile_block", sec.MobileBlock,
		"duplicate_ip_block", sec.DuplicateIPBlock,
	)
	response.JSON(w, r, http.StatusOK, sec)
}
