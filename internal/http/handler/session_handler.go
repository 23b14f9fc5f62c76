package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mizuki-dev/guildgate/internal/http/response"
	"github.com/mizuki-dev/guildgate/internal/repository"
	"github.com/mizuki-dev/guildgate/internal/service"
)

// SessionHandler exposes the operator surface for authorization panels.
type SessionHandler struct {
	panels   *service.PanelService
	sessions *repository.SessionStore
}

func NewSessionHandler(panels *service.PanelService, sessions *repository.SessionStore) *SessionHandler {
	return &SessionHandler{panels: panels, sessions: sessions}
}

type createSessionRequest struct {
	GuildID   string `json:"guild_id"`
	RoleID    string `json:"role_id"`
	ChannelID string `json:"channel_id"`
}

type createSessionResponse struct {
	SessionToken string `json:"session_token"`
	AuthorizeURL string `json:"authorize_url"`
}

func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed request body", nil)
		return
	}
	if req.GuildID == "" || req.RoleID == "" {
		response.Error(w, r, http.StatusBadRequest, "MISSING_FIELDS", "guild_id and role_id are required", nil)
		return
	}

	token, authURL, err := h.panels.CreatePanel(r.Context(), req.GuildID, req.RoleID, req.ChannelID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "failed to create session", nil)
		return
	}
	response.JSON(w, r, http.StatusCreated, createSessionResponse{SessionToken: token, AuthorizeURL: authURL})
}

type attachAnnouncementRequest struct {
	MessageID string `json:"message_id"`
}

func (h *SessionHandler) AttachAnnouncement(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	var req attachAnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_BODY", "message_id is required", nil)
		return
	}
	// No-op when the session already expired; panels for dead sessions are
	// left to the TTL sweep.
	h.sessions.AttachAnnouncement(r.Context(), token, req.MessageID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	h.sessions.Delete(r.Context(), token)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}
