package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/smartgrant/session-server-go/internal/errors"
	"github.com/smartgrant/session-server-go/internal/middleware"
	"github.com/smartgrant/session-server-go/internal/model"
	"github.com/smartgrant/session-server-go/internal/redemption"
	"github.com/smartgrant/session-server-go/internal/service"
)

type SessionHandler struct {
	sessionService    *service.SessionService
	redemptionService *service.RedemptionService
}

// NewSessionHandler wires the session API. redemptionService may be nil when
// no executor gateway is configured; the execute route is then not mounted.
func NewSessionHandler(sessionService *service.SessionService, redemptionService *service.RedemptionService) *SessionHandler {
	return &SessionHandler{
		sessionService:    sessionService,
		redemptionService: redemptionService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{sessionId}", h.Get)
	r.Put("/{sessionId}", h.Update)
	r.Delete("/{sessionId}", h.Delete)
	r.Post("/{sessionId}/redeem", h.RecordRedemption)
	if h.redemptionService != nil {
		r.Post("/{sessionId}/execute", h.Execute)
	}

	return r
}

type createSessionRequest struct {
	SessionDetails json.RawMessage `json:"sessionDetails"`
	Name           string          `json:"name"`
	ExpiresAt      *string         `json:"expiresAt"`
	MaxUsageCount  *int            `json:"maxUsageCount"`
}

// updateSessionRequest distinguishes absent fields from explicit nulls for
// expiresAt and maxUsageCount: sending null clears the limit. RawMessage is
// used non-pointer because the decoder collapses null into a nil pointer,
// which would be indistinguishable from an absent field.
type updateSessionRequest struct {
	Name          *string         `json:"name"`
	IsRevoked     *bool           `json:"isRevoked"`
	ExpiresAt     json.RawMessage `json:"expiresAt"`
	MaxUsageCount json.RawMessage `json:"maxUsageCount"`
}

type recordRedemptionRequest struct {
	TxHash  string `json:"txHash"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type executeRequest struct {
	Calls []redemption.Call `json:"calls"`
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	relation := model.RelationType(r.URL.Query().Get("type"))
	status := r.URL.Query().Get("status")

	sessions, err := h.sessionService.List(r.Context(), identity.Address, relation, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	session, err := h.sessionService.Get(r.Context(), identity.Address, chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON").WithCause(err))
		return
	}

	input := service.CreateSessionInput{
		SessionDetails: req.SessionDetails,
		Name:           req.Name,
		MaxUsageCount:  req.MaxUsageCount,
	}
	if req.ExpiresAt != nil {
		expiresAt, err := parseTimestamp(*req.ExpiresAt)
		if err != nil {
			writeError(w, apperrors.InvalidInput("expiresAt", "must be an RFC 3339 timestamp"))
			return
		}
		input.ExpiresAt = &expiresAt
	}

	session, err := h.sessionService.Create(r.Context(), identity.Address, input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON").WithCause(err))
		return
	}

	params := model.UpdateSessionParams{
		Name:      req.Name,
		IsRevoked: req.IsRevoked,
	}

	if len(req.ExpiresAt) > 0 {
		params.SetExpiresAt = true
		if !isJSONNull(req.ExpiresAt) {
			var raw string
			if err := json.Unmarshal(req.ExpiresAt, &raw); err != nil {
				writeError(w, apperrors.InvalidInput("expiresAt", "must be an RFC 3339 timestamp or null"))
				return
			}
			expiresAt, err := parseTimestamp(raw)
			if err != nil {
				writeError(w, apperrors.InvalidInput("expiresAt", "must be an RFC 3339 timestamp or null"))
				return
			}
			params.ExpiresAt = &expiresAt
		}
	}

	if len(req.MaxUsageCount) > 0 {
		params.SetMaxUsageCount = true
		if !isJSONNull(req.MaxUsageCount) {
			var count int
			if err := json.Unmarshal(req.MaxUsageCount, &count); err != nil || count < 1 {
				writeError(w, apperrors.InvalidInput("maxUsageCount", "must be a positive integer or null"))
				return
			}
			params.MaxUsageCount = &count
		}
	}

	session, err := h.sessionService.Update(r.Context(), identity.Address, chi.URLParam(r, "sessionId"), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	if err := h.sessionService.Delete(r.Context(), identity.Address, chi.URLParam(r, "sessionId")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *SessionHandler) RecordRedemption(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req recordRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON").WithCause(err))
		return
	}

	session, err := h.sessionService.RecordRedemption(
		r.Context(),
		identity.Address,
		chi.URLParam(r, "sessionId"),
		model.RecordUsageParams{
			TxHash:  req.TxHash,
			Status:  model.UsageStatus(req.Status),
			Message: req.Message,
		},
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *SessionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON").WithCause(err))
		return
	}

	result, session, err := h.redemptionService.Execute(
		r.Context(),
		identity.Address,
		chi.URLParam(r, "sessionId"),
		req.Calls,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  result,
		"session": session,
	})
}

func parseTimestamp(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

func isJSONNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
