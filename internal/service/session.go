package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smartgrant/session-server-go/internal/audit"
	"github.com/smartgrant/session-server-go/internal/cache"
	"github.com/smartgrant/session-server-go/internal/config"
	apperrors "github.com/smartgrant/session-server-go/internal/errors"
	"github.com/smartgrant/session-server-go/internal/metrics"
	"github.com/smartgrant/session-server-go/internal/model"
	"github.com/smartgrant/session-server-go/internal/repository"
	"github.com/smartgrant/session-server-go/internal/util"
)

const defaultSessionName = "Unnamed Session"

// CreateSessionInput is the caller-supplied portion of a new session. The
// redeemer and permitted actions ride inside the opaque sessionDetails
// payload, exactly as the granting SDK produced them.
type CreateSessionInput struct {
	SessionDetails json.RawMessage
	Name           string
	ExpiresAt      *time.Time
	MaxUsageCount  *int
}

// grantedDetails is the slice of sessionDetails this service actually reads.
// Everything else in the payload stays opaque and is stored verbatim.
type grantedDetails struct {
	Redeemer string           `json:"redeemer"`
	Actions  model.ActionList `json:"actions"`
}

type SessionService struct {
	sessionRepo repository.SessionRepository
	cache       *cache.SessionCache
}

func NewSessionService(sessionRepo repository.SessionRepository, sessionCache *cache.SessionCache) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		cache:       sessionCache,
	}
}

// List returns sessions where the caller is on the requested side of the
// grant, newest first, capped at the configured result limit.
func (s *SessionService) List(
	ctx context.Context,
	caller string,
	relation model.RelationType,
	statusFilter string,
) ([]model.Session, error) {
	if relation == "" {
		relation = model.RelationOwner
	}
	if relation != model.RelationOwner && relation != model.RelationRedeemer {
		return nil, apperrors.InvalidInput("type", "must be owner or redeemer")
	}

	if statusFilter == "" {
		statusFilter = string(model.SessionStatusActive)
	}

	var status model.SessionStatus
	if statusFilter != "all" {
		if !util.IsValidEnum(statusFilter, []string{
			string(model.SessionStatusActive),
			string(model.SessionStatusExpired),
			string(model.SessionStatusRevoked),
			string(model.SessionStatusUsageLimitReached),
		}) {
			return nil, apperrors.InvalidInput("status", "unknown session status")
		}
		status = model.SessionStatus(statusFilter)
	}

	sessions, err := s.sessionRepo.ListByRelation(ctx, relation, caller, status, config.SessionListLimit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return sessions, nil
}

// Get returns a session iff the caller is its owner or redeemer.
func (s *SessionService) Get(ctx context.Context, caller, id string) (*model.Session, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !addressEqual(session.Owner, caller) && !addressEqual(session.Redeemer, caller) {
		return nil, apperrors.Forbidden("Unauthorized access to session")
	}

	return session, nil
}

// Create persists a new session with the caller as owner. The sessionDetails
// payload must carry the redeemer and at least one granted action; the rest
// of it is never interpreted here.
func (s *SessionService) Create(ctx context.Context, caller string, input CreateSessionInput) (*model.Session, error) {
	if len(input.SessionDetails) == 0 || string(input.SessionDetails) == "null" {
		return nil, apperrors.MissingRequired("sessionDetails")
	}

	var details grantedDetails
	if err := json.Unmarshal(input.SessionDetails, &details); err != nil {
		return nil, apperrors.InvalidInput("sessionDetails", "not a JSON object").WithCause(err)
	}
	if !util.IsValidAddress(details.Redeemer) {
		return nil, apperrors.InvalidInput("sessionDetails.redeemer", "must be a hex address")
	}
	if len(details.Actions) == 0 {
		return nil, apperrors.InvalidInput("sessionDetails.actions", "at least one action is required")
	}
	for _, action := range details.Actions {
		if !util.IsValidAddress(action.ActionTarget) {
			return nil, apperrors.InvalidInput("actionTarget", "must be a hex address")
		}
		if !util.IsValidSelector(action.ActionTargetSelector) {
			return nil, apperrors.InvalidInput("actionTargetSelector", "must be a 4-byte hex selector")
		}
	}

	name := input.Name
	if name == "" {
		name = defaultSessionName
	}

	params := model.CreateSessionParams{
		ID:             uuid.NewString(),
		Owner:          caller,
		Redeemer:       details.Redeemer,
		Actions:        details.Actions,
		SessionDetails: input.SessionDetails,
		Name:           name,
		ExpiresAt:      input.ExpiresAt,
		MaxUsageCount:  input.MaxUsageCount,
	}
	params.Status = model.ComputeStatus(&model.Session{
		ExpiresAt:     input.ExpiresAt,
		MaxUsageCount: input.MaxUsageCount,
	}, time.Now())

	session, err := s.sessionRepo.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	metrics.SessionsCreated.Inc()
	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionCreate,
		Address:   caller,
		SessionID: session.ID,
		Details:   map[string]interface{}{"redeemer": session.Redeemer},
	})
	log.Info().
		Str("sessionId", session.ID).
		Str("owner", caller).
		Str("redeemer", session.Redeemer).
		Int("actions", len(session.Actions)).
		Msg("session created")

	return session, nil
}

// Update applies owner-mutable fields (name, expiry, usage cap, revocation)
// and recomputes the cached status before persisting.
func (s *SessionService) Update(ctx context.Context, caller, id string, params model.UpdateSessionParams) (*model.Session, error) {
	session, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if !addressEqual(session.Owner, caller) {
		return nil, apperrors.Forbidden("Only the session owner can update it")
	}

	wasRevoked := session.IsRevoked

	if params.Name != nil && *params.Name != "" {
		session.Name = *params.Name
	}
	if params.IsRevoked != nil {
		session.IsRevoked = *params.IsRevoked
	}
	if params.SetExpiresAt {
		session.ExpiresAt = params.ExpiresAt
	}
	if params.SetMaxUsageCount {
		session.MaxUsageCount = params.MaxUsageCount
	}

	session.Status = model.ComputeStatus(session, time.Now())

	updated, err := s.sessionRepo.Update(ctx, session)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if updated == nil {
		return nil, apperrors.NotFound("Session")
	}

	s.invalidate(ctx, id)

	eventType := audit.EventSessionUpdate
	if !wasRevoked && updated.IsRevoked {
		eventType = audit.EventSessionRevoke
		metrics.SessionsRevoked.Inc()
	}
	audit.Log(ctx, audit.Event{Type: eventType, Address: caller, SessionID: id})

	return updated, nil
}

// Delete permanently removes a session. Owner only; no soft delete.
func (s *SessionService) Delete(ctx context.Context, caller, id string) error {
	session, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if !addressEqual(session.Owner, caller) {
		return apperrors.Forbidden("Only the session owner can delete it")
	}

	if err := s.sessionRepo.Delete(ctx, id); err != nil {
		return apperrors.Database(err)
	}

	s.invalidate(ctx, id)
	metrics.SessionsDeleted.Inc()
	audit.Log(ctx, audit.Event{Type: audit.EventSessionDelete, Address: caller, SessionID: id})
	log.Info().Str("sessionId", id).Str("owner", caller).Msg("session deleted")

	return nil
}

// RecordRedemption appends one usage record and bumps the usage counter,
// for successful and failed attempts alike. The all-zero operation hash means
// the attempt never reached the network and is rejected before anything is
// written.
func (s *SessionService) RecordRedemption(ctx context.Context, caller, id string, params model.RecordUsageParams) (*model.Session, error) {
	if params.TxHash == "" {
		return nil, apperrors.MissingRequired("txHash")
	}
	if params.TxHash == util.ZeroTxHash {
		return nil, apperrors.InvalidInput("txHash", "attempt never reached the network, nothing to record")
	}
	if !util.IsValidTxHash(params.TxHash) {
		return nil, apperrors.InvalidInput("txHash", "must be a 32-byte hex hash")
	}

	if params.Status == "" {
		params.Status = model.UsageStatusSuccess
	}
	if params.Status != model.UsageStatusSuccess && params.Status != model.UsageStatusFailed {
		return nil, apperrors.InvalidInput("status", "must be success or failed")
	}

	session, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if !addressEqual(session.Redeemer, caller) {
		return nil, apperrors.Forbidden("Only the redeemer can redeem this session")
	}

	if !model.IsUsable(session, time.Now()) {
		return nil, apperrors.NotUsable(string(model.ComputeStatus(session, time.Now())))
	}

	updated, err := s.sessionRepo.RecordUsage(ctx, id, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if updated == nil {
		// Lost a race against a concurrent redemption or revocation; the
		// conditional write re-checked the predicate and declined.
		current, err := s.find(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.NotUsable(string(model.ComputeStatus(current, time.Now())))
	}

	s.invalidate(ctx, id)
	metrics.RedemptionsRecorded.WithLabelValues(string(params.Status)).Inc()
	audit.Log(ctx, audit.Event{
		Type:      audit.EventRedemptionRecorded,
		Address:   caller,
		SessionID: id,
		Details: map[string]interface{}{
			"txHash": params.TxHash,
			"status": string(params.Status),
		},
	})
	log.Info().
		Str("sessionId", id).
		Str("txHash", params.TxHash).
		Str("status", string(params.Status)).
		Int("usageCount", updated.CurrentUsageCount).
		Msg("redemption recorded")

	return updated, nil
}

// find fetches directly from the record store, bypassing the cache; every
// write path needs the authoritative row.
func (s *SessionService) find(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// load serves reads through the best-effort cache.
func (s *SessionService) load(ctx context.Context, id string) (*model.Session, error) {
	if s.cache != nil {
		if cached := s.cache.Get(ctx, id); cached != nil {
			return cached, nil
		}
	}

	session, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, session)
	}
	return session, nil
}

func (s *SessionService) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

// Addresses from the auth provider and from stored grants may differ in
// case; comparison is case-insensitive.
func addressEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
