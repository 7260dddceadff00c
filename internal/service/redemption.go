package service

import (
	"context"
	"time"

	apperrors "github.com/smartgrant/session-server-go/internal/errors"
	"github.com/smartgrant/session-server-go/internal/model"
	"github.com/smartgrant/session-server-go/internal/redemption"
	"github.com/smartgrant/session-server-go/internal/util"
)

// RedemptionService executes calls under a session's granted permissions and
// records the attempt in one flow. Available only when an executor gateway is
// configured; clients that execute through their own SDK keep using the
// record endpoint directly.
type RedemptionService struct {
	sessions     *SessionService
	orchestrator *redemption.Orchestrator
}

func NewRedemptionService(sessions *SessionService, orchestrator *redemption.Orchestrator) *RedemptionService {
	return &RedemptionService{
		sessions:     sessions,
		orchestrator: orchestrator,
	}
}

// Execute runs the calls through the orchestrator and, when the operation
// reached the network, records the outcome against the session. An attempt
// that died before submission carries the all-zero hash and leaves the
// session's counters untouched.
func (s *RedemptionService) Execute(
	ctx context.Context,
	caller, id string,
	calls []redemption.Call,
) (*redemption.Result, *model.Session, error) {
	session, err := s.sessions.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if !addressEqual(session.Redeemer, caller) {
		return nil, nil, apperrors.Forbidden("Only the redeemer can redeem this session")
	}
	if !model.IsUsable(session, time.Now()) {
		return nil, nil, apperrors.NotUsable(string(model.ComputeStatus(session, time.Now())))
	}

	result, err := s.orchestrator.Redeem(ctx, session, calls)
	if err != nil {
		return nil, nil, err
	}

	if result.TxHash == util.ZeroTxHash {
		return result, session, nil
	}

	status := model.UsageStatusSuccess
	if !result.Success {
		status = model.UsageStatusFailed
	}

	updated, err := s.sessions.RecordRedemption(ctx, caller, id, model.RecordUsageParams{
		TxHash:  result.TxHash,
		Status:  status,
		Message: result.Error,
	})
	if err != nil {
		return result, nil, err
	}

	return result, updated, nil
}
