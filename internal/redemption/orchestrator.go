package redemption

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/smartgrant/session-server-go/internal/errors"
	"github.com/smartgrant/session-server-go/internal/model"
	"github.com/smartgrant/session-server-go/internal/util"
)

// Mode selects how the executor submits the user operation. A session's first
// redemption must install the permission module on the smart account and use
// it in the same operation; later redemptions reference the installed module.
type Mode string

const (
	ModeEnableAndUse Mode = "ENABLE_AND_USE"
	ModeUse          Mode = "USE"
)

// Call is one contract invocation executed under the session's permissions.
type Call struct {
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Request is what the executor needs to build and submit a user operation on
// behalf of the session owner's smart account.
type Request struct {
	Mode           Mode            `json:"mode"`
	Owner          string          `json:"owner"`
	SessionDetails json.RawMessage `json:"sessionDetails"`
	Calls          []Call          `json:"calls"`
}

// Result is the outcome of one redemption attempt. A TxHash of all zeros
// means the operation never reached the network.
type Result struct {
	UserOpHash string `json:"userOpHash,omitempty"`
	TxHash     string `json:"txHash"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Executor submits a user operation and waits for its receipt. Implementations
// wrap an account-abstraction bundler stack.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Orchestrator drives a redemption end to end: it validates the session,
// picks the submission mode, and hands the operation to the executor. It
// never writes session state; recording the attempt is the caller's job.
type Orchestrator struct {
	executor Executor
}

func NewOrchestrator(executor Executor) *Orchestrator {
	return &Orchestrator{executor: executor}
}

// Redeem executes the given calls under the session's granted permissions.
// When the executor fails before anything was submitted, the returned Result
// carries the all-zero hash and Success=false; such results must not be
// recorded as usage.
func (o *Orchestrator) Redeem(ctx context.Context, session *model.Session, calls []Call) (*Result, error) {
	if session == nil {
		return nil, apperrors.Internal("nil session")
	}
	if len(session.SessionDetails) == 0 {
		return nil, apperrors.InvalidInput("sessionDetails", "session has no stored grant payload")
	}
	if !util.IsValidAddress(session.Owner) {
		return nil, apperrors.InvalidInput("owner", "session owner is not a hex address")
	}
	if len(session.Actions) == 0 {
		return nil, apperrors.InvalidInput("actions", "session grants no actions")
	}
	if len(calls) == 0 {
		return nil, apperrors.MissingRequired("calls")
	}
	for _, call := range calls {
		if !util.IsValidAddress(call.To) {
			return nil, apperrors.InvalidInput("calls.to", "must be a hex address")
		}
	}

	mode := ModeUse
	if session.CurrentUsageCount == 0 {
		mode = ModeEnableAndUse
	}

	started := time.Now()
	result, err := o.executor.Execute(ctx, Request{
		Mode:           mode,
		Owner:          session.Owner,
		SessionDetails: session.SessionDetails,
		Calls:          calls,
	})
	if err != nil {
		log.Error().Err(err).
			Str("sessionId", session.ID).
			Str("mode", string(mode)).
			Msg("redemption execution failed before submission")
		return &Result{
			TxHash:  util.ZeroTxHash,
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("mode", string(mode)).
		Str("txHash", result.TxHash).
		Bool("success", result.Success).
		Dur("elapsed", time.Since(started)).
		Msg("redemption executed")

	return result, nil
}
