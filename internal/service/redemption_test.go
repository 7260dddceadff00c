package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/smartgrant/session-server-go/internal/errors"
	"github.com/smartgrant/session-server-go/internal/model"
	"github.com/smartgrant/session-server-go/internal/redemption"
	"github.com/smartgrant/session-server-go/internal/util"
)

type executorFunc func(ctx context.Context, req redemption.Request) (*redemption.Result, error)

func (f executorFunc) Execute(ctx context.Context, req redemption.Request) (*redemption.Result, error) {
	return f(ctx, req)
}

func executableSession() *model.Session {
	s := activeSession()
	s.SessionDetails = json.RawMessage(`{"sessionPublicKey": "0xdeadbeef"}`)
	s.Actions = model.ActionList{{ActionTarget: targetAddr, ActionTargetSelector: "0xa9059cbb"}}
	return s
}

func executeCalls() []redemption.Call {
	return []redemption.Call{{To: targetAddr, Data: "0xa9059cbb0000"}}
}

func newRedemptionService(repo *mockSessionRepo, exec redemption.Executor) *RedemptionService {
	return NewRedemptionService(NewSessionService(repo, nil), redemption.NewOrchestrator(exec))
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("executes and records a successful attempt", func(t *testing.T) {
		updated := executableSession()
		updated.CurrentUsageCount = 1

		repo := new(mockSessionRepo)
		repo.On("FindByID", mock.Anything, "sess-1").Return(executableSession(), nil)
		repo.On("RecordUsage", mock.Anything, "sess-1", model.RecordUsageParams{
			TxHash: testTxHash,
			Status: model.UsageStatusSuccess,
		}).Return(updated, nil)

		svc := newRedemptionService(repo, executorFunc(func(_ context.Context, req redemption.Request) (*redemption.Result, error) {
			assert.Equal(t, redemption.ModeEnableAndUse, req.Mode)
			return &redemption.Result{TxHash: testTxHash, Success: true}, nil
		}))

		result, session, err := svc.Execute(ctx, redeemerAddr, "sess-1", executeCalls())

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 1, session.CurrentUsageCount)
		repo.AssertExpectations(t)
	})

	t.Run("records a reverted attempt as failed", func(t *testing.T) {
		repo := new(mockSessionRepo)
		repo.On("FindByID", mock.Anything, "sess-1").Return(executableSession(), nil)
		repo.On("RecordUsage", mock.Anything, "sess-1", model.RecordUsageParams{
			TxHash:  testTxHash,
			Status:  model.UsageStatusFailed,
			Message: "execution reverted",
		}).Return(executableSession(), nil)

		svc := newRedemptionService(repo, executorFunc(func(context.Context, redemption.Request) (*redemption.Result, error) {
			return &redemption.Result{TxHash: testTxHash, Success: false, Error: "execution reverted"}, nil
		}))

		_, _, err := svc.Execute(ctx, redeemerAddr, "sess-1", executeCalls())

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("pre-submission failure records nothing", func(t *testing.T) {
		repo := new(mockSessionRepo)
		repo.On("FindByID", mock.Anything, "sess-1").Return(executableSession(), nil)

		svc := newRedemptionService(repo, executorFunc(func(context.Context, redemption.Request) (*redemption.Result, error) {
			return nil, errors.New("bundler unreachable")
		}))

		result, session, err := svc.Execute(ctx, redeemerAddr, "sess-1", executeCalls())

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, util.ZeroTxHash, result.TxHash)
		assert.Equal(t, 0, session.CurrentUsageCount)
		repo.AssertNotCalled(t, "RecordUsage")
	})

	t.Run("owner cannot execute", func(t *testing.T) {
		repo := new(mockSessionRepo)
		repo.On("FindByID", mock.Anything, "sess-1").Return(executableSession(), nil)

		svc := newRedemptionService(repo, executorFunc(func(context.Context, redemption.Request) (*redemption.Result, error) {
			t.Fatal("executor must not be reached")
			return nil, nil
		}))

		_, _, err := svc.Execute(ctx, ownerAddr, "sess-1", executeCalls())

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
	})

	t.Run("unusable session is rejected before execution", func(t *testing.T) {
		session := executableSession()
		session.ExpiresAt = timePtr(time.Now().Add(-time.Minute))

		repo := new(mockSessionRepo)
		repo.On("FindByID", mock.Anything, "sess-1").Return(session, nil)

		svc := newRedemptionService(repo, executorFunc(func(context.Context, redemption.Request) (*redemption.Result, error) {
			t.Fatal("executor must not be reached")
			return nil, nil
		}))

		_, _, err := svc.Execute(ctx, redeemerAddr, "sess-1", executeCalls())

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotUsable, apperrors.GetCode(err))
	})
}
