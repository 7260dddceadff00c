package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/smartgrant/session-server-go/internal/errors"
	"github.com/smartgrant/session-server-go/internal/model"
	"github.com/smartgrant/session-server-go/internal/util"
)

const (
	ownerAddr  = "0x1111111111111111111111111111111111111111"
	targetAddr = "0x3333333333333333333333333333333333333333"
	testTxHash = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type executorFunc func(ctx context.Context, req Request) (*Result, error)

func (f executorFunc) Execute(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

func redeemableSession(usageCount int) *model.Session {
	return &model.Session{
		ID:                "sess-1",
		Owner:             ownerAddr,
		Redeemer:          "0x2222222222222222222222222222222222222222",
		SessionDetails:    json.RawMessage(`{"sessionPublicKey": "0xdeadbeef"}`),
		Actions:           model.ActionList{{ActionTarget: targetAddr, ActionTargetSelector: "0xa9059cbb"}},
		CurrentUsageCount: usageCount,
	}
}

func transferCall() []Call {
	return []Call{{To: targetAddr, Data: "0xa9059cbb0000"}}
}

func TestRedeemModeSelection(t *testing.T) {
	t.Run("first redemption enables the module", func(t *testing.T) {
		var gotMode Mode
		o := NewOrchestrator(executorFunc(func(_ context.Context, req Request) (*Result, error) {
			gotMode = req.Mode
			return &Result{TxHash: testTxHash, Success: true}, nil
		}))

		result, err := o.Redeem(context.Background(), redeemableSession(0), transferCall())

		require.NoError(t, err)
		assert.Equal(t, ModeEnableAndUse, gotMode)
		assert.True(t, result.Success)
		assert.Equal(t, testTxHash, result.TxHash)
	})

	t.Run("later redemptions reuse the installed module", func(t *testing.T) {
		var gotMode Mode
		o := NewOrchestrator(executorFunc(func(_ context.Context, req Request) (*Result, error) {
			gotMode = req.Mode
			return &Result{TxHash: testTxHash, Success: true}, nil
		}))

		_, err := o.Redeem(context.Background(), redeemableSession(3), transferCall())

		require.NoError(t, err)
		assert.Equal(t, ModeUse, gotMode)
	})
}

func TestRedeemForwardsGrantPayload(t *testing.T) {
	session := redeemableSession(1)

	o := NewOrchestrator(executorFunc(func(_ context.Context, req Request) (*Result, error) {
		assert.Equal(t, ownerAddr, req.Owner)
		assert.JSONEq(t, string(session.SessionDetails), string(req.SessionDetails))
		assert.Len(t, req.Calls, 1)
		return &Result{TxHash: testTxHash, Success: true}, nil
	}))

	_, err := o.Redeem(context.Background(), session, transferCall())
	require.NoError(t, err)
}

func TestRedeemValidation(t *testing.T) {
	o := NewOrchestrator(executorFunc(func(context.Context, Request) (*Result, error) {
		t.Fatal("executor must not be reached")
		return nil, nil
	}))

	t.Run("no calls", func(t *testing.T) {
		_, err := o.Redeem(context.Background(), redeemableSession(0), nil)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("bad call target", func(t *testing.T) {
		_, err := o.Redeem(context.Background(), redeemableSession(0), []Call{{To: "vitalik.eth"}})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("session without grant payload", func(t *testing.T) {
		session := redeemableSession(0)
		session.SessionDetails = nil
		_, err := o.Redeem(context.Background(), session, transferCall())
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("session without actions", func(t *testing.T) {
		session := redeemableSession(0)
		session.Actions = nil
		_, err := o.Redeem(context.Background(), session, transferCall())
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}

func TestRedeemExecutorFailure(t *testing.T) {
	o := NewOrchestrator(executorFunc(func(context.Context, Request) (*Result, error) {
		return nil, errors.New("bundler unreachable")
	}))

	result, err := o.Redeem(context.Background(), redeemableSession(0), transferCall())

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, util.ZeroTxHash, result.TxHash)
	assert.Contains(t, result.Error, "bundler unreachable")
}

func TestHTTPExecutor(t *testing.T) {
	t.Run("submits and decodes result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/userops", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req Request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, ModeEnableAndUse, req.Mode)

			json.NewEncoder(w).Encode(Result{
				UserOpHash: "0xop",
				TxHash:     testTxHash,
				Success:    true,
			})
		}))
		defer server.Close()

		e := NewHTTPExecutor(server.URL, 5*time.Second)
		result, err := e.Execute(context.Background(), Request{
			Mode:  ModeEnableAndUse,
			Owner: ownerAddr,
			Calls: transferCall(),
		})

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, testTxHash, result.TxHash)
	})

	t.Run("non-2xx maps to external service error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "out of gas", http.StatusBadGateway)
		}))
		defer server.Close()

		e := NewHTTPExecutor(server.URL, 5*time.Second)
		_, err := e.Execute(context.Background(), Request{Mode: ModeUse, Owner: ownerAddr})

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeExternal, apperrors.GetCode(err))
	})

	t.Run("unreachable gateway maps to external service error", func(t *testing.T) {
		e := NewHTTPExecutor("http://127.0.0.1:1", time.Second)
		_, err := e.Execute(context.Background(), Request{Mode: ModeUse, Owner: ownerAddr})

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeExternal, apperrors.GetCode(err))
	})
}
