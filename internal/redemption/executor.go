package redemption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/smartgrant/session-server-go/internal/errors"
)

const executorServiceName = "executor"

// HTTPExecutor submits user operations through an external bundler gateway.
// The gateway owns key material and chain connectivity; this process only
// speaks JSON to it.
type HTTPExecutor struct {
	client  *http.Client
	baseURL string
}

func NewHTTPExecutor(baseURL string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, execReq Request) (*Result, error) {
	body, err := json.Marshal(execReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/userops", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("mode", string(execReq.Mode)).
			Dur("elapsed", elapsed).
			Msg("executor request error")
		return nil, apperrors.External(executorServiceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Error().
			Int("status", resp.StatusCode).
			Str("mode", string(execReq.Mode)).
			Dur("elapsed", elapsed).
			Str("body", string(snippet)).
			Msg("executor rejected operation")
		return nil, apperrors.External(executorServiceName,
			fmt.Errorf("executor returned status %d", resp.StatusCode))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.External(executorServiceName, fmt.Errorf("decode response: %w", err))
	}

	log.Info().
		Str("mode", string(execReq.Mode)).
		Str("txHash", result.TxHash).
		Bool("success", result.Success).
		Dur("elapsed", elapsed).
		Msg("executor completed operation")

	return &result, nil
}
