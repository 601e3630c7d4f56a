// internal/common/camunda/client_test.go
package camunda

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photobrief-workers/internal/common/errors"
)

func newTestClient(retry *RetryConfig, requestTimeout time.Duration) *Client {
	return &Client{
		config: &ClientConfig{
			GatewayAddress: "localhost:26500",
			RequestTimeout: requestTimeout,
			RetryConfig:    retry,
		},
	}
}

func fastRetry(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}
}

// ==========================
// ExecuteWithRetry
// ==========================

func TestExecuteWithRetry_FirstAttemptSucceeds(t *testing.T) {
	client := newTestClient(fastRetry(3), 0)

	calls := 0
	result, err := client.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return "deployed", nil
	}, "deploy process")

	require.NoError(t, err)
	assert.Equal(t, "deployed", result)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	client := newTestClient(fastRetry(3), 0)

	calls := 0
	result, err := client.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("dial tcp: connection refused")
		}
		return int64(42), nil
	}, "publish message")

	require.NoError(t, err)
	assert.Equal(t, int64(42), result)
	assert.Equal(t, 3, calls, "Two transient failures should be retried")
}

func TestExecuteWithRetry_PermanentErrorFailsImmediately(t *testing.T) {
	client := newTestClient(fastRetry(3), 0)

	calls := 0
	_, err := client.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("rpc error: INVALID_ARGUMENT")
	}, "set variables")

	require.Error(t, err)
	assert.Equal(t, 1, calls, "Permanent errors should not be retried")

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok, "Mapped error should be a StandardError")
	assert.Equal(t, errors.ErrorCode("EXTERNAL_SERVICE_ERROR"), stdErr.Code)
	assert.NotContains(t, stdErr.Details, "attempts", "Single attempt should not report an attempt count")
}

func TestExecuteWithRetry_BudgetExhaustedReportsAttempts(t *testing.T) {
	client := newTestClient(fastRetry(2), 0)

	calls := 0
	_, err := client.ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("gateway timeout")
	}, "resolve incident")

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("TIMEOUT_ERROR"), stdErr.Code)
	assert.Contains(t, stdErr.Details, "after 3 attempts")
}

func TestExecuteWithRetry_CancelledDuringBackoff(t *testing.T) {
	// A minute-long backoff guarantees the cancelled context wins the select.
	client := newTestClient(&RetryConfig{MaxRetries: 3, BaseDelay: time.Minute, MaxDelay: time.Minute}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := client.ExecuteWithRetry(ctx, func(context.Context) (interface{}, error) {
		calls++
		cancel()
		return nil, fmt.Errorf("broker unavailable")
	}, "deploy process")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_AppliesRequestTimeout(t *testing.T) {
	client := newTestClient(fastRetry(0), 20*time.Millisecond)

	_, err := client.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, "await broker")

	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("TIMEOUT_ERROR"), stdErr.Code)
}

// ==========================
// Error classification
// ==========================

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection refused", fmt.Errorf("dial tcp: connection refused"), true},
		{"deadline exceeded", fmt.Errorf("context deadline exceeded"), true},
		{"broker unavailable", fmt.Errorf("rpc error: code = Unavailable"), true},
		{"broken pipe", fmt.Errorf("write: broken pipe"), true},
		{"process not found", fmt.Errorf("process not found"), false},
		{"invalid argument", fmt.Errorf("rpc error: INVALID_ARGUMENT"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableZeebeError(tt.err))
		})
	}
}
