// internal/workers/brief/generate-brief/handler_test.go
package generatebrief

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"photobrief-workers/internal/brief/orchestrator"
	errs "photobrief-workers/internal/common/errors"
	"photobrief-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Mock Implementations
// ==========================

type MockOrchestrator struct {
	GenerateFunc func(ctx context.Context, requestID string, record map[string]interface{}) (*orchestrator.BriefResult, error)

	lastRequestID string
	lastRecord    map[string]interface{}
}

func (m *MockOrchestrator) GenerateFinalBrief(ctx context.Context, requestID string, record map[string]interface{}) (*orchestrator.BriefResult, error) {
	m.lastRequestID = requestID
	m.lastRecord = record
	return m.GenerateFunc(ctx, requestID, record)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

func createTestInput() *Input {
	return &Input{
		RequestID: "req-001",
		BriefData: map[string]interface{}{
			"product_name": "Ceramic Mug",
			"shot_type":    "Eye-level",
			"user_request": "Studio shot of a ceramic mug",
		},
	}
}

func briefResult() *orchestrator.BriefResult {
	return &orchestrator.BriefResult{
		Document:     "#### **1. Main Subject: Hero Shot of the Ceramic Mug**\n\nA detailed brief.",
		Draft:        "## Main Subject\nProduct: Ceramic Mug",
		WordCount:    340,
		SectionCount: 8,
	}
}

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return tl
}

func (tl *testLogger) WithError(err error) logger.Logger {
	return tl
}

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger {
	return tl
}

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	mock := &MockOrchestrator{
		GenerateFunc: func(ctx context.Context, requestID string, record map[string]interface{}) (*orchestrator.BriefResult, error) {
			return briefResult(), nil
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	assert.NoError(t, err)
	assert.Equal(t, "req-001", output.RequestID)
	assert.Contains(t, output.FinalBrief, "Hero Shot of the Ceramic Mug")
	assert.Equal(t, 340, output.WordCount)
	assert.Equal(t, 8, output.SectionCount)
	assert.False(t, output.QualityAlert)
	assert.Empty(t, output.QualityFlags)

	generatedAt, parseErr := time.Parse(time.RFC3339, output.GeneratedAt)
	assert.NoError(t, parseErr)
	assert.WithinDuration(t, time.Now().UTC(), generatedAt, time.Minute)

	assert.Equal(t, "req-001", mock.lastRequestID)
	assert.Equal(t, "Ceramic Mug", mock.lastRecord["product_name"])
}

func TestHandler_Execute_SurfacesQualityFlags(t *testing.T) {
	mock := &MockOrchestrator{
		GenerateFunc: func(ctx context.Context, requestID string, record map[string]interface{}) (*orchestrator.BriefResult, error) {
			result := briefResult()
			result.WordCount = 120
			result.SectionCount = 3
			result.QualityAlert = true
			result.AlertReasons = []string{"word_count", "section_count"}
			return result, nil
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	// A thin document is still delivered, flagged for downstream review.
	assert.NoError(t, err)
	assert.True(t, output.QualityAlert)
	assert.Equal(t, []string{"word_count", "section_count"}, output.QualityFlags)
	assert.NotEmpty(t, output.FinalBrief)
}

func TestHandler_Execute_GeneratesRequestID(t *testing.T) {
	mock := &MockOrchestrator{
		GenerateFunc: func(ctx context.Context, requestID string, record map[string]interface{}) (*orchestrator.BriefResult, error) {
			return briefResult(), nil
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	input := createTestInput()
	input.RequestID = ""
	output, err := handler.Execute(context.Background(), input)

	assert.NoError(t, err)
	assert.NotEmpty(t, output.RequestID)
	assert.Equal(t, output.RequestID, mock.lastRequestID)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_MissingBriefData(t *testing.T) {
	tests := []struct {
		name      string
		briefData map[string]interface{}
	}{
		{name: "nil map", briefData: nil},
		{name: "empty map", briefData: map[string]interface{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mock := &MockOrchestrator{
				GenerateFunc: func(ctx context.Context, requestID string, record map[string]interface{}) (*orchestrator.BriefResult, error) {
					called = true
					return briefResult(), nil
				},
			}
			handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

			input := createTestInput()
			input.BriefData = tt.briefData
			output, err := handler.Execute(context.Background(), input)

			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingBriefData))
			assert.Nil(t, output)
			assert.False(t, called)
		})
	}
}

func TestHandler_Execute_EnhancementFailurePassesThrough(t *testing.T) {
	unavailable := fmt.Errorf("%w: failed to generate final brief: connection refused",
		orchestrator.ErrEnhancementUnavailable)

	mock := &MockOrchestrator{
		GenerateFunc: func(ctx context.Context, requestID string, record map[string]interface{}) (*orchestrator.BriefResult, error) {
			return nil, unavailable
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	assert.Error(t, err)
	assert.True(t, errors.Is(err, orchestrator.ErrEnhancementUnavailable))
	assert.Nil(t, output)
}

// ==========================
// Error Classification Tests
// ==========================

func TestToStandardError_MapsSentinels(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      errs.ErrorCode
		retryable bool
	}{
		{
			name:      "enhancement unavailable",
			err:       fmt.Errorf("%w: connection refused", orchestrator.ErrEnhancementUnavailable),
			code:      errs.ErrCodeEnhancementUnavailable,
			retryable: true,
		},
		{
			name:      "missing brief data",
			err:       fmt.Errorf("%w", ErrMissingBriefData),
			code:      errs.ErrCodeMissingBriefData,
			retryable: false,
		},
		{
			name:      "unclassified failure",
			err:       errors.New("orchestrator panicked"),
			code:      errs.ErrCodeUnknown,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdErr := toStandardError(tt.err)

			assert.Equal(t, tt.code, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
			assert.Contains(t, stdErr.Details, tt.err.Error())
		})
	}
}
