// internal/workers/brief/preview-brief/handler_test.go
package previewbrief

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"photobrief-workers/internal/brief/orchestrator"
	"photobrief-workers/internal/brief/rules"
	errs "photobrief-workers/internal/common/errors"
	"photobrief-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Mock Implementations
// ==========================

type MockOrchestrator struct {
	PreviewFunc func(record map[string]interface{}) *orchestrator.Preview

	lastRecord map[string]interface{}
}

func (m *MockOrchestrator) PreviewBrief(record map[string]interface{}) *orchestrator.Preview {
	m.lastRecord = record
	return m.PreviewFunc(record)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		AppVersion: "1.2.3",
		Timeout:    10 * time.Second,
	}
}

func createTestInput() *Input {
	return &Input{
		RequestID: "req-001",
		BriefData: map[string]interface{}{
			"product_name": "Ceramic Mug",
			"shot_type":    "Eye-level",
		},
	}
}

func validPreview() *orchestrator.Preview {
	return &orchestrator.Preview{
		Draft: "## Main Subject\nProduct: Ceramic Mug",
		Validation: rules.Result{
			IsValid:  true,
			Errors:   []string{},
			Warnings: []string{},
		},
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
		PreviewFunc: func(record map[string]interface{}) *orchestrator.Preview {
			return validPreview()
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	assert.NoError(t, err)
	assert.Equal(t, "req-001", output.Preview.RequestID)
	assert.Equal(t, "success", output.Preview.Status)
	assert.Equal(t, "1.2.3", output.Preview.Metadata.Version)

	timestamp, parseErr := time.Parse(time.RFC3339, output.Preview.Metadata.Timestamp)
	assert.NoError(t, parseErr)
	assert.WithinDuration(t, time.Now().UTC(), timestamp, time.Minute)

	assert.Equal(t, "## Main Subject\nProduct: Ceramic Mug", output.Preview.Data["draft"])
	assert.Equal(t, len("## Main Subject\nProduct: Ceramic Mug"), output.Preview.Data["draftLength"])
	assert.Equal(t, true, output.Preview.Data["isValid"])

	assert.Equal(t, "Ceramic Mug", mock.lastRecord["product_name"])
}

func TestHandler_Execute_InvalidRecordStillPreviews(t *testing.T) {
	mock := &MockOrchestrator{
		PreviewFunc: func(record map[string]interface{}) *orchestrator.Preview {
			preview := validPreview()
			preview.Validation = rules.Result{
				IsValid:  false,
				Errors:   []string{"Required field 'product_name' is missing or empty."},
				Warnings: []string{"Recommended field 'dominant_colors' is missing."},
			}
			return preview
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	// Previews report validation findings, they do not fail on them.
	assert.NoError(t, err)
	assert.Equal(t, false, output.Preview.Data["isValid"])
	assert.Equal(t,
		[]string{"Required field 'product_name' is missing or empty."},
		output.Preview.Data["validationErrors"])
	assert.Equal(t,
		[]string{"Recommended field 'dominant_colors' is missing."},
		output.Preview.Data["validationWarnings"])
}

func TestHandler_Execute_GeneratesRequestID(t *testing.T) {
	mock := &MockOrchestrator{
		PreviewFunc: func(record map[string]interface{}) *orchestrator.Preview {
			return validPreview()
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	input := createTestInput()
	input.RequestID = ""
	output, err := handler.Execute(context.Background(), input)

	assert.NoError(t, err)
	assert.NotEmpty(t, output.Preview.RequestID)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_MissingBriefData(t *testing.T) {
	mock := &MockOrchestrator{
		PreviewFunc: func(record map[string]interface{}) *orchestrator.Preview {
			return validPreview()
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	input := createTestInput()
	input.BriefData = nil
	output, err := handler.Execute(context.Background(), input)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingBriefData))
	assert.Nil(t, output)
}

func TestHandler_Execute_EmptyDraftFailsSchemaCheck(t *testing.T) {
	mock := &MockOrchestrator{
		PreviewFunc: func(record map[string]interface{}) *orchestrator.Preview {
			preview := validPreview()
			preview.Draft = ""
			return preview
		},
	}
	handler := NewHandler(createTestConfig(), mock, newTestLogger(t))

	output, err := handler.Execute(context.Background(), createTestInput())

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadInvalid))
	assert.Nil(t, output)
}

// ==========================
// Error Classification Tests
// ==========================

func TestToStandardError_MapsSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errs.ErrorCode
	}{
		{
			name: "missing brief data",
			err:  fmt.Errorf("%w", ErrMissingBriefData),
			code: errs.ErrCodeMissingBriefData,
		},
		{
			name: "payload failed schema check",
			err:  fmt.Errorf("%w: draft is empty", ErrPayloadInvalid),
			code: errs.ErrCodePayloadValidationFailed,
		},
		{
			name: "unclassified failure",
			err:  errors.New("composer panicked"),
			code: errs.ErrCodePreviewBuildError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdErr := toStandardError(tt.err)

			assert.Equal(t, tt.code, stdErr.Code)
			// Previews never earn an engine retry, whatever went wrong.
			assert.False(t, stdErr.Retryable)
			assert.Contains(t, stdErr.Details, tt.err.Error())
		})
	}
}
