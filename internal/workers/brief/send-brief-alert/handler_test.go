// internal/workers/brief/send-brief-alert/handler_test.go
package sendbriefalert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	errs "photobrief-workers/internal/common/errors"
	"photobrief-workers/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		EmailEnabled: true,
		SNSEnabled:   true,
		FromEmail:    "noreply@photobrief.io",
		OpsEmail:     "ops@photobrief.io",
		TopicARN:     "arn:aws:sns:us-east-1:000000000000:brief-alerts",
		AWSRegion:    "us-east-1",
		Timeout:      30 * time.Second,
	}
}

func createTestInput(alertType string) *Input {
	return &Input{
		RequestID: "req-001",
		AlertType: alertType,
		Reason:    "Required field 'product_name' is missing or empty.",
		Detail: map[string]interface{}{
			"wordCount":    120,
			"sectionCount": 3,
		},
	}
}

func newTestHandler(t *testing.T, cfg *Config, sesMock SESService, snsMock SNSService) *Handler {
	return &Handler{
		config:      cfg,
		logger:      newTestLogger(t),
		sesClient:   sesMock,
		snsClient:   snsMock,
		templateMap: alertTemplates(),
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

func TestHandler_Execute_SendsBothChannels(t *testing.T) {
	var sentEmail *ses.SendEmailInput
	var published *sns.PublishInput

	sesMock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			sentEmail = params
			return &ses.SendEmailOutput{}, nil
		},
	}
	snsMock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			published = params
			return &sns.PublishOutput{}, nil
		},
	}
	handler := newTestHandler(t, createTestConfig(), sesMock, snsMock)

	output, err := handler.Execute(context.Background(), createTestInput(TypeExtractionExhausted))

	assert.NoError(t, err)
	assert.Equal(t, StatusSent, output.Status)
	assert.NotEmpty(t, output.AlertID)
	assert.NotEmpty(t, output.SentAt)

	assert.NotNil(t, sentEmail)
	assert.Equal(t, []string{"ops@photobrief.io"}, sentEmail.Destination.ToAddresses)
	assert.Equal(t, "noreply@photobrief.io", *sentEmail.Source)
	assert.Contains(t, *sentEmail.Message.Subject.Data, "req-001")
	assert.Contains(t, *sentEmail.Message.Body.Text.Data, "Required field 'product_name'")

	assert.NotNil(t, published)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:brief-alerts", *published.TopicArn)
	assert.Contains(t, *published.Message, "req-001")
}

func TestHandler_Execute_QualityAlertRendersDetail(t *testing.T) {
	var sentEmail *ses.SendEmailInput

	sesMock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			sentEmail = params
			return &ses.SendEmailOutput{}, nil
		},
	}
	cfg := createTestConfig()
	cfg.SNSEnabled = false
	handler := newTestHandler(t, cfg, sesMock, &MockSNSService{})

	input := createTestInput(TypeQualityBelowBar)
	input.Reason = "word_count, section_count"
	output, err := handler.Execute(context.Background(), input)

	assert.NoError(t, err)
	assert.Equal(t, StatusSent, output.Status)

	body := *sentEmail.Message.Body.Text.Data
	assert.Contains(t, body, "Words: 120")
	assert.Contains(t, body, "sections: 3")
	assert.Contains(t, body, "word_count, section_count")
}

func TestHandler_Execute_ChannelToggles(t *testing.T) {
	tests := []struct {
		name         string
		emailEnabled bool
		snsEnabled   bool
		wantStatus   string
		wantEmails   int
		wantPublish  int
	}{
		{name: "email only", emailEnabled: true, snsEnabled: false, wantStatus: StatusSent, wantEmails: 1, wantPublish: 0},
		{name: "topic only", emailEnabled: false, snsEnabled: true, wantStatus: StatusSent, wantEmails: 0, wantPublish: 1},
		{name: "both disabled", emailEnabled: false, snsEnabled: false, wantStatus: StatusDisabled, wantEmails: 0, wantPublish: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emails := 0
			publishes := 0
			sesMock := &MockSESService{
				SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
					emails++
					return &ses.SendEmailOutput{}, nil
				},
			}
			snsMock := &MockSNSService{
				PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
					publishes++
					return &sns.PublishOutput{}, nil
				},
			}

			cfg := createTestConfig()
			cfg.EmailEnabled = tt.emailEnabled
			cfg.SNSEnabled = tt.snsEnabled
			handler := newTestHandler(t, cfg, sesMock, snsMock)

			output, err := handler.Execute(context.Background(), createTestInput(TypeEnhancementUnavailable))

			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, output.Status)
			assert.Equal(t, tt.wantEmails, emails)
			assert.Equal(t, tt.wantPublish, publishes)
		})
	}
}

func TestHandler_Execute_MissingPlaceholdersAreStripped(t *testing.T) {
	var sentEmail *ses.SendEmailInput

	sesMock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			sentEmail = params
			return &ses.SendEmailOutput{}, nil
		},
	}
	cfg := createTestConfig()
	cfg.SNSEnabled = false
	handler := newTestHandler(t, cfg, sesMock, &MockSNSService{})

	input := createTestInput(TypeQualityBelowBar)
	input.Detail = nil // wordCount and sectionCount placeholders have no values
	_, err := handler.Execute(context.Background(), input)

	assert.NoError(t, err)
	body := *sentEmail.Message.Body.Text.Data
	assert.False(t, strings.Contains(body, "{{"), "unresolved placeholders should be removed: %s", body)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_UnknownAlertType(t *testing.T) {
	handler := newTestHandler(t, createTestConfig(), &MockSESService{}, &MockSNSService{})

	output, err := handler.Execute(context.Background(), createTestInput("totally_unknown"))

	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAlertType)
	assert.Contains(t, err.Error(), "template not found")
	assert.Nil(t, output)
}

func TestHandler_Execute_EmailFailureStillPublishesTopic(t *testing.T) {
	publishes := 0
	sesMock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("ses throttled")
		},
	}
	snsMock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			publishes++
			return &sns.PublishOutput{}, nil
		},
	}
	handler := newTestHandler(t, createTestConfig(), sesMock, snsMock)

	output, err := handler.Execute(context.Background(), createTestInput(TypeExtractionExhausted))

	// A partial delivery surfaces in the status, not as a job failure.
	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, output.Status)
	assert.Equal(t, 1, publishes)
}

func TestHandler_Execute_TopicFailureReportsFailedStatus(t *testing.T) {
	sesMock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return &ses.SendEmailOutput{}, nil
		},
	}
	snsMock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("topic does not exist")
		},
	}
	handler := newTestHandler(t, createTestConfig(), sesMock, snsMock)

	output, err := handler.Execute(context.Background(), createTestInput(TypeExtractionExhausted))

	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, output.Status)
}

func TestHandler_Execute_AllChannelsFailReturnsError(t *testing.T) {
	sesMock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("ses throttled")
		},
	}
	snsMock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("topic does not exist")
		},
	}
	handler := newTestHandler(t, createTestConfig(), sesMock, snsMock)

	output, err := handler.Execute(context.Background(), createTestInput(TypeExtractionExhausted))

	// Nothing went out, so the job should fail and be retried.
	assert.ErrorIs(t, err, ErrAlertSendFailed)
	assert.Contains(t, err.Error(), "email: ses throttled")
	assert.Contains(t, err.Error(), "topic: topic does not exist")
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
			name:      "all channels failed",
			err:       fmt.Errorf("%w: email: ses throttled; topic: timeout", ErrAlertSendFailed),
			code:      errs.ErrCodeAlertSendFailed,
			retryable: true,
		},
		{
			name:      "unknown alert type",
			err:       fmt.Errorf("%w: template not found for 'bogus'", ErrUnknownAlertType),
			code:      errs.ErrCodeUnknownAlertType,
			retryable: false,
		},
		{
			name:      "unclassified failure",
			err:       errors.New("credentials expired"),
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
