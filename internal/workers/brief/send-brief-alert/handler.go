// internal/workers/brief/send-brief-alert/handler.go
package sendbriefalert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	commonaws "photobrief-workers/internal/common/aws"
	errs "photobrief-workers/internal/common/errors"
	"photobrief-workers/internal/common/logger"
	"photobrief-workers/internal/common/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-brief-alert"
)

var (
	ErrAlertSendFailed  = errors.New("ALERT_SEND_FAILED")
	ErrUnknownAlertType = errors.New("UNKNOWN_ALERT_TYPE")
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config      *Config
	logger      logger.Logger
	sesClient   SESService
	snsClient   SNSService
	templateMap map[string]map[string]string
}

func NewHandler(config *Config, log logger.Logger) (*Handler, error) {
	sesClient, err := commonaws.NewSESClient(context.Background(), config.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("init SES client: %w", err)
	}
	snsClient, err := commonaws.NewSNSClient(context.Background(), config.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("init SNS client: %w", err)
	}

	return &Handler{
		config:      config,
		logger:      log.WithFields(map[string]interface{}{"taskType": TaskType}),
		sesClient:   sesClient,
		snsClient:   snsClient,
		templateMap: alertTemplates(),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, errs.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		stdErr := toStandardError(err)
		// Nothing was delivered, so a redelivery cannot duplicate an alert.
		// The last attempt raises the BPMN error instead.
		if stdErr.Retryable && job.Retries > 1 {
			h.retryJob(client, job, stdErr)
			return
		}
		h.failJob(client, job, stdErr)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	template, exists := h.templateMap[input.AlertType]
	if !exists {
		return nil, fmt.Errorf("%w: template not found for alert type: %s", ErrUnknownAlertType, input.AlertType)
	}

	// Build data map for template rendering
	data := map[string]interface{}{
		"requestId": input.RequestID,
		"alertType": input.AlertType,
		"reason":    input.Reason,
	}

	// Merge detail if present
	if input.Detail != nil {
		for k, v := range input.Detail {
			data[k] = v
		}
	}

	subject := renderTemplate(template["subject"], data)
	body := renderTemplate(template["body"], data)

	sentAt := time.Now().UTC().Format(time.RFC3339)
	alertID := uuid.New().String()

	// Every enabled channel gets an attempt before the outcome is decided
	attempted := 0
	delivered := 0
	var failures []string

	// Send email if enabled and an ops address is configured
	if h.config.EmailEnabled && h.config.OpsEmail != "" {
		attempted++
		if err := h.sendEmail(ctx, h.config.OpsEmail, subject, body); err != nil {
			h.logger.Error("alert email send failed", map[string]interface{}{
				"error": err,
				"email": h.config.OpsEmail,
			})
			failures = append(failures, fmt.Sprintf("email: %v", err))
		} else {
			delivered++
		}
	}

	// Publish to the alert topic if enabled
	if h.config.SNSEnabled && h.config.TopicARN != "" {
		attempted++
		if err := h.publishTopic(ctx, subject, body); err != nil {
			h.logger.Error("alert topic publish failed", map[string]interface{}{
				"error":    err,
				"topicArn": h.config.TopicARN,
			})
			failures = append(failures, fmt.Sprintf("topic: %v", err))
		} else {
			delivered++
		}
	}

	// Total failure means nothing went out, which makes a redelivery safe
	if attempted > 0 && delivered == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlertSendFailed, strings.Join(failures, "; "))
	}

	// Partial failure surfaces in the status rather than failing the job
	status := StatusDisabled
	if len(failures) > 0 {
		status = StatusFailed
	} else if delivered > 0 {
		status = StatusSent
	}

	h.logger.Info("brief alert processed", map[string]interface{}{
		"alertId":   alertID,
		"requestId": input.RequestID,
		"alertType": input.AlertType,
		"status":    status,
	})

	return &Output{
		AlertID: alertID,
		Status:  status,
		SentAt:  sentAt,
	}, nil
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) publishTopic(ctx context.Context, subject, message string) error {
	_, err := h.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(h.config.TopicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	return err
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

// retryJob hands the job back with one retry consumed so the broker
// redelivers it.
func (h *Handler) retryJob(client worker.JobClient, job entities.Job, stdErr *errs.StandardError) {
	remaining := job.Retries - 1
	if remaining < 0 {
		remaining = 0
	}
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()

	h.logger.Error("job failed, returning for retry", map[string]interface{}{
		"jobKey":           job.Key,
		"error":            stdErr.Details,
		"errorCode":        string(stdErr.Code),
		"errorCategory":    errs.GetErrorCategory(stdErr.Code),
		"remainingRetries": remaining,
	})

	_, sendErr := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(remaining).
		ErrorMessage(fmt.Sprintf("[%s] %s", stdErr.Code, stdErr.Details)).
		Send(context.Background())
	if sendErr != nil {
		h.logger.Error("failed to fail job", map[string]interface{}{
			"error": sendErr,
		})
	}
}

// failJob raises a BPMN error. The alert task is usually the last stop on
// an error path already, so the process decides what a dead alert means.
func (h *Handler) failJob(client worker.JobClient, job entities.Job, stdErr *errs.StandardError) {
	bpmnErr := errs.ConvertToBPMNError(stdErr)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":        job.Key,
		"errorCode":     bpmnErr.Code,
		"errorMessage":  bpmnErr.Message,
		"errorDetails":  bpmnErr.Details,
		"errorCategory": errs.GetErrorCategory(stdErr.Code),
	})

	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, marshalErr := json.Marshal(bpmnErr.ToErrorVariables()); marshalErr == nil {
		if cmdWithVars, varErr := cmd.VariablesFromString(string(varsJSON)); varErr == nil {
			if _, err := cmdWithVars.Send(context.Background()); err != nil {
				h.logger.Error("failed to throw error", map[string]interface{}{
					"error": err,
				})
			}
			return
		}
	}

	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

// toStandardError maps alert failures onto the shared error taxonomy.
func toStandardError(err error) *errs.StandardError {
	switch {
	case errors.Is(err, ErrAlertSendFailed):
		return errs.NewAlertSendFailedError(err)
	case errors.Is(err, ErrUnknownAlertType):
		return &errs.StandardError{
			Code:      errs.ErrCodeUnknownAlertType,
			Message:   "No alert template exists for the requested type",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	default:
		return &errs.StandardError{
			Code:      errs.ErrCodeUnknown,
			Message:   "Alert dispatch failed",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
}

// Simplified template rendering with placeholder removal for missing values
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	// First, replace all known placeholders
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if i, ok := v.(int); ok {
			value = fmt.Sprintf("%d", i)
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Remove any remaining placeholders (missing values)
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}

func alertTemplates() map[string]map[string]string {
	return map[string]map[string]string{
		TypeExtractionExhausted: {
			"subject": "Brief extraction exhausted for request {{requestId}}",
			"body":    "Extraction gave up for request {{requestId}} after the attempt budget ran out. Final errors: {{reason}}",
		},
		TypeEnhancementUnavailable: {
			"subject": "Brief enhancement unavailable for request {{requestId}}",
			"body":    "The GenAI enhancement stage failed for request {{requestId}}. Cause: {{reason}}",
		},
		TypeQualityBelowBar: {
			"subject": "Brief below quality bar for request {{requestId}}",
			"body":    "Request {{requestId}} produced a brief below the quality thresholds ({{reason}}). Words: {{wordCount}}, sections: {{sectionCount}}.",
		},
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
