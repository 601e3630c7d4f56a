// internal/workers/brief/preview-brief/handler.go
package previewbrief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"photobrief-workers/internal/brief/orchestrator"
	errs "photobrief-workers/internal/common/errors"
	"photobrief-workers/internal/common/logger"
	"photobrief-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

const TaskType = "preview-brief"

var (
	ErrMissingBriefData = errors.New("MISSING_BRIEF_DATA")
	ErrPayloadInvalid   = errors.New("PAYLOAD_VALIDATION_FAILED")
)

// previewSchema guards the outward payload shape. Process models and
// frontends consume this envelope directly, so a malformed payload is
// caught here instead of downstream.
var previewSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"properties": {
		"draft":              {"type": "string", "minLength": 1},
		"draftLength":        {"type": "integer", "minimum": 1},
		"isValid":            {"type": "boolean"},
		"validationErrors":   {"type": "array", "items": {"type": "string"}},
		"validationWarnings": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["draft", "draftLength", "isValid"]
}`)

// Orchestrator composes and validates a record without calling GenAI.
// Declared here so tests can substitute a mock.
type Orchestrator interface {
	PreviewBrief(record map[string]interface{}) *orchestrator.Preview
}

type Handler struct {
	config       *Config
	orchestrator Orchestrator
	logger       logger.Logger
}

func NewHandler(config *Config, orch Orchestrator, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		orchestrator: orch,
		logger:       log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
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
		h.failJob(client, job, toStandardError(err))
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if len(input.BriefData) == 0 {
		return nil, fmt.Errorf("%w: briefData variable is empty", ErrMissingBriefData)
	}

	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	preview := h.orchestrator.PreviewBrief(input.BriefData)

	data := map[string]interface{}{
		"draft":              preview.Draft,
		"draftLength":        len(preview.Draft),
		"isValid":            preview.Validation.IsValid,
		"validationErrors":   preview.Validation.Errors,
		"validationWarnings": preview.Validation.Warnings,
	}

	if err := h.validatePayload(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}

	h.logger.Info("preview built", map[string]interface{}{
		"requestId":   requestID,
		"draftLength": len(preview.Draft),
		"isValid":     preview.Validation.IsValid,
		"errors":      len(preview.Validation.Errors),
		"warnings":    len(preview.Validation.Warnings),
	})

	return &Output{
		Preview: ResponsePayload{
			RequestID: requestID,
			Status:    "success",
			Data:      data,
			Metadata: ResponseMetadata{
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Version:   h.config.AppVersion,
			},
		},
	}, nil
}

func (h *Handler) validatePayload(data map[string]interface{}) error {
	result, err := gojsonschema.Validate(previewSchema, gojsonschema.NewGoLoader(data))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("payload failed schema check: %s", strings.Join(details, "; "))
	}
	return nil
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

// failJob raises a BPMN error. Preview failures are deterministic, a
// redelivery would only rebuild the same payload. The taxonomy entry
// travels along as error variables.
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

// toStandardError maps preview failures onto the shared error taxonomy.
func toStandardError(err error) *errs.StandardError {
	switch {
	case errors.Is(err, ErrMissingBriefData):
		return &errs.StandardError{
			Code:      errs.ErrCodeMissingBriefData,
			Message:   "briefData variable is missing or empty",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	case errors.Is(err, ErrPayloadInvalid):
		return &errs.StandardError{
			Code:      errs.ErrCodePayloadValidationFailed,
			Message:   "Preview payload failed its schema check",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	default:
		return &errs.StandardError{
			Code:      errs.ErrCodePreviewBuildError,
			Message:   "Preview could not be built",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
