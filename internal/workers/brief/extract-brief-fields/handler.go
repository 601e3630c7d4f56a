// internal/workers/brief/extract-brief-fields/handler.go
package extractbrieffields

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
)

const (
	TaskType = "extract-brief-fields"
)

var (
	ErrMissingUserRequest = errors.New("MISSING_USER_REQUEST")
)

// Orchestrator runs the extraction loop. Declared here so tests can
// substitute a mock.
type Orchestrator interface {
	ExtractAndAutofill(ctx context.Context, requestID, userRequest string) (*orchestrator.ExtractionResult, error)
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.UserRequest) == "" {
		return nil, fmt.Errorf("%w: userRequest variable is empty", ErrMissingUserRequest)
	}

	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	result, err := h.orchestrator.ExtractAndAutofill(ctx, requestID, input.UserRequest)
	if err != nil {
		return nil, err
	}

	h.logger.Info("brief fields extracted", map[string]interface{}{
		"requestId":       requestID,
		"attempts":        result.Attempts,
		"appliedDefaults": len(result.Applied),
		"warnings":        len(result.Warnings),
	})

	return &Output{
		RequestID:          requestID,
		BriefData:          result.Record,
		ExtractionAttempts: result.Attempts,
		AppliedDefaults:    result.Applied,
		ValidationWarnings: result.Warnings,
	}, nil
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

// failJob raises a BPMN error. Retrying here would just re-run the whole
// extraction loop, so every failure is terminal for the job. The taxonomy
// entry travels along as error variables.
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

// toStandardError maps pipeline failures onto the shared error taxonomy.
func toStandardError(err error) *errs.StandardError {
	switch {
	case errors.Is(err, orchestrator.ErrExtractionExhausted):
		return errs.NewExtractionExhaustedError(err.Error())
	case errors.Is(err, ErrMissingUserRequest):
		return &errs.StandardError{
			Code:      errs.ErrCodeMissingUserRequest,
			Message:   "userRequest variable is missing or empty",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	default:
		return &errs.StandardError{
			Code:      errs.ErrCodeUnknown,
			Message:   "Field extraction failed",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
