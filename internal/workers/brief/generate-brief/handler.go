// internal/workers/brief/generate-brief/handler.go
package generatebrief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	TaskType = "generate-brief"
)

var (
	ErrMissingBriefData = errors.New("MISSING_BRIEF_DATA")
)

// Orchestrator turns an extracted record into the final brief document.
// Declared here so tests can substitute a mock.
type Orchestrator interface {
	GenerateFinalBrief(ctx context.Context, requestID string, record map[string]interface{}) (*orchestrator.BriefResult, error)
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
		stdErr := toStandardError(err)
		// A GenAI outage is usually transient, worth another delivery.
		// The last attempt raises the BPMN error instead so the process
		// can route to its alert path.
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
	if len(input.BriefData) == 0 {
		return nil, fmt.Errorf("%w: briefData variable is empty", ErrMissingBriefData)
	}

	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	result, err := h.orchestrator.GenerateFinalBrief(ctx, requestID, input.BriefData)
	if err != nil {
		return nil, err
	}

	h.logger.Info("final brief generated", map[string]interface{}{
		"requestId":    requestID,
		"wordCount":    result.WordCount,
		"sectionCount": result.SectionCount,
		"qualityAlert": result.QualityAlert,
	})

	return &Output{
		RequestID:    requestID,
		FinalBrief:   result.Document,
		WordCount:    result.WordCount,
		SectionCount: result.SectionCount,
		QualityAlert: result.QualityAlert,
		QualityFlags: result.AlertReasons,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
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

// failJob raises a BPMN error so the process can route to its alert path.
// The taxonomy entry travels along as error variables.
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
	case errors.Is(err, orchestrator.ErrEnhancementUnavailable):
		return errs.NewEnhancementUnavailableError(err)
	case errors.Is(err, ErrMissingBriefData):
		return &errs.StandardError{
			Code:      errs.ErrCodeMissingBriefData,
			Message:   "briefData variable is missing or empty",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	default:
		return &errs.StandardError{
			Code:      errs.ErrCodeUnknown,
			Message:   "Brief generation failed",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
