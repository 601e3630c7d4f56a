// internal/workers/brief/create-brief-record/handler.go
package createbriefrecord

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	errs "photobrief-workers/internal/common/errors"
	"photobrief-workers/internal/common/logger"
	"photobrief-workers/internal/common/metrics"
	"photobrief-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "create-brief-record"
)

var (
	ErrBriefArchiveFailed = errors.New("BRIEF_ARCHIVE_FAILED")
	ErrDuplicateBrief     = errors.New("DUPLICATE_BRIEF")
)

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		// Database hiccups are worth another delivery. The last attempt
		// raises the BPMN error instead.
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
	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// Check for a brief archived under the same request
	var exists bool
	err := h.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM briefs
			WHERE request_id = $1
		)`, requestID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%w: duplicate check failed: %v", ErrBriefArchiveFailed, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: brief already archived for request %s",
			ErrDuplicateBrief, requestID)
	}

	briefID := uuid.New().String()
	createdAt := time.Now().UTC().Format(time.RFC3339)

	status := StatusGenerated
	if input.QualityAlert {
		status = StatusFlagged
	}

	// Round-trip through the typed model so only known brief fields
	// reach the JSONB column.
	structured := models.BriefFromRecord(input.BriefData)
	briefDataJSON, err := json.Marshal(structured.ToRecord())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal brief data: %v", ErrBriefArchiveFailed, err)
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO briefs (
			id, request_id, user_request, brief_data, final_brief,
			word_count, section_count, quality_alert, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		briefID,
		requestID,
		input.UserRequest,
		briefDataJSON,
		input.FinalBrief,
		input.WordCount,
		input.SectionCount,
		input.QualityAlert,
		status,
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert failed: %v", ErrBriefArchiveFailed, err)
	}

	// Create audit log entry (non-critical, log error but don't fail)
	auditDetailsJSON, err := json.Marshal(map[string]interface{}{
		"requestId":    requestID,
		"wordCount":    input.WordCount,
		"sectionCount": input.SectionCount,
		"qualityAlert": input.QualityAlert,
		"status":       status,
	})
	if err != nil {
		h.logger.Warn("failed to marshal audit log details", map[string]interface{}{
			"error": err,
		})
		auditDetailsJSON = []byte("{}")
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"brief_created",
		"brief",
		briefID,
		auditDetailsJSON,
		createdAt,
	)
	if err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":   err,
			"briefId": briefID,
		})
	}

	h.logger.Info("brief record created", map[string]interface{}{
		"briefId":      briefID,
		"requestId":    requestID,
		"status":       status,
		"wordCount":    input.WordCount,
		"qualityAlert": input.QualityAlert,
	})

	return &Output{
		BriefID:     briefID,
		BriefStatus: status,
		CreatedAt:   createdAt,
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
	} else {
		h.logger.Info("job completed successfully", map[string]interface{}{
			"jobKey": job.Key,
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

// failJob raises a BPMN error with the taxonomy entry as error variables.
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

// toStandardError maps archival failures onto the shared error taxonomy.
func toStandardError(err error) *errs.StandardError {
	switch {
	case errors.Is(err, ErrDuplicateBrief):
		return errs.NewDuplicateBriefError(err)
	case errors.Is(err, ErrBriefArchiveFailed):
		return errs.NewBriefArchiveFailedError(err)
	default:
		return &errs.StandardError{
			Code:      errs.ErrCodeUnknown,
			Message:   "Brief archival failed",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
