// Package orchestrator drives the brief pipeline end to end. Flow one
// turns raw user text into a complete structured record through a
// self-healing extraction loop plus defaults autofill. Flow two turns a
// record into the final photography document: compose a draft, run
// advisory validation, enhance through the GenAI service, and prepend
// the quality control directives.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"photobrief-workers/internal/brief/composer"
	"photobrief-workers/internal/brief/defaults"
	"photobrief-workers/internal/brief/rules"
	"photobrief-workers/internal/common/metrics"
	"photobrief-workers/internal/common/progress"
	"photobrief-workers/internal/common/telemetry"

	"github.com/google/uuid"
)

var (
	ErrExtractionExhausted    = errors.New("EXTRACTION_EXHAUSTED")
	ErrEnhancementUnavailable = errors.New("ENHANCEMENT_UNAVAILABLE")
)

const (
	workflowExtract  = "extract_and_autofill"
	workflowGenerate = "generate_final_brief"
)

// Extractor produces a structured record from a free text request.
type Extractor interface {
	Extract(ctx context.Context, request string) (map[string]interface{}, error)
}

// Enhancer rewrites a structured record into the final document.
type Enhancer interface {
	Enhance(ctx context.Context, record map[string]interface{}) (string, error)
}

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Options carries the orchestrator dependencies. Extractor, Enhancer,
// Rules, Structure and Logger are required; Progress and Telemetry are
// optional sinks.
type Options struct {
	Extractor Extractor
	Enhancer  Enhancer
	Rules     *rules.Engine
	Structure *composer.Structure
	Defaults  defaults.Table

	// MaxAttempts bounds the extraction loop, counting the first try.
	MaxAttempts int
	// MinWords and MinSections set the quality floor for enhanced
	// documents. A document below either floor is still returned, but
	// flagged.
	MinWords    int
	MinSections int

	Progress  progress.Sink
	Telemetry telemetry.Recorder
	Logger    Logger
}

type Orchestrator struct {
	extractor   Extractor
	enhancer    Enhancer
	rules       *rules.Engine
	structure   *composer.Structure
	defaults    defaults.Table
	maxAttempts int
	minWords    int
	minSections int
	progress    progress.Sink
	telemetry   telemetry.Recorder
	logger      Logger
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Extractor == nil {
		return nil, fmt.Errorf("orchestrator requires an extractor")
	}
	if opts.Enhancer == nil {
		return nil, fmt.Errorf("orchestrator requires an enhancer")
	}
	if opts.Rules == nil {
		return nil, fmt.Errorf("orchestrator requires a validation engine")
	}
	if opts.Structure == nil {
		return nil, fmt.Errorf("orchestrator requires a brief structure")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("orchestrator requires a logger")
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	minWords := opts.MinWords
	if minWords <= 0 {
		minWords = 200
	}
	minSections := opts.MinSections
	if minSections <= 0 {
		minSections = 5
	}

	return &Orchestrator{
		extractor:   opts.Extractor,
		enhancer:    opts.Enhancer,
		rules:       opts.Rules,
		structure:   opts.Structure,
		defaults:    opts.Defaults,
		maxAttempts: maxAttempts,
		minWords:    minWords,
		minSections: minSections,
		progress:    opts.Progress,
		telemetry:   opts.Telemetry,
		logger: opts.Logger.With(map[string]interface{}{
			"component": "brief-orchestrator",
		}),
	}, nil
}

type attemptStatus int

const (
	attemptAccepted attemptStatus = iota
	attemptInvalid
	attemptErrored
)

type attemptResult struct {
	status   attemptStatus
	record   map[string]interface{}
	errors   []string
	warnings []string
	cause    error
}

// ExtractionResult is the accepted record plus loop bookkeeping.
type ExtractionResult struct {
	Record   map[string]interface{} `json:"record"`
	Attempts int                    `json:"attempts"`
	Applied  []string               `json:"applied_defaults"`
	Warnings []string               `json:"warnings,omitempty"`
}

// ExtractAndAutofill runs the extraction loop until a record passes
// validation or the attempt budget runs out. Rejected attempts feed
// their validation errors back into the next extraction prompt so the
// model can correct itself. The accepted record is then completed from
// the defaults table.
func (o *Orchestrator) ExtractAndAutofill(ctx context.Context, requestID, userRequest string) (*ExtractionResult, error) {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	log := o.logger.With(map[string]interface{}{
		"requestId": requestID,
	})

	log.Info("starting extraction workflow", map[string]interface{}{
		"workflow":          workflowExtract,
		"userRequestLength": len(userRequest),
		"maxAttempts":       o.maxAttempts,
	})
	o.progressBegin(ctx, requestID, workflowExtract)

	var accepted *attemptResult
	attempts := 0
	var feedback []string

	for attempt := 0; attempt < o.maxAttempts && accepted == nil; attempt++ {
		attempts = attempt + 1
		o.progressUpdate(ctx, requestID, "extraction", map[string]interface{}{
			"attempt": attempts,
		})

		result := o.runAttempt(ctx, log, userRequest, attempt, feedback)

		switch result.status {
		case attemptAccepted:
			metrics.ExtractionAttempts.WithLabelValues("accepted").Inc()
			o.recordEvent(ctx, telemetry.Event{
				RequestID: requestID,
				Workflow:  workflowExtract,
				Stage:     "extraction",
				Outcome:   "accepted",
				Attempt:   attempts,
			})
			accepted = &result

		case attemptInvalid:
			if attempt == o.maxAttempts-1 {
				metrics.ExtractionAttempts.WithLabelValues("failed").Inc()
				o.recordEvent(ctx, telemetry.Event{
					RequestID: requestID,
					Workflow:  workflowExtract,
					Stage:     "extraction",
					Outcome:   "failed",
					Attempt:   attempts,
					Detail:    map[string]interface{}{"errors": result.errors},
				})
				err := fmt.Errorf("%w: Failed to extract valid data after %d attempts. Final errors: %v",
					ErrExtractionExhausted, o.maxAttempts, result.errors)
				log.Error("extraction budget exhausted", map[string]interface{}{
					"attempts":    o.maxAttempts,
					"finalErrors": result.errors,
				})
				o.progressFail(ctx, requestID, err)
				return nil, err
			}
			metrics.ExtractionAttempts.WithLabelValues("retry").Inc()
			o.recordEvent(ctx, telemetry.Event{
				RequestID: requestID,
				Workflow:  workflowExtract,
				Stage:     "extraction",
				Outcome:   "retry",
				Attempt:   attempts,
				Detail:    map[string]interface{}{"errors": result.errors},
			})
			feedback = result.errors

		case attemptErrored:
			if attempt == o.maxAttempts-1 {
				metrics.ExtractionAttempts.WithLabelValues("failed").Inc()
				o.recordEvent(ctx, telemetry.Event{
					RequestID: requestID,
					Workflow:  workflowExtract,
					Stage:     "extraction",
					Outcome:   "failed",
					Attempt:   attempts,
					Detail:    map[string]interface{}{"error": result.cause.Error()},
				})
				err := fmt.Errorf("%w: AI extraction service failed after %d attempts: %v",
					ErrExtractionExhausted, o.maxAttempts, result.cause)
				log.Error("extraction service failed on final attempt", map[string]interface{}{
					"attempts": o.maxAttempts,
					"error":    result.cause.Error(),
				})
				o.progressFail(ctx, requestID, err)
				return nil, err
			}
			metrics.ExtractionAttempts.WithLabelValues("retry").Inc()
			o.recordEvent(ctx, telemetry.Event{
				RequestID: requestID,
				Workflow:  workflowExtract,
				Stage:     "extraction",
				Outcome:   "retry",
				Attempt:   attempts,
				Detail:    map[string]interface{}{"error": result.cause.Error()},
			})
			// The failure description becomes feedback for the next try.
			feedback = []string{result.cause.Error()}
		}
	}

	o.progressUpdate(ctx, requestID, "autofill", nil)
	record, applied := o.defaults.Apply(accepted.record)

	log.Info("extraction workflow completed", map[string]interface{}{
		"workflow":        workflowExtract,
		"attempts":        attempts,
		"appliedDefaults": applied,
		"productName":     record["product_name"],
	})
	o.progressComplete(ctx, requestID)
	o.recordEvent(ctx, telemetry.Event{
		RequestID: requestID,
		Workflow:  workflowExtract,
		Stage:     "workflow",
		Outcome:   "success",
		Attempt:   attempts,
		Detail:    map[string]interface{}{"appliedDefaults": len(applied)},
	})

	return &ExtractionResult{
		Record:   record,
		Attempts: attempts,
		Applied:  applied,
		Warnings: accepted.warnings,
	}, nil
}

func (o *Orchestrator) runAttempt(ctx context.Context, log Logger, userRequest string, attempt int, feedback []string) attemptResult {
	prompt := userRequest
	if attempt > 0 {
		errorFeedback := strings.Join(feedback, "; ")
		prompt = fmt.Sprintf(
			"Your previous attempt to extract data failed with the following errors: %s. "+
				"Please analyze these errors, correct your process, and provide a new, valid JSON output "+
				"based on the original user request: '%s'",
			errorFeedback, userRequest)
		log.Warn("retrying extraction with error feedback", map[string]interface{}{
			"attempt":  attempt + 1,
			"feedback": errorFeedback,
		})
	} else {
		log.Info("running initial extraction", map[string]interface{}{
			"attempt": attempt + 1,
		})
	}

	record, err := o.extractor.Extract(ctx, prompt)
	if err != nil {
		log.Warn("extraction attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		return attemptResult{status: attemptErrored, cause: err}
	}

	// The model may echo a reworded request; the original text always wins.
	record["user_request"] = userRequest

	verdict := o.rules.Validate(record)
	if !verdict.IsValid {
		log.Warn("extracted record failed validation", map[string]interface{}{
			"attempt": attempt + 1,
			"errors":  verdict.Errors,
		})
		return attemptResult{
			status:   attemptInvalid,
			record:   record,
			errors:   verdict.Errors,
			warnings: verdict.Warnings,
		}
	}

	log.Info("extracted record accepted", map[string]interface{}{
		"attempt":     attempt + 1,
		"productName": record["product_name"],
	})
	return attemptResult{
		status:   attemptAccepted,
		record:   record,
		warnings: verdict.Warnings,
	}
}

// qualityDirectives is prepended to every enhanced document. The image
// generation model downstream treats these as hard constraints.
const qualityDirectives = `
PROFESSIONAL PHOTOGRAPHY QUALITY CONTROL:

## GAMMA CORRECTION & TONE CONSISTENCY
- Apply proper gamma correction (power 1/2.2) for consistent tone mapping across all image elements
- Maintain uniform luminance values and color temperature throughout composition
- Ensure balanced exposure with natural dynamic range distribution

## COLOR SPACE & CHANNEL MANAGEMENT
- Standardized RGBA channel consistency with proper color space workflow
- Accurate color reproduction with natural saturation levels
- Prevent color banding and maintain smooth gradients

## NATURAL LIGHTING PHYSICS
- Implement realistic light ray casting with proper directional shadows
- Natural light falloff and ambient occlusion integration
- Consistent light temperature and atmospheric perspective
- Proper surface material interaction with light sources

## SENSOR PHOTOSITE PRECISION (Logo & Text Clarity)
- Sharp edge definition for all text elements and logo components
- Sub-pixel precision rendering for crisp typography
- Anti-aliasing optimization for readability at all scales
- Maintain vector-like sharpness for brand elements

## PREVIEW QUALITY & ARTIFACT PREVENTION
- Eliminate compression artifacts and digital noise
- Prevent haloing, ghosting, or composite seam visibility
- Natural depth of field with proper bokeh characteristics
- Avoid artificial post-processing appearance

## REALISM INTEGRATION
- All elements must appear naturally integrated and realistic
- Objects in motion should have proper physics and natural movement blur
- Ensure cohesive environmental lighting and proper shadow casting
- Avoid artificial or composite appearance with seamless element integration
`

// BriefResult is the final document plus the quality signals measured on
// the enhanced text.
type BriefResult struct {
	Document     string   `json:"document"`
	Draft        string   `json:"draft"`
	WordCount    int      `json:"word_count"`
	SectionCount int      `json:"section_count"`
	QualityAlert bool     `json:"quality_alert"`
	AlertReasons []string `json:"alert_reasons,omitempty"`
}

// GenerateFinalBrief composes a draft from the record, validates it for
// the log, and hands the record to the enhancer. There is no fallback
// document: when enhancement fails the workflow fails.
func (o *Orchestrator) GenerateFinalBrief(ctx context.Context, requestID string, record map[string]interface{}) (*BriefResult, error) {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	log := o.logger.With(map[string]interface{}{
		"requestId": requestID,
	})

	log.Info("starting final brief generation", map[string]interface{}{
		"workflow":    workflowGenerate,
		"productName": record["product_name"],
	})
	o.progressBegin(ctx, requestID, workflowGenerate)

	o.progressUpdate(ctx, requestID, "compose", nil)
	draft := composer.Compose(o.structure, record)

	// Validation is advisory here: findings are logged, generation continues.
	o.progressUpdate(ctx, requestID, "validate", nil)
	verdict := o.rules.Validate(record)
	if !verdict.IsValid {
		log.Warn("record validation reported errors", map[string]interface{}{
			"errors": verdict.Errors,
		})
	}
	if len(verdict.Warnings) > 0 {
		log.Warn("record validation reported warnings", map[string]interface{}{
			"warnings": verdict.Warnings,
		})
	}

	o.progressUpdate(ctx, requestID, "enhance", map[string]interface{}{
		"draftLength": len(draft),
	})
	enhanced, err := o.enhancer.Enhance(ctx, record)
	if err != nil {
		wrapped := fmt.Errorf("%w: failed to generate final brief: %v", ErrEnhancementUnavailable, err)
		log.Error("enhancement failed, no fallback document is produced", map[string]interface{}{
			"error": err.Error(),
		})
		o.progressFail(ctx, requestID, wrapped)
		o.recordEvent(ctx, telemetry.Event{
			RequestID: requestID,
			Workflow:  workflowGenerate,
			Stage:     "enhance",
			Outcome:   "error",
			Detail:    map[string]interface{}{"error": err.Error()},
		})
		return nil, wrapped
	}

	wordCount := len(strings.Fields(enhanced))
	sectionCount := strings.Count(enhanced, "##")

	var reasons []string
	if wordCount < o.minWords {
		reasons = append(reasons, "word_count")
	}
	if sectionCount < o.minSections {
		reasons = append(reasons, "section_count")
	}
	if len(reasons) > 0 {
		for _, reason := range reasons {
			metrics.QualityAlerts.WithLabelValues(reason).Inc()
		}
		log.Warn("enhanced brief fell below the quality floor", map[string]interface{}{
			"wordCount":    wordCount,
			"sectionCount": sectionCount,
			"minWords":     o.minWords,
			"minSections":  o.minSections,
			"reasons":      reasons,
		})
		o.recordEvent(ctx, telemetry.Event{
			RequestID: requestID,
			Workflow:  workflowGenerate,
			Stage:     "quality",
			Outcome:   "alert",
			Detail: map[string]interface{}{
				"reasons":      reasons,
				"wordCount":    wordCount,
				"sectionCount": sectionCount,
			},
		})
	}

	metrics.BriefsGenerated.Inc()

	log.Info("final brief generated", map[string]interface{}{
		"workflow":       workflowGenerate,
		"documentLength": len(enhanced),
		"wordCount":      wordCount,
		"sectionCount":   sectionCount,
		"qualityAlert":   len(reasons) > 0,
	})
	o.progressComplete(ctx, requestID)
	o.recordEvent(ctx, telemetry.Event{
		RequestID: requestID,
		Workflow:  workflowGenerate,
		Stage:     "workflow",
		Outcome:   "success",
	})

	return &BriefResult{
		Document:     qualityDirectives + enhanced,
		Draft:        draft,
		WordCount:    wordCount,
		SectionCount: sectionCount,
		QualityAlert: len(reasons) > 0,
		AlertReasons: reasons,
	}, nil
}

// Preview is a composed draft plus its validation verdict, produced
// without calling the GenAI service.
type Preview struct {
	Draft      string                 `json:"draft"`
	Validation rules.Result           `json:"validation"`
	Record     map[string]interface{} `json:"record"`
}

// PreviewBrief composes and validates without enhancement. Useful for
// inspecting templates and rules against a record.
func (o *Orchestrator) PreviewBrief(record map[string]interface{}) *Preview {
	return &Preview{
		Draft:      composer.Compose(o.structure, record),
		Validation: o.rules.Validate(record),
		Record:     record,
	}
}

func (o *Orchestrator) progressBegin(ctx context.Context, requestID, workflow string) {
	if o.progress != nil {
		o.progress.Begin(ctx, requestID, workflow)
	}
}

func (o *Orchestrator) progressUpdate(ctx context.Context, requestID, stage string, detail map[string]interface{}) {
	if o.progress != nil {
		o.progress.Update(ctx, requestID, stage, detail)
	}
}

func (o *Orchestrator) progressComplete(ctx context.Context, requestID string) {
	if o.progress != nil {
		o.progress.Complete(ctx, requestID)
	}
}

func (o *Orchestrator) progressFail(ctx context.Context, requestID string, cause error) {
	if o.progress != nil {
		o.progress.Fail(ctx, requestID, cause)
	}
}

func (o *Orchestrator) recordEvent(ctx context.Context, event telemetry.Event) {
	if o.telemetry != nil {
		o.telemetry.Record(ctx, event)
	}
}
