// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Brief pipeline error codes
const (
	// Extraction / enhancement (the two fatal AI outcomes)
	ErrCodeExtractionExhausted    ErrorCode = "EXTRACTION_EXHAUSTED"
	ErrCodeEnhancementUnavailable ErrorCode = "ENHANCEMENT_UNAVAILABLE"

	// Advisory codes: logged and counted, never thrown to the process
	ErrCodeValidationAdvisory ErrorCode = "VALIDATION_ADVISORY"
	ErrCodeQualityBelowBar    ErrorCode = "QUALITY_BELOW_BAR"

	// GenAI transport
	ErrCodeGenAITimeout       ErrorCode = "GENAI_TIMEOUT"
	ErrCodeGenAIRequestFailed ErrorCode = "GENAI_REQUEST_FAILED"

	// Archival
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeBriefArchiveFailed       ErrorCode = "BRIEF_ARCHIVE_FAILED"
	ErrCodeDuplicateBrief           ErrorCode = "DUPLICATE_BRIEF"

	// Alerts
	ErrCodeAlertSendFailed ErrorCode = "ALERT_SEND_FAILED"

	// Assets / input
	ErrCodeConfigLoadFailed    ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeTemplateParseFailed ErrorCode = "TEMPLATE_PARSE_FAILED"
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"

	// Worker-level codes thrown straight from job handlers
	ErrCodeParseError              ErrorCode = "PARSE_ERROR"
	ErrCodeMissingUserRequest      ErrorCode = "MISSING_USER_REQUEST"
	ErrCodeMissingBriefData        ErrorCode = "MISSING_BRIEF_DATA"
	ErrCodePreviewBuildError       ErrorCode = "PREVIEW_BUILD_ERROR"
	ErrCodePayloadValidationFailed ErrorCode = "PAYLOAD_VALIDATION_FAILED"
	ErrCodeUnknownAlertType        ErrorCode = "UNKNOWN_ALERT_TYPE"
	ErrCodeUnknown                 ErrorCode = "UNKNOWN_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewExtractionExhaustedError creates a non-retryable extraction error.
// The semantic retry budget was already spent inside the orchestrator,
// so the job must not be retried by the engine.
func NewExtractionExhaustedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionExhausted,
		Message:   "Extraction produced no valid data within the attempt budget",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEnhancementUnavailableError creates a retryable enhancement error.
func NewEnhancementUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEnhancementUnavailable,
		Message:   "Enhancement service failed to produce a document",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBriefArchiveFailedError creates a retryable archive insert error.
func NewBriefArchiveFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBriefArchiveFailed,
		Message:   "Failed to archive brief record",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateBriefError creates a non-retryable duplicate record error.
func NewDuplicateBriefError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateBrief,
		Message:   "Brief record already exists",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlertSendFailedError creates a retryable alert delivery error.
func NewAlertSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlertSendFailed,
		Message:   "Alert delivery failed on every enabled channel",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewParseError creates a non-retryable job variable parse error.
func NewParseError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeParseError,
		Message:   "Job variables could not be parsed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
// The codes are intentionally identical so process models can catch
// them by the same name the logs show.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeExtractionExhausted:      "EXTRACTION_EXHAUSTED",
	ErrCodeEnhancementUnavailable:   "ENHANCEMENT_UNAVAILABLE",
	ErrCodeValidationAdvisory:       "VALIDATION_ADVISORY",
	ErrCodeQualityBelowBar:          "QUALITY_BELOW_BAR",
	ErrCodeGenAITimeout:             "GENAI_TIMEOUT",
	ErrCodeGenAIRequestFailed:       "GENAI_REQUEST_FAILED",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeBriefArchiveFailed:       "BRIEF_ARCHIVE_FAILED",
	ErrCodeDuplicateBrief:           "DUPLICATE_BRIEF",
	ErrCodeAlertSendFailed:          "ALERT_SEND_FAILED",
	ErrCodeConfigLoadFailed:         "CONFIG_LOAD_FAILED",
	ErrCodeTemplateParseFailed:      "TEMPLATE_PARSE_FAILED",
	ErrCodeInvalidInput:             "INVALID_INPUT",
	ErrCodeInternal:                 "INTERNAL_ERROR",
	ErrCodeParseError:               "PARSE_ERROR",
	ErrCodeMissingUserRequest:       "MISSING_USER_REQUEST",
	ErrCodeMissingBriefData:         "MISSING_BRIEF_DATA",
	ErrCodePreviewBuildError:        "PREVIEW_BUILD_ERROR",
	ErrCodePayloadValidationFailed:  "PAYLOAD_VALIDATION_FAILED",
	ErrCodeUnknownAlertType:         "UNKNOWN_ALERT_TYPE",
	ErrCodeUnknown:                  "UNKNOWN_ERROR",
}

// IsKnownBPMNCode reports whether a BPMN error code belongs to the
// pipeline taxonomy. The registry validator uses it to catch typos in
// declared errorCodes.
func IsKnownBPMNCode(code string) bool {
	for _, bpmnCode := range BPMNErrorMapping {
		if bpmnCode == code {
			return true
		}
	}
	return false
}

// GetRetryCount returns the recommended engine-level retry count per code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeBriefArchiveFailed:
		return 3

	case ErrCodeEnhancementUnavailable,
		ErrCodeGenAIRequestFailed:
		return 2

	case ErrCodeAlertSendFailed,
		ErrCodeGenAITimeout:
		return 1

	default:
		// EXTRACTION_EXHAUSTED and the business codes: the semantic
		// budget is spent, retrying the job would only repeat it.
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "EXTRACTION") || strings.Contains(codeStr, "ENHANCEMENT") || strings.Contains(codeStr, "GENAI"):
		return "AI"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "ARCHIVE") || strings.Contains(codeStr, "DUPLICATE"):
		return "DATABASE"
	case strings.Contains(codeStr, "ALERT"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "QUALITY"):
		return "QUALITY"
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "CONFIG"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") ||
		strings.Contains(codeStr, "PARSE") || strings.Contains(codeStr, "MISSING") ||
		strings.Contains(codeStr, "PAYLOAD"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
