// internal/workers/brief/send-brief-alert/models.go
package sendbriefalert

type Input struct {
	RequestID string                 `json:"requestId"`
	AlertType string                 `json:"alertType"`
	Reason    string                 `json:"reason,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

type Output struct {
	AlertID string `json:"alertId"`
	Status  string `json:"status"` // "sent", "failed", "disabled"
	SentAt  string `json:"sentAt"` // ISO 8601
}

// Alert types
const (
	TypeExtractionExhausted    = "extraction_exhausted"
	TypeEnhancementUnavailable = "enhancement_unavailable"
	TypeQualityBelowBar        = "quality_below_bar"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)
