// internal/workers/brief/extract-brief-fields/models.go
package extractbrieffields

type Input struct {
	RequestID   string `json:"requestId"`
	UserRequest string `json:"userRequest"`
}

type Output struct {
	RequestID          string                 `json:"requestId"`
	BriefData          map[string]interface{} `json:"briefData"`
	ExtractionAttempts int                    `json:"extractionAttempts"`
	AppliedDefaults    []string               `json:"appliedDefaults"`
	ValidationWarnings []string               `json:"validationWarnings,omitempty"`
}
