// internal/workers/brief/create-brief-record/models.go
package createbriefrecord

type Input struct {
	RequestID    string                 `json:"requestId"`
	UserRequest  string                 `json:"userRequest"`
	BriefData    map[string]interface{} `json:"briefData"`
	FinalBrief   string                 `json:"finalBrief"`
	WordCount    int                    `json:"wordCount"`
	SectionCount int                    `json:"sectionCount"`
	QualityAlert bool                   `json:"qualityAlert"`
}

type Output struct {
	BriefID     string `json:"briefId"`
	BriefStatus string `json:"briefStatus"`
	CreatedAt   string `json:"createdAt"` // ISO 8601
}

// Statuses
const (
	StatusGenerated = "generated"
	StatusFlagged   = "flagged"
)
