// internal/workers/brief/generate-brief/models.go
package generatebrief

type Input struct {
	RequestID string                 `json:"requestId"`
	BriefData map[string]interface{} `json:"briefData"`
}

type Output struct {
	RequestID    string   `json:"requestId"`
	FinalBrief   string   `json:"finalBrief"`
	WordCount    int      `json:"wordCount"`
	SectionCount int      `json:"sectionCount"`
	QualityAlert bool     `json:"qualityAlert"`
	QualityFlags []string `json:"qualityFlags,omitempty"`
	GeneratedAt  string   `json:"generatedAt"` // ISO 8601
}
