// internal/workers/brief/preview-brief/models.go
package previewbrief

type Input struct {
	RequestID string                 `json:"requestId"`
	BriefData map[string]interface{} `json:"briefData"`
}

type ResponseMetadata struct {
	Timestamp string `json:"timestamp"` // ISO 8601
	Version   string `json:"version"`
}

type ResponsePayload struct {
	RequestID string                 `json:"requestId"`
	Status    string                 `json:"status"`
	Data      map[string]interface{} `json:"data"`
	Metadata  ResponseMetadata       `json:"metadata"`
}

type Output struct {
	Preview ResponsePayload `json:"preview"`
}
