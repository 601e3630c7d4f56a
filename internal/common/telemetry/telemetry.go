// Package telemetry records pipeline events to Elasticsearch for later
// analysis. Recording is best effort: a telemetry outage must never fail
// the workflow that emitted the event.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

// Event is a single pipeline observation.
type Event struct {
	RequestID string                 `json:"request_id"`
	Workflow  string                 `json:"workflow"`
	Stage     string                 `json:"stage"`
	Outcome   string                 `json:"outcome"`
	Attempt   int                    `json:"attempt,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Recorder captures pipeline events.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Logger interface definition
type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

// Nop discards all events.
type Nop struct{}

func (Nop) Record(ctx context.Context, event Event) {}

// Indexer writes events into daily Elasticsearch indices named
// "<prefix>-YYYY.MM.DD".
type Indexer struct {
	es     *elasticsearch.Client
	prefix string
	logger Logger
}

var (
	_ Recorder = (*Indexer)(nil)
	_ Recorder = Nop{}
)

func NewIndexer(es *elasticsearch.Client, indexPrefix string, log Logger) *Indexer {
	return &Indexer{
		es:     es,
		prefix: indexPrefix,
		logger: log,
	}
}

func (i *Indexer) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		i.logger.Warn("telemetry event marshal failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	index := fmt.Sprintf("%s-%s", i.prefix, event.Timestamp.Format("2006.01.02"))
	res, err := i.es.Index(index, bytes.NewReader(body), i.es.Index.WithContext(ctx))
	if err != nil {
		i.logger.Warn("telemetry index request failed", map[string]interface{}{
			"index": index,
			"error": err.Error(),
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		i.logger.Warn("telemetry index rejected", map[string]interface{}{
			"index":  index,
			"status": res.Status(),
		})
	}
}
