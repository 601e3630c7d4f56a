package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	t     *testing.T
	warns int32
}

func (l *testLogger) Warn(msg string, fields map[string]interface{}) {
	atomic.AddInt32(&l.warns, 1)
	l.t.Logf("WARN: %s %v", msg, fields)
}

func newTestIndexer(t *testing.T, url string, log *testLogger) *Indexer {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	require.NoError(t, err)
	return NewIndexer(es, "test-telemetry", log)
}

func TestRecord_WritesDailyIndex(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":"created"}`)
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL, &testLogger{t: t})
	indexer.Record(context.Background(), Event{
		RequestID: "req-1",
		Workflow:  "extract_and_autofill",
		Stage:     "extraction",
		Outcome:   "accepted",
		Attempt:   1,
		Detail:    map[string]interface{}{"productName": "Aurora Mug"},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "/test-telemetry-2026.03.01/_doc", gotPath)
	assert.Equal(t, "req-1", gotBody["request_id"])
	assert.Equal(t, "extraction", gotBody["stage"])
	assert.Equal(t, "accepted", gotBody["outcome"])
	assert.Equal(t, float64(1), gotBody["attempt"])
}

func TestRecord_StampsMissingTimestamp(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"result":"created"}`)
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL, &testLogger{t: t})
	indexer.Record(context.Background(), Event{
		RequestID: "req-2",
		Workflow:  "generate_final_brief",
		Stage:     "workflow",
		Outcome:   "success",
	})

	require.NotNil(t, gotBody)
	assert.NotEmpty(t, gotBody["timestamp"])
}

func TestRecord_SwallowsIndexFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	log := &testLogger{t: t}
	indexer := newTestIndexer(t, server.URL, log)

	// Must not panic or propagate the failure
	indexer.Record(context.Background(), Event{RequestID: "req-3", Stage: "enhance", Outcome: "error"})

	assert.Equal(t, int32(1), atomic.LoadInt32(&log.warns))
}

func TestRecord_SwallowsConnectionFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	log := &testLogger{t: t}
	indexer := newTestIndexer(t, server.URL, log)

	indexer.Record(context.Background(), Event{RequestID: "req-4"})

	assert.Equal(t, int32(1), atomic.LoadInt32(&log.warns))
}

func TestNop_Record(t *testing.T) {
	var recorder Recorder = Nop{}
	recorder.Record(context.Background(), Event{RequestID: "ignored"})
}
