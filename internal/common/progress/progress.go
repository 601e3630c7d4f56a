// Package progress tracks where a request currently sits in the brief
// pipeline. State lives in Redis under a TTL so dashboards and support
// tooling can inspect in-flight and recently finished requests without
// querying the workflow engine.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotTracked = errors.New("PROGRESS_NOT_TRACKED")

const keyPrefix = "brief:progress:"

// Status values stored in State.Status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// State is the stored progress record for one request.
type State struct {
	RequestID string                 `json:"request_id"`
	Workflow  string                 `json:"workflow"`
	Status    string                 `json:"status"`
	Stage     string                 `json:"stage,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Error     string                 `json:"error,omitempty"`
	StartedAt time.Time              `json:"started_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Sink receives progress transitions. Writes are best effort: a sink
// outage must never fail the workflow reporting through it.
type Sink interface {
	Begin(ctx context.Context, requestID, workflow string)
	Update(ctx context.Context, requestID, stage string, detail map[string]interface{})
	Complete(ctx context.Context, requestID string)
	Fail(ctx context.Context, requestID string, cause error)
}

// Logger interface definition
type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

// Nop discards all progress updates.
type Nop struct{}

func (Nop) Begin(ctx context.Context, requestID, workflow string) {}
func (Nop) Update(ctx context.Context, requestID, stage string, detail map[string]interface{}) {
}
func (Nop) Complete(ctx context.Context, requestID string)        {}
func (Nop) Fail(ctx context.Context, requestID string, cause error) {}

// Tracker stores progress state in Redis.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger Logger
}

var (
	_ Sink = (*Tracker)(nil)
	_ Sink = Nop{}
)

func NewTracker(client *redis.Client, ttl time.Duration, log Logger) *Tracker {
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (t *Tracker) Begin(ctx context.Context, requestID, workflow string) {
	now := time.Now().UTC()
	t.store(ctx, &State{
		RequestID: requestID,
		Workflow:  workflow,
		Status:    StatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	})
}

func (t *Tracker) Update(ctx context.Context, requestID, stage string, detail map[string]interface{}) {
	state := t.load(ctx, requestID)
	if state == nil {
		// Updates may arrive for requests begun elsewhere or already expired
		state = &State{
			RequestID: requestID,
			Status:    StatusRunning,
			StartedAt: time.Now().UTC(),
		}
	}
	state.Stage = stage
	state.Detail = detail
	state.UpdatedAt = time.Now().UTC()
	t.store(ctx, state)
}

func (t *Tracker) Complete(ctx context.Context, requestID string) {
	t.finish(ctx, requestID, StatusCompleted, "")
}

func (t *Tracker) Fail(ctx context.Context, requestID string, cause error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	t.finish(ctx, requestID, StatusFailed, message)
}

// Snapshot returns the tracked state for a request, or ErrNotTracked when
// none exists.
func (t *Tracker) Snapshot(ctx context.Context, requestID string) (*State, error) {
	raw, err := t.client.Get(ctx, keyPrefix+requestID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotTracked
	}
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (t *Tracker) finish(ctx context.Context, requestID, status, message string) {
	state := t.load(ctx, requestID)
	if state == nil {
		state = &State{
			RequestID: requestID,
			StartedAt: time.Now().UTC(),
		}
	}
	state.Status = status
	state.Error = message
	state.UpdatedAt = time.Now().UTC()
	t.store(ctx, state)
}

func (t *Tracker) load(ctx context.Context, requestID string) *State {
	state, err := t.Snapshot(ctx, requestID)
	if err != nil {
		if !errors.Is(err, ErrNotTracked) {
			t.logger.Warn("progress state read failed", map[string]interface{}{
				"requestId": requestID,
				"error":     err.Error(),
			})
		}
		return nil
	}
	return state
}

func (t *Tracker) store(ctx context.Context, state *State) {
	body, err := json.Marshal(state)
	if err != nil {
		t.logger.Warn("progress state marshal failed", map[string]interface{}{
			"requestId": state.RequestID,
			"error":     err.Error(),
		})
		return
	}

	if err := t.client.Set(ctx, keyPrefix+state.RequestID, body, t.ttl).Err(); err != nil {
		t.logger.Warn("progress state write failed", map[string]interface{}{
			"requestId": state.RequestID,
			"error":     err.Error(),
		})
	}
}
