// Package queue carries background work between the web, worker and
// beat roles. Tasks travel as JSON envelopes through a broker; their
// outcomes land in a result backend keyed by task ID.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// DefaultQueue is the queue name used when the caller does not pick one.
const DefaultQueue = "default"

// Task is the envelope enqueued on a broker. Payload is an opaque JSON
// object interpreted by the task's handler.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
	// MaxRetries zero means the worker's configured default applies.
	MaxRetries int `json:"max_retries"`
}

// NewTask builds a task envelope with a fresh ID. An empty queue name
// falls back to DefaultQueue. The payload, when present, must be a JSON
// object.
func NewTask(name, queueName string, payload json.RawMessage) (*Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("task name must not be empty")
	}
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		queueName = DefaultQueue
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	return &Task{
		ID:         uuid.NewString(),
		Name:       name,
		Queue:      queueName,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func validatePayload(payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	if !gjson.ValidBytes(payload) {
		return fmt.Errorf("task payload is not valid JSON")
	}
	if !gjson.ParseBytes(payload).IsObject() {
		return fmt.Errorf("task payload must be a JSON object")
	}
	return nil
}

// PayloadField extracts a string field from the payload, empty when
// missing.
func (t *Task) PayloadField(field string) string {
	if len(t.Payload) == 0 {
		return ""
	}
	return gjson.GetBytes(t.Payload, field).String()
}

// PayloadInt extracts an integer field from the payload, reporting
// whether it was present.
func (t *Task) PayloadInt(field string) (int64, bool) {
	if len(t.Payload) == 0 {
		return 0, false
	}
	res := gjson.GetBytes(t.Payload, field)
	if !res.Exists() {
		return 0, false
	}
	return res.Int(), true
}

// Validate checks an envelope received from the wire.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task id must not be empty")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if strings.TrimSpace(t.Queue) == "" {
		return fmt.Errorf("task queue must not be empty")
	}
	return validatePayload(t.Payload)
}
