package syncqueue

import (
	"encoding/json"
	"time"
)

// ItemKind categorizes a pending mutation.
type ItemKind string

const (
	KindRecordUpdate   ItemKind = "record-update"
	KindSettingsUpdate ItemKind = "settings-update"
)

// Action is the mutation verb replayed remotely.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Item is one durable pending mutation.
type Item struct {
	ID           string          `json:"id"`
	Kind         ItemKind        `json:"kind"`
	Action       Action          `json:"action"`
	Payload      json.RawMessage `json:"payload"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	AttemptCount int             `json:"attempt_count"`
}

// Status is the observability view of the queue.
type Status struct {
	Online    bool   `json:"online"`
	Pending   int    `json:"pending"`
	Abandoned int    `json:"abandoned"`
	Items     []Item `json:"items"`
}
