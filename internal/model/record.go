package model

import (
	"encoding/json"
	"time"
)

// Record is a single key-value entry held by a local store backend.
// UpdatedAt is stamped by the backend on every write; callers never set it.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
