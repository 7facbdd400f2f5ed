package model

import (
	"encoding/json"
	"time"
)

// LayoutInput is the request body for creating or updating a layout on the
// remote authority.
type LayoutInput struct {
	Type   string          `json:"layout_type"`
	Config json.RawMessage `json:"layout_config"`
}

// RemoteLayout is a layout as stored by the remote authority.
type RemoteLayout struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Type      string          `json:"layout_type"`
	Config    json.RawMessage `json:"layout_config"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ToLayout converts a remote copy into a local cache entry marked as synced.
func (r *RemoteLayout) ToLayout() *Layout {
	return &Layout{
		Type:      r.Type,
		Config:    r.Config,
		UpdatedAt: r.UpdatedAt,
		Synced:    true,
	}
}

// SyncResult is the response of a batch sync.
type SyncResult struct {
	Message string   `json:"message"`
	Synced  []string `json:"synced"`
}

// LayoutUpdate is the request body for replacing the config of an existing
// remote layout.
type LayoutUpdate struct {
	Config json.RawMessage `json:"layout_config"`
}

// Input returns the upsert body for this layout.
func (l *Layout) Input() *LayoutInput {
	return &LayoutInput{Type: l.Type, Config: l.Config}
}
