package model

import (
	"encoding/json"
	"strings"
	"time"
)

// LayoutKeyPrefix namespaces layout records inside the local store.
const LayoutKeyPrefix = "layout_"

// Layout is one named UI layout configuration as cached on the device.
//
// UpdatedAt is the logical modification time used for last-writer-wins
// comparisons. It is carried through from the remote authority when a remote
// copy is cached, so it is never the local store's write time.
type Layout struct {
	Type      string          `json:"layout_type"`
	Config    json.RawMessage `json:"layout_config"`
	UpdatedAt time.Time       `json:"updated_at"`
	Synced    bool            `json:"synced"`
}

// Key returns the local store key for this layout.
func (l *Layout) Key() string {
	return LayoutKey(l.Type)
}

// NewerThan reports whether l was modified strictly after other.
// A nil other is always older.
func (l *Layout) NewerThan(other *Layout) bool {
	if other == nil {
		return true
	}
	return l.UpdatedAt.After(other.UpdatedAt)
}

// LayoutKey returns the local store key for a layout type.
func LayoutKey(layoutType string) string {
	return LayoutKeyPrefix + layoutType
}

// LayoutTypeFromKey extracts the layout type from a local store key.
// The second result is false when key is not a layout key.
func LayoutTypeFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, LayoutKeyPrefix) {
		return "", false
	}
	t := strings.TrimPrefix(key, LayoutKeyPrefix)
	if t == "" {
		return "", false
	}
	return t, true
}
