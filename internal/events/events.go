// Package events publishes layout lifecycle notifications on an event bus.
package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/model"
)

// Event topic constants
const (
	// Client side: emitted by the synchronizer on this device.
	TopicLayoutSaved  = "layouts.layout.saved"
	TopicLayoutSynced = "layouts.layout.synced"
	TopicLayoutPulled = "layouts.layout.pulled"

	// Server side: emitted by the remote authority.
	TopicLayoutUpdated = "layouts.layout.updated"
	TopicLayoutDeleted = "layouts.layout.deleted"

	// TopicAll matches every layout topic.
	TopicAll = "layouts.>"
)

// Event types

type LayoutSaved struct {
	Layout *model.Layout `json:"layout"`
}

type LayoutSynced struct {
	LayoutTypes []string  `json:"layout_types"`
	At          time.Time `json:"at"`
}

type LayoutPulled struct {
	LayoutTypes []string  `json:"layout_types"`
	At          time.Time `json:"at"`
}

type LayoutUpdated struct {
	Layout *model.RemoteLayout `json:"layout"`
}

type LayoutDeleted struct {
	UserID     string `json:"user_id"`
	LayoutType string `json:"layout_type"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
