// Package ui renders CLI output with optional ANSI colors.
package ui

import (
	"fmt"
	"time"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent  = 74  // blue
	colorMuted   = 245 // medium gray
	colorSynced  = 114 // green
	colorPending = 179 // amber
	colorError   = 203 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderError returns s in the error (red) color.
func RenderError(s string) string { return render(colorError, s) }

// SyncBadge labels a layout as synced or pending.
func SyncBadge(synced bool) string {
	if synced {
		return render(colorSynced, "synced")
	}
	return render(colorPending, "pending")
}

// OnlineBadge labels the remote as reachable or not.
func OnlineBadge(online bool) string {
	if online {
		return render(colorSynced, "online")
	}
	return render(colorPending, "offline")
}

// Timestamp formats t for listings, muted.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return RenderMuted("-")
	}
	return RenderMuted(t.UTC().Format(time.RFC3339))
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
