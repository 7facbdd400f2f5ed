// Package client provides a transport-agnostic interface for the remote
// layout authority and an HTTP/JSON implementation of it.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/layoutsync/internal/model"
)

// LayoutsClient is the interface the synchronizer and CLI use to reach the
// remote authority. Every call that touches user data takes an opaque auth
// header bag which is merged into the request; the client never inspects it.
type LayoutsClient interface {
	// UpsertLayout creates or replaces one layout (POST /layouts).
	UpsertLayout(ctx context.Context, in *model.LayoutInput, auth http.Header) (*model.RemoteLayout, error)

	// UpdateLayout replaces the config of an existing layout (PUT /layouts/{type}).
	UpdateLayout(ctx context.Context, layoutType string, config json.RawMessage, auth http.Header) (*model.RemoteLayout, error)

	// GetLayout fetches one layout (GET /layouts/{type}).
	GetLayout(ctx context.Context, layoutType string, auth http.Header) (*model.RemoteLayout, error)

	// ListLayouts fetches every layout of the principal (GET /layouts).
	ListLayouts(ctx context.Context, auth http.Header) ([]*model.RemoteLayout, error)

	// SyncLayouts upserts a batch (POST /layouts/sync).
	SyncLayouts(ctx context.Context, in []*model.LayoutInput, auth http.Header) (*model.SyncResult, error)

	// DeleteLayout removes one layout (DELETE /layouts/{type}).
	DeleteLayout(ctx context.Context, layoutType string, auth http.Header) error

	// Health reports the server status (GET /health).
	Health(ctx context.Context) (string, error)

	Close() error
}

// BearerAuth returns an auth header bag carrying token, or nil when token is
// empty.
func BearerAuth(token string) http.Header {
	if token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// IsNotFound reports whether err is a 404 from the remote authority.
func IsNotFound(err error) bool {
	return statusIs(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is a 401 or 403 from the remote authority.
func IsUnauthorized(err error) bool {
	return statusIs(err, http.StatusUnauthorized) || statusIs(err, http.StatusForbidden)
}

func statusIs(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
