package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alfredjeanlab/layoutsync/internal/client"
	"github.com/alfredjeanlab/layoutsync/internal/config"
	"github.com/alfredjeanlab/layoutsync/internal/connectivity"
	"github.com/alfredjeanlab/layoutsync/internal/events"
	"github.com/alfredjeanlab/layoutsync/internal/layout"
	"github.com/alfredjeanlab/layoutsync/internal/store"
	"github.com/alfredjeanlab/layoutsync/internal/store/flatstore"
	"github.com/alfredjeanlab/layoutsync/internal/store/sqlstore"
)

// probeTTL bounds how long one health check answers Online.
const probeTTL = 5 * time.Second

// device is the wiring for one local installation: its store, the remote
// client, and the synchronizer over both.
type device struct {
	local     *store.Local
	remote    *client.HTTPClient
	online    connectivity.Checker
	publisher events.Publisher
	sync      *layout.Synchronizer
	auth      http.Header
}

func openDevice(ctx context.Context, c *config.Config, logger *slog.Logger) (*device, error) {
	local := store.NewLocal(structuredOpener(c), flatOpener(c), logger)
	if err := local.Initialize(ctx); err != nil {
		return nil, err
	}

	publisher, err := events.Connect(c.NATSURL)
	if err != nil {
		logger.Warn("events disabled", "nats_url", c.NATSURL, "err", err)
		publisher = &events.NoopPublisher{}
	}

	remote := client.NewHTTPClient(c.RemoteURL, client.WithTimeout(c.RemoteTimeout))

	var online connectivity.Checker
	if offline {
		online = connectivity.NewStatic(false)
	} else {
		online = connectivity.NewProbe(remote, probeTTL, connectivity.WithLogger(logger))
	}

	d := &device{
		local:     local,
		remote:    remote,
		online:    online,
		publisher: publisher,
		auth:      client.BearerAuth(c.AuthToken),
	}
	d.sync = layout.New(local, remote, online,
		layout.WithLogger(logger),
		layout.WithPublisher(publisher),
	)
	return d, nil
}

func (d *device) Close() {
	d.publisher.Close()
	d.remote.Close()
	d.local.Close()
}

func structuredOpener(c *config.Config) store.Opener {
	if c.DisableDB {
		return nil
	}
	return func(ctx context.Context) (store.Backend, error) {
		s, err := sqlstore.Open(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func flatOpener(c *config.Config) store.Opener {
	return func(context.Context) (store.Backend, error) {
		s, err := flatstore.Open(c.FlatPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
