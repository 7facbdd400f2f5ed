package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/layoutsync/internal/events"
	"github.com/alfredjeanlab/layoutsync/internal/ui"
)

// pullDebounce coalesces bursts of remote updates into one pull.
const pullDebounce = 200 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream layout events and pull remote changes as they happen",
	Long: `Subscribe to layout events on NATS and print them. With --pull, remote
updates trigger a debounced pull into the local store, and a NATS reconnect
triggers an immediate one.`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NATSURL == "" {
			return errors.New("LAYOUTS_NATS_URL is not set and the active remote has no NATS URL")
		}
		autoPull, _ := cmd.Flags().GetBool("pull")
		return watchNATS(cmd.Context(), cmd.OutOrStdout(), cfg.NATSURL, autoPull)
	},
}

func watchNATS(ctx context.Context, out io.Writer, natsURL string, autoPull bool) error {
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	debounce := time.NewTimer(0)
	debounce.Stop()
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, describeEvent(msg))
			if autoPull && isRemoteChange(msg.Topic) {
				debounce.Reset(pullDebounce)
			}
		case <-reconnectCh:
			if autoPull {
				debounce.Reset(0)
			}
		case <-debounce.C:
			n, err := dev.sync.Pull(ctx, dev.auth)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if n > 0 {
				fmt.Fprintf(out, "%s %d layouts updated from remote\n", ui.RenderMuted("pull:"), n)
			}
		}
	}
}

func isRemoteChange(topic string) bool {
	return topic == events.TopicLayoutUpdated || topic == events.TopicLayoutDeleted
}

// describeEvent renders one bus message as a single line.
func describeEvent(msg events.Message) string {
	var types []string
	switch msg.Topic {
	case events.TopicLayoutSaved:
		var e events.LayoutSaved
		if json.Unmarshal(msg.Data, &e) == nil && e.Layout != nil {
			types = []string{e.Layout.Type}
		}
	case events.TopicLayoutSynced, events.TopicLayoutPulled:
		var e events.LayoutSynced
		if json.Unmarshal(msg.Data, &e) == nil {
			types = e.LayoutTypes
		}
	case events.TopicLayoutUpdated:
		var e events.LayoutUpdated
		if json.Unmarshal(msg.Data, &e) == nil && e.Layout != nil {
			types = []string{e.Layout.Type}
		}
	case events.TopicLayoutDeleted:
		var e events.LayoutDeleted
		if json.Unmarshal(msg.Data, &e) == nil {
			types = []string{e.LayoutType}
		}
	}
	topic := strings.TrimPrefix(msg.Topic, "layouts.layout.")
	if len(types) == 0 {
		return ui.RenderAccent(topic)
	}
	return ui.RenderAccent(topic) + " " + strings.Join(types, ", ")
}

func init() {
	watchCmd.Flags().Bool("pull", false, "pull into the local store when remote layouts change")
}
