package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/layoutsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Push every pending layout in one batch",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		before, err := dev.sync.Pending(ctx)
		if err != nil {
			return err
		}
		n, err := dev.sync.SyncPending(ctx, dev.auth)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]int{"pending": len(before), "synced": n})
		}
		switch {
		case len(before) == 0:
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to sync")
		case n == 0:
			fmt.Fprintf(cmd.OutOrStdout(), "%d layouts still pending (remote unreachable or rejected the batch)\n", len(before))
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d of %d pending layouts\n", n, len(before))
		}
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:     "pull",
	Short:   "Fetch remote layouts and keep the newer copy of each",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := dev.sync.Pull(cmd.Context(), dev.auth)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]int{"updated": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d layouts updated from remote\n", n)
		return nil
	},
}

type statusReport struct {
	Backend   string `json:"backend"`
	RemoteURL string `json:"remote_url"`
	Online    bool   `json:"online"`
	Auth      bool   `json:"auth"`
	Layouts   int    `json:"layouts"`
	Pending   int    `json:"pending"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the local backend, connectivity, and pending count",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, err := dev.sync.List(ctx)
		if err != nil {
			return err
		}
		pending, err := dev.sync.Pending(ctx)
		if err != nil {
			return err
		}
		rep := statusReport{
			Backend:   dev.local.Backend(),
			RemoteURL: dev.remote.BaseURL(),
			Online:    dev.online.Online(ctx),
			Auth:      dev.auth != nil,
			Layouts:   len(all),
			Pending:   len(pending),
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rep)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "backend:\t%s\n", rep.Backend)
		fmt.Fprintf(w, "remote:\t%s %s\n", rep.RemoteURL, ui.OnlineBadge(rep.Online))
		if !rep.Auth {
			fmt.Fprintf(w, "auth:\t%s\n", ui.RenderMuted("none (local only)"))
		}
		fmt.Fprintf(w, "layouts:\t%d\n", rep.Layouts)
		fmt.Fprintf(w, "pending:\t%d\n", rep.Pending)
		return w.Flush()
	},
}
