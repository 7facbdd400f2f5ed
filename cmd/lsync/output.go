package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alfredjeanlab/layoutsync/internal/model"
	"github.com/alfredjeanlab/layoutsync/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printLayout(w io.Writer, l *model.Layout) {
	fmt.Fprintf(w, "Type:       %s\n", ui.RenderAccent(l.Type))
	fmt.Fprintf(w, "State:      %s\n", ui.SyncBadge(l.Synced))
	fmt.Fprintf(w, "Updated At: %s\n", ui.Timestamp(l.UpdatedAt))

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, l.Config, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(l.Config)
	}
	fmt.Fprintf(w, "Config:\n%s\n", pretty.String())
}

func printLayoutList(w io.Writer, layouts []*model.Layout) {
	if len(layouts) == 0 {
		fmt.Fprintln(w, "no layouts")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTATE\tUPDATED")
	pending := 0
	for _, l := range layouts {
		if !l.Synced {
			pending++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Type, ui.SyncBadge(l.Synced), ui.Timestamp(l.UpdatedAt))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d layouts (%d pending)\n", len(layouts), pending)
}
