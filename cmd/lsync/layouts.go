package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/layoutsync/internal/layout"
	"github.com/alfredjeanlab/layoutsync/internal/model"
)

var saveCmd = &cobra.Command{
	Use:   "save <type> [<config-json> | -]",
	Short: "Save a layout locally and push it when online",
	Long: `Save a layout configuration. The config is a JSON object given inline,
read from --file, or read from stdin when "-" or omitted.`,
	GroupID: "layouts",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		localOnly, _ := cmd.Flags().GetBool("local")
		file, _ := cmd.Flags().GetString("file")

		config, err := readConfigArg(cmd.InOrStdin(), args[1:], file)
		if err != nil {
			return err
		}

		var l *model.Layout
		if localOnly {
			l, err = dev.sync.SaveLocal(cmd.Context(), args[0], config)
		} else {
			l, err = dev.sync.Save(cmd.Context(), args[0], config, dev.auth)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), l)
		}
		printLayout(cmd.OutOrStdout(), l)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <type>",
	Short:   "Show the freshest known copy of a layout",
	GroupID: "layouts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		localOnly, _ := cmd.Flags().GetBool("local")

		var (
			l   *model.Layout
			err error
		)
		if localOnly {
			l, err = dev.sync.ReadLocal(cmd.Context(), args[0])
		} else {
			l, err = dev.sync.Read(cmd.Context(), args[0], dev.auth)
		}
		if errors.Is(err, layout.ErrNotFound) {
			return fmt.Errorf("layout %q not found", args[0])
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), l)
		}
		printLayout(cmd.OutOrStdout(), l)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List local layouts",
	GroupID: "layouts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pendingOnly, _ := cmd.Flags().GetBool("pending")

		var (
			layouts []*model.Layout
			err     error
		)
		if pendingOnly {
			layouts, err = dev.sync.Pending(cmd.Context())
		} else {
			layouts, err = dev.sync.List(cmd.Context())
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			if layouts == nil {
				layouts = []*model.Layout{}
			}
			return printJSON(cmd.OutOrStdout(), layouts)
		}
		printLayoutList(cmd.OutOrStdout(), layouts)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <type>",
	Short:   "Delete a layout locally and on the remote",
	GroupID: "layouts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dev.sync.Delete(cmd.Context(), args[0], dev.auth); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "layout %q deleted\n", args[0])
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Remove every record from the local store",
	GroupID: "layouts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			pending, err := dev.sync.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if len(pending) > 0 {
				return fmt.Errorf("%d layouts are not synced; run 'lsync sync' first or pass --yes", len(pending))
			}
		}
		if err := dev.local.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "local store cleared")
		return nil
	},
}

// readConfigArg returns the layout config from an inline argument, a file,
// or stdin.
func readConfigArg(stdin io.Reader, args []string, file string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case file != "" && len(args) > 0 && args[0] != "-":
		return nil, errors.New("pass the config inline or with --file, not both")
	case file != "":
		data, err = os.ReadFile(file)
	case len(args) == 0 || args[0] == "-":
		data, err = io.ReadAll(stdin)
	default:
		data = []byte(args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return json.RawMessage(bytes.TrimSpace(data)), nil
}

func init() {
	saveCmd.Flags().Bool("local", false, "save on this device only")
	saveCmd.Flags().StringP("file", "f", "", "read the config from a file")
	showCmd.Flags().Bool("local", false, "read the local copy only")
	listCmd.Flags().Bool("pending", false, "only layouts not yet synced")
	clearCmd.Flags().Bool("yes", false, "clear even when layouts are pending")
}
