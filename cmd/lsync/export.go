package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/layoutsync/internal/config"
	layoutsync "github.com/alfredjeanlab/layoutsync/internal/sync"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the local store as JSONL",
	Long: `Export every local record as JSONL to stdout or --output. With --s3 or
--git the export is written to the configured backup destinations instead.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		output, _ := cmd.Flags().GetString("output")
		toS3, _ := cmd.Flags().GetBool("s3")
		toGit, _ := cmd.Flags().GetBool("git")

		if toS3 || toGit {
			dests, err := backupDestinations(cmd, cfg, toS3, toGit)
			if err != nil {
				return err
			}
			if err := layoutsync.Backup(ctx, dev.local, dests, logger); err != nil {
				return err
			}
			for _, d := range dests {
				fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", d.Name())
			}
			return nil
		}

		var buf bytes.Buffer
		if err := layoutsync.ExportJSONL(ctx, dev.local, &buf); err != nil {
			return err
		}
		if output == "" || output == "-" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		return os.WriteFile(output, buf.Bytes(), 0o600)
	},
}

var importCmd = &cobra.Command{
	Use:     "import [<file> | -]",
	Short:   "Load records from a JSONL export into the local store",
	GroupID: "system",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		n, err := layoutsync.ImportJSONL(cmd.Context(), dev.local, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", n)
		return nil
	},
}

// backupDestinations builds the requested destinations from configuration.
func backupDestinations(cmd *cobra.Command, c *config.Config, toS3, toGit bool) ([]layoutsync.Destination, error) {
	var dests []layoutsync.Destination
	if toS3 {
		if c.BackupS3Bucket == "" {
			return nil, errors.New("LAYOUTS_BACKUP_S3_BUCKET is not set")
		}
		d, err := layoutsync.NewS3Destination(cmd.Context(), layoutsync.S3Config{
			Bucket:   c.BackupS3Bucket,
			Key:      c.BackupS3Key,
			Region:   c.BackupS3Region,
			Endpoint: c.BackupS3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		dests = append(dests, d)
	}
	if toGit {
		if c.BackupGitRepo == "" {
			return nil, errors.New("LAYOUTS_BACKUP_GIT_REPO is not set")
		}
		dests = append(dests, layoutsync.NewGitDestination(c.BackupGitRepo, c.BackupGitFile, c.BackupGitBranch))
	}
	return dests, nil
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	exportCmd.Flags().Bool("s3", false, "write to the configured S3 bucket")
	exportCmd.Flags().Bool("git", false, "commit to the configured git clone")
}
