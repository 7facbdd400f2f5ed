package main

import (
	"github.com/spf13/cobra"

	layoutsync "github.com/alfredjeanlab/layoutsync/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync in the background until interrupted",
	Long: `Run the sync scheduler: push pending layouts and pull remote changes on
start, every LAYOUTS_SYNC_INTERVAL, and whenever the remote becomes reachable
again. Configured S3 or git backups are written after every pass.`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	PreRun:  longRunning,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []layoutsync.SchedulerOption{
			layoutsync.WithInterval(cfg.SyncInterval),
			layoutsync.WithProbeInterval(cfg.ProbeInterval),
			layoutsync.WithLogger(logger),
		}

		dests, err := backupDestinations(cmd, cfg, cfg.BackupS3Bucket != "", cfg.BackupGitRepo != "")
		if err != nil {
			return err
		}
		if len(dests) > 0 {
			opts = append(opts, layoutsync.WithBackup(dev.local, dests...))
			for _, d := range dests {
				logger.Info("backup destination enabled", "destination", d.Name())
			}
		}

		scheduler := layoutsync.NewScheduler(dev.sync, dev.online, dev.auth, opts...)
		scheduler.Start()
		logger.Info("sync daemon started",
			"backend", dev.local.Backend(),
			"remote", dev.remote.BaseURL(),
			"interval", cfg.SyncInterval,
		)

		<-cmd.Context().Done()
		logger.Info("shutting down")
		scheduler.Stop()
		return nil
	},
}
