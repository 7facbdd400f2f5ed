package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/layoutsync/internal/config"
	"github.com/alfredjeanlab/layoutsync/internal/ui"
)

var (
	remoteURL  string
	authToken  string
	jsonOutput bool
	verbose    bool
	offline    bool

	cfg      *config.Config
	logger   *slog.Logger
	logLevel = new(slog.LevelVar)
	dev      *device
)

var rootCmd = &cobra.Command{
	Use:           "lsync <command>",
	Short:         "Offline-first layout storage and sync",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(); err != nil {
			return err
		}
		d, err := openDevice(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		dev = d
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dev != nil {
			dev.Close()
		}
	},
}

// setup loads configuration and the logger. Subcommands that do not need a
// local store call it from their own PersistentPreRunE.
func setup() error {
	logLevel.Set(slog.LevelWarn)
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if !ui.ShouldUseColor(os.Stdout) || jsonOutput {
		ui.ForceNoColor()
	}

	c, err := config.Load()
	if err != nil {
		return err
	}
	applyRemoteOverrides(c)
	cfg = c
	return nil
}

// applyRemoteOverrides layers flags over the active remote profile over
// environment configuration.
func applyRemoteOverrides(c *config.Config) {
	if os.Getenv("LAYOUTS_REMOTE_URL") == "" {
		if u := activeRemoteURL(); u != "" {
			c.RemoteURL = u
		}
	}
	if c.AuthToken == "" {
		c.AuthToken = activeRemoteToken()
	}
	if c.NATSURL == "" {
		c.NATSURL = activeRemoteNATSURL()
	}
	if remoteURL != "" {
		c.RemoteURL = remoteURL
	}
	if authToken != "" {
		c.AuthToken = authToken
	}
}

// longRunning raises the log level to info for commands that run until
// interrupted.
func longRunning(cmd *cobra.Command, args []string) {
	if !verbose {
		logLevel.Set(slog.LevelInfo)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote-url", "", "remote authority URL (overrides LAYOUTS_REMOTE_URL and the active remote)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (overrides LAYOUTS_AUTH_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "never contact the remote authority")

	rootCmd.AddGroup(
		&cobra.Group{ID: "layouts", Title: "Layouts:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error: ")+err.Error())
		os.Exit(1)
	}
}
