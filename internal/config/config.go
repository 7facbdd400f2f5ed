// Package config loads layoutsync settings from LAYOUTS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Local store
	DataDir     string // LAYOUTS_DATA_DIR (default "~/.local/state/layoutsync")
	DatabaseURL string // LAYOUTS_DATABASE_URL (default "sqlite://<data>/layouts.db")
	FlatPath    string // LAYOUTS_FLAT_PATH (default "<data>/offline.json")
	DisableDB   bool   // LAYOUTS_DISABLE_DB (force the flat backend)

	// Remote authority
	RemoteURL     string        // LAYOUTS_REMOTE_URL (default "http://localhost:8080")
	AuthToken     string        // LAYOUTS_AUTH_TOKEN (optional, empty = local-only)
	RemoteTimeout time.Duration // LAYOUTS_REMOTE_TIMEOUT (default 0 = none)
	NATSURL       string        // LAYOUTS_NATS_URL (optional, empty = no events)

	// Background sync
	SyncInterval  time.Duration // LAYOUTS_SYNC_INTERVAL (default 1m; 0 = disabled)
	ProbeInterval time.Duration // LAYOUTS_PROBE_INTERVAL (default 10s)

	// Reference server
	HTTPAddr          string            // LAYOUTS_HTTP_ADDR (default ":8080")
	ServerDatabaseURL string            // LAYOUTS_SERVER_DATABASE_URL (default "sqlite://<data>/server.db")
	ServerTokens      map[string]string // LAYOUTS_SERVER_TOKENS ("token:principal,..."; empty = auth disabled)

	// Backups
	BackupS3Bucket   string // LAYOUTS_BACKUP_S3_BUCKET (enables S3 when set)
	BackupS3Endpoint string // LAYOUTS_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
	BackupS3Region   string // LAYOUTS_BACKUP_S3_REGION (default "us-east-1")
	BackupS3Key      string // LAYOUTS_BACKUP_S3_KEY (default "layouts/backup.jsonl")
	BackupGitRepo    string // LAYOUTS_BACKUP_GIT_REPO (enables git when set; path to clone)
	BackupGitFile    string // LAYOUTS_BACKUP_GIT_FILE (default "layouts.jsonl")
	BackupGitBranch  string // LAYOUTS_BACKUP_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	dataDir := envOrDefault("LAYOUTS_DATA_DIR", defaultDataDir())

	c := &Config{
		DataDir:           dataDir,
		DatabaseURL:       envOrDefault("LAYOUTS_DATABASE_URL", "sqlite://"+filepath.Join(dataDir, "layouts.db")),
		FlatPath:          envOrDefault("LAYOUTS_FLAT_PATH", filepath.Join(dataDir, "offline.json")),
		RemoteURL:         envOrDefault("LAYOUTS_REMOTE_URL", "http://localhost:8080"),
		AuthToken:         os.Getenv("LAYOUTS_AUTH_TOKEN"),
		NATSURL:           os.Getenv("LAYOUTS_NATS_URL"),
		HTTPAddr:          envOrDefault("LAYOUTS_HTTP_ADDR", ":8080"),
		ServerDatabaseURL: envOrDefault("LAYOUTS_SERVER_DATABASE_URL", "sqlite://"+filepath.Join(dataDir, "server.db")),
		BackupS3Bucket:    os.Getenv("LAYOUTS_BACKUP_S3_BUCKET"),
		BackupS3Endpoint:  os.Getenv("LAYOUTS_BACKUP_S3_ENDPOINT"),
		BackupS3Region:    envOrDefault("LAYOUTS_BACKUP_S3_REGION", "us-east-1"),
		BackupS3Key:       envOrDefault("LAYOUTS_BACKUP_S3_KEY", "layouts/backup.jsonl"),
		BackupGitRepo:     os.Getenv("LAYOUTS_BACKUP_GIT_REPO"),
		BackupGitFile:     envOrDefault("LAYOUTS_BACKUP_GIT_FILE", "layouts.jsonl"),
		BackupGitBranch:   envOrDefault("LAYOUTS_BACKUP_GIT_BRANCH", "main"),
	}

	var err error
	if c.DisableDB, err = envBool("LAYOUTS_DISABLE_DB"); err != nil {
		return nil, err
	}
	if c.RemoteTimeout, err = envDuration("LAYOUTS_REMOTE_TIMEOUT", "0"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = envDuration("LAYOUTS_SYNC_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if c.ProbeInterval, err = envDuration("LAYOUTS_PROBE_INTERVAL", "10s"); err != nil {
		return nil, err
	}
	if c.ServerTokens, err = ParseTokens(os.Getenv("LAYOUTS_SERVER_TOKENS")); err != nil {
		return nil, fmt.Errorf("LAYOUTS_SERVER_TOKENS: %w", err)
	}

	return c, nil
}

// ParseTokens parses "token:principal,token2:principal2" into a map. An
// empty string yields a nil map.
func ParseTokens(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, principal, ok := strings.Cut(pair, ":")
		if !ok || token == "" || principal == "" {
			return nil, fmt.Errorf("invalid entry %q, want token:principal", pair)
		}
		out[token] = principal
	}
	return out, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".layoutsync"
	}
	return filepath.Join(home, ".local", "state", "layoutsync")
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
