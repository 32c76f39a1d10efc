package config

import (
	"context"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// denylistFile is the subset of the YAML config file WatchDenylist cares
// about. Re-parsing only this shape means an edit to an unrelated config
// field never triggers a reload.
type denylistFile struct {
	SourceDenylist []string `yaml:"source_denylist"`
}

// WatchDenylist watches yamlPath for writes and atomically swaps c's
// SourceDenylist when the file's source_denylist key changes, so an
// operator can add a host to the denylist without restarting the server.
// It runs until ctx is canceled. A missing or unreadable file is logged and
// skipped rather than treated as fatal, since denylist edits are optional.
func (c *Config) WatchDenylist(ctx context.Context, yamlPath string, logger *slog.Logger) error {
	if yamlPath == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(yamlPath); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			c.reloadDenylist(yamlPath, logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("denylist watch error", slog.String("error", err.Error()))
		}
	}
}

func (c *Config) reloadDenylist(yamlPath string, logger *slog.Logger) {
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		logger.Warn("denylist reload: read failed", slog.String("error", err.Error()))
		return
	}
	var f denylistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		logger.Warn("denylist reload: parse failed", slog.String("error", err.Error()))
		return
	}

	c.denylistMu.Lock()
	c.SourceDenylist = f.SourceDenylist
	c.denylistMu.Unlock()
	logger.Info("source denylist reloaded", slog.Int("hosts", len(f.SourceDenylist)))
}

// Denylist returns a snapshot of the current denylist, safe to call while
// WatchDenylist is running concurrently.
func (c *Config) Denylist() []string {
	c.denylistMu.Lock()
	defer c.denylistMu.Unlock()
	out := make([]string, len(c.SourceDenylist))
	copy(out, c.SourceDenylist)
	return out
}
