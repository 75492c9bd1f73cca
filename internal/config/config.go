package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/skiffsync/skiff/internal/remote"
	"github.com/skiffsync/skiff/internal/sync"
	"github.com/skiffsync/skiff/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultHomeDir     = filepath.Join(home, ".skiff")
	DefaultConfigPath  = filepath.Join(home, ".skiff", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".skiff", "logs", "skiff.log")
)

const (
	DefaultDebounceMs       = 500
	DefaultSyncIntervalSecs = 30
)

// RootConfig is one watch root as stored in the config file.
type RootConfig struct {
	LocalPath      string         `json:"local_path"`
	RemotePath     string         `json:"remote_path"`
	Direction      sync.Direction `json:"direction"`
	IgnorePatterns []string       `json:"ignore_patterns,omitempty"`
}

type Config struct {
	Remote           remote.S3Config `json:"remote"`
	Roots            []RootConfig    `json:"roots"`
	Strategy         sync.Strategy   `json:"strategy,omitempty"`
	DebounceMs       int             `json:"debounce_ms,omitempty"`
	SyncIntervalSecs int             `json:"sync_interval_secs,omitempty"`
	ComputeHashes    bool            `json:"compute_hashes,omitempty"`
	// MaxConcurrent is reserved for a future bounded-upload limiter,
	// transfers currently run sequentially per root.
	MaxConcurrent int `json:"max_concurrent,omitempty"`

	Path string `json:"-"`
}

// New returns a config with defaults applied and no roots.
func New() *Config {
	return &Config{
		Strategy:         sync.StrategyNewest,
		DebounceMs:       DefaultDebounceMs,
		SyncIntervalSecs: DefaultSyncIntervalSecs,
		Path:             DefaultConfigPath,
	}
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.Path = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Strategy == "" {
		c.Strategy = sync.StrategyNewest
	}
	if c.DebounceMs <= 0 {
		c.DebounceMs = DefaultDebounceMs
	}
	if c.SyncIntervalSecs <= 0 {
		c.SyncIntervalSecs = DefaultSyncIntervalSecs
	}
	for i := range c.Roots {
		if c.Roots[i].Direction == "" {
			c.Roots[i].Direction = sync.DirectionBoth
		}
	}
}

func (c *Config) Validate() error {
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if !c.Strategy.Valid() {
		return fmt.Errorf("invalid strategy %q", c.Strategy)
	}

	seen := make(map[string]bool, len(c.Roots))
	for _, root := range c.Roots {
		if root.LocalPath == "" {
			return fmt.Errorf("root local_path is required")
		}
		if root.RemotePath == "" {
			return fmt.Errorf("root %s: remote_path is required", root.LocalPath)
		}
		if !root.Direction.Valid() {
			return fmt.Errorf("root %s: invalid direction %q", root.LocalPath, root.Direction)
		}
		if seen[root.LocalPath] {
			return fmt.Errorf("root %s: configured twice", root.LocalPath)
		}
		seen[root.LocalPath] = true
	}
	return nil
}

// Save writes the config to its path with secrets-safe permissions.
func (c *Config) Save() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path, data, 0o600)
}

// AddRoot appends a watch root, rejecting duplicates of local_path.
func (c *Config) AddRoot(root RootConfig) error {
	resolved, err := utils.ResolvePath(root.LocalPath)
	if err != nil {
		return err
	}
	root.LocalPath = resolved

	if !utils.DirExists(root.LocalPath) {
		return fmt.Errorf("root %s: not a directory", root.LocalPath)
	}

	for _, existing := range c.Roots {
		if existing.LocalPath == root.LocalPath {
			return fmt.Errorf("root %s: already configured", root.LocalPath)
		}
	}
	if root.Direction == "" {
		root.Direction = sync.DirectionBoth
	}
	if !root.Direction.Valid() {
		return fmt.Errorf("root %s: invalid direction %q", root.LocalPath, root.Direction)
	}
	if root.RemotePath == "" {
		return fmt.Errorf("root %s: remote_path is required", root.LocalPath)
	}

	c.Roots = append(c.Roots, root)
	return nil
}

// RemoveRoot drops the root with the given local path. Returns false
// when no such root exists.
func (c *Config) RemoveRoot(localPath string) bool {
	resolved, err := utils.ResolvePath(localPath)
	if err != nil {
		resolved = localPath
	}
	for i, root := range c.Roots {
		if root.LocalPath == localPath || root.LocalPath == resolved {
			c.Roots = append(c.Roots[:i], c.Roots[i+1:]...)
			return true
		}
	}
	return false
}

// WatchRoots resolves the configured roots into engine watch roots.
func (c *Config) WatchRoots() ([]sync.WatchRoot, error) {
	roots := make([]sync.WatchRoot, 0, len(c.Roots))
	for _, root := range c.Roots {
		localPath, err := utils.ResolvePath(root.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", root.LocalPath, err)
		}
		roots = append(roots, sync.WatchRoot{
			LocalPath:      localPath,
			RemotePath:     root.RemotePath,
			Direction:      root.Direction,
			IgnorePatterns: root.IgnorePatterns,
		})
	}
	return roots, nil
}

// DebounceWindow returns the watcher coalescing window.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// SyncInterval returns the period of full sync passes in daemon mode.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSecs) * time.Second
}

// HomeDir is where skiff keeps state, logs and the pidfile. It tracks
// the config file's directory so alternate configs stay self-contained.
func (c *Config) HomeDir() string {
	if c.Path == "" {
		return DefaultHomeDir
	}
	return filepath.Dir(c.Path)
}

func (c *Config) StateDir() string {
	return filepath.Join(c.HomeDir(), "state")
}

func (c *Config) LogsDir() string {
	return filepath.Join(c.HomeDir(), "logs")
}

func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogsDir(), "skiff.log")
}

func (c *Config) PidFilePath() string {
	return filepath.Join(c.HomeDir(), "skiff.pid")
}
