// Package daemon supervises one sync session per configured root and
// ties their lifecycles to a single context.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/remote"
)

var (
	ErrAlreadyRunning = errors.New("daemon already running")
	ErrNoRoots        = errors.New("no roots configured")
)

type Option func(*Daemon)

// WithStore uses the given store instead of building one from the
// config's remote section.
func WithStore(store remote.Store) Option {
	return func(d *Daemon) {
		d.store = store
	}
}

type Daemon struct {
	cfg      *config.Config
	store    remote.Store
	runID    string
	sessions []*session
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		cfg:   cfg,
		runID: uuid.NewString()[:8],
	}
	for _, opt := range opts {
		opt(d)
	}

	roots, err := cfg.WatchRoots()
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}

	if d.store == nil {
		store, err := remote.NewS3Store(ctx, &cfg.Remote)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote store: %w", err)
		}
		d.store = store
	}

	for _, root := range roots {
		sess, err := newSession(cfg, d.store, root)
		if err != nil {
			return nil, fmt.Errorf("failed to create session for %s: %w", root.LocalPath, err)
		}
		d.sessions = append(d.sessions, sess)
	}

	return d, nil
}

func (d *Daemon) RunID() string {
	return d.runID
}

// Start runs every session until ctx is cancelled or one of them fails.
// A failing session takes the daemon down; transfer errors are handled
// inside the sessions and never reach this level.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("daemon start", "run", d.runID, "pid", os.Getpid(), "roots", len(d.sessions))

	pidPath := d.cfg.PidFilePath()
	if err := writePidFile(pidPath); err != nil {
		return err
	}
	defer clearPidFile(pidPath)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, sess := range d.sessions {
		eg.Go(func() error {
			if err := sess.Run(egCtx); err != nil {
				return fmt.Errorf("failed to run session for %s: %w", sess.root.LocalPath, err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "run", d.runID, "error", err)
		return err
	}

	slog.Info("daemon stopped", "run", d.runID)
	return nil
}
