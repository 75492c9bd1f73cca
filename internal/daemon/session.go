package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/remote"
	"github.com/skiffsync/skiff/internal/sync"
)

// session drives one watch root: a state store, a syncer and, for roots
// that push changes, a filesystem watcher.
type session struct {
	id      string
	cfg     *config.Config
	root    sync.WatchRoot
	state   *sync.StateStore
	syncer  *sync.Syncer
	watcher *sync.Watcher
}

func newSession(cfg *config.Config, store remote.Store, root sync.WatchRoot) (*session, error) {
	state := sync.NewStateStore(cfg.StateDir(), root.LocalPath)

	opts := []sync.SyncerOption{
		sync.WithStrategy(cfg.Strategy),
		sync.WithComputeHashes(cfg.ComputeHashes),
		sync.WithProgressFactory(func(key string) remote.Progress {
			return &remote.LogProgress{Key: key}
		}),
	}

	var watcher *sync.Watcher
	if root.Direction != sync.DirectionDown {
		watcher = sync.NewWatcher(root.LocalPath)
		watcher.SetDebounceWindow(cfg.DebounceWindow())
		// the engine's own writes must not echo back as change events
		opts = append(opts, sync.WithLocalWriteHook(watcher.IgnoreOnce))
	}

	syncer, err := sync.NewSyncer(root, store, state, opts...)
	if err != nil {
		return nil, err
	}
	if watcher != nil {
		watcher.FilterPaths(func(path string) bool {
			rel, relErr := syncer.RelPath(path)
			return relErr == nil && syncer.Matcher().Match(rel)
		})
	}

	return &session{
		id:      uuid.NewString()[:8],
		cfg:     cfg,
		root:    root,
		state:   state,
		syncer:  syncer,
		watcher: watcher,
	}, nil
}

// Run owns the session lifecycle: open state, reconcile offline
// deletions, run a first full pass, then react to watcher events and a
// periodic timer until the context is cancelled.
func (s *session) Run(ctx context.Context) error {
	slog.Info("session start",
		"id", s.id,
		"root", s.root.LocalPath,
		"remote", s.root.RemotePath,
		"direction", s.root.Direction)

	if err := s.state.Open(); err != nil {
		return fmt.Errorf("failed to open sync state: %w", err)
	}
	defer s.state.Close()

	if s.root.Direction != sync.DirectionDown {
		if _, err := s.syncer.ReconcileDeletes(ctx); err != nil {
			return fmt.Errorf("failed to reconcile deletions: %w", err)
		}
	}

	// first pass runs before the watcher so a large backlog does not
	// race its own events
	if err := s.fullPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("initial sync failed", "id", s.id, "error", err)
	}

	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer s.watcher.Stop()
	}

	return s.loop(ctx)
}

func (s *session) loop(ctx context.Context) error {
	// nil for download-only roots, which blocks that select arm forever
	var events <-chan sync.Event
	if s.watcher != nil {
		events = s.watcher.Events()
	}

	// a timer instead of a ticker so a slow pass does not queue extra
	// runs behind itself
	timer := time.NewTimer(s.cfg.SyncInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session stop", "id", s.id, "root", s.root.LocalPath)
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				slog.Info("session stop", "id", s.id, "root", s.root.LocalPath)
				return nil
			}
			s.handleEvent(ctx, ev)

		case <-timer.C:
			if err := s.fullPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("periodic sync failed", "id", s.id, "error", err)
			}
			timer.Reset(s.cfg.SyncInterval())
		}
	}
}

func (s *session) handleEvent(ctx context.Context, ev sync.Event) {
	switch ev.Kind {
	case sync.EventDeleted:
		if err := s.syncer.HandleDelete(ctx, ev.Path); err != nil {
			slog.Error("delete handling failed", "id", s.id, "path", ev.Path, "error", err)
		}
	default:
		if err := s.syncer.SyncFile(ctx, ev.Path); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("sync failed", "id", s.id, "path", ev.Path, "error", err)
		}
	}
}

// fullPass pushes local changes and pulls remote ones, as the root's
// direction allows.
func (s *session) fullPass(ctx context.Context) error {
	if s.root.Direction == sync.DirectionBoth {
		// pushing with a stale index could clobber fresh remote
		// edits, so the whole pass waits for the next interval
		if err := s.syncer.RefreshRemoteIndex(ctx); err != nil {
			return fmt.Errorf("failed to refresh remote index: %w", err)
		}
	}

	if s.root.Direction != sync.DirectionDown {
		if _, err := s.syncer.SyncAll(ctx); err != nil {
			return err
		}
	}
	if s.root.Direction != sync.DirectionUp {
		if _, err := s.syncer.SyncDown(ctx); err != nil {
			return err
		}
	}
	return nil
}
