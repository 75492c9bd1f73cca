package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/skiffsync/skiff/internal/queue"
	"github.com/skiffsync/skiff/internal/remote"
	"github.com/skiffsync/skiff/internal/utils"
)

const (
	hashCacheSize = 4096
	hashCacheTTL  = time.Hour
)

// ProgressFactory builds a progress sink for one transfer.
type ProgressFactory func(key string) remote.Progress

// SyncResult lists per-file outcomes of a whole-tree pass, keyed by
// relative path.
type SyncResult struct {
	Synced  []string
	Failed  []string
	Skipped []string
}

// Total returns the number of files a pass made a decision for.
func (r *SyncResult) Total() int {
	return len(r.Synced) + len(r.Failed) + len(r.Skipped)
}

type syncOutcome int

const (
	outcomeSkipped syncOutcome = iota
	outcomeSynced
)

// Syncer orchestrates sync for one watch root: it walks the tree,
// applies ignore rules, consults state to decide transfer necessity,
// streams transfers through the remote store, and keeps state current.
//
// A Syncer is owned by a single goroutine. Events and walks are
// processed strictly sequentially, the state store is never shared.
type Syncer struct {
	root     WatchRoot
	store    remote.Store
	state    *StateStore
	matcher  *IgnoreMatcher
	strategy Strategy

	progressFor  ProgressFactory
	onLocalWrite func(path string)

	computeHashes bool
	hashes        *expirable.LRU[string, string]

	// snapshot of the remote listing, used for conflict checks on
	// bidirectional roots; refreshed via RefreshRemoteIndex
	remoteIndex map[string]*remote.ObjectInfo

	// paths deleted locally this session. Deletions never propagate to
	// the remote, this only stops pull passes from resurrecting them.
	deleted mapset.Set[string]
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithStrategy sets the conflict resolution strategy.
func WithStrategy(strategy Strategy) SyncerOption {
	return func(s *Syncer) { s.strategy = strategy }
}

// WithComputeHashes enables content hashing of uploaded files. Hashes
// are memoized per (path, size, mtime) so unchanged files never get
// re-read.
func WithComputeHashes(enabled bool) SyncerOption {
	return func(s *Syncer) { s.computeHashes = enabled }
}

// WithProgressFactory sets the per-transfer progress sink factory.
func WithProgressFactory(factory ProgressFactory) SyncerOption {
	return func(s *Syncer) { s.progressFor = factory }
}

// WithLocalWriteHook registers a callback invoked right before the
// syncer writes a file inside the root, so watchers can suppress the
// echo of the engine's own writes.
func WithLocalWriteHook(hook func(path string)) SyncerOption {
	return func(s *Syncer) { s.onLocalWrite = hook }
}

// NewSyncer builds a Syncer for root. The root's ignore file is read
// once here; state must already be open.
func NewSyncer(root WatchRoot, store remote.Store, state *StateStore, opts ...SyncerOption) (*Syncer, error) {
	filePatterns, err := LoadIgnoreFile(root.LocalPath)
	if err != nil {
		return nil, err
	}
	patterns := slices.Concat(DefaultIgnorePatterns, root.IgnorePatterns, filePatterns)

	s := &Syncer{
		root:     root,
		store:    store,
		state:    state,
		matcher:  NewIgnoreMatcher(patterns...),
		strategy: StrategyNewest,
		hashes:   expirable.NewLRU[string, string](hashCacheSize, nil, hashCacheTTL),
		deleted:  mapset.NewThreadUnsafeSet[string](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Syncer) Root() WatchRoot {
	return s.root
}

func (s *Syncer) State() *StateStore {
	return s.state
}

func (s *Syncer) Matcher() *IgnoreMatcher {
	return s.matcher
}

// RelPath converts an absolute path to the root-relative, slash
// separated form used as the state key. Returns ErrNotInRoot for paths
// outside the root.
func (s *Syncer) RelPath(path string) (string, error) {
	rel, err := filepath.Rel(s.root.LocalPath, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotInRoot, path)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrNotInRoot, path)
	}
	return rel, nil
}

// RemotePath maps a relative path to its remote object key.
func (s *Syncer) RemotePath(relPath string) string {
	return strings.TrimSuffix(s.root.RemotePath, "/") + "/" + relPath
}

// SyncFile syncs a single local file. No-op when the path is ignored,
// not a regular file, or already up to date. Transfer failures leave
// state untouched so the file stays due for sync on the next attempt.
func (s *Syncer) SyncFile(ctx context.Context, path string) error {
	_, err := s.syncFile(ctx, path)
	return err
}

func (s *Syncer) syncFile(ctx context.Context, path string) (syncOutcome, error) {
	rel, err := s.RelPath(path)
	if err != nil {
		return outcomeSkipped, err
	}

	if s.matcher.Match(rel) {
		slog.Debug("sync skip ignored", "path", rel)
		return outcomeSkipped, nil
	}

	if s.root.Direction == DirectionDown {
		// download-only roots never push local changes
		slog.Debug("sync skip down-only root", "path", rel)
		return outcomeSkipped, nil
	}

	info, err := os.Lstat(path)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		slog.Debug("sync skip non-regular", "path", rel)
		return outcomeSkipped, nil
	}

	size := info.Size()
	modTime := info.ModTime()
	if modTime.IsZero() {
		modTime = time.Now()
	}

	if !s.state.NeedsSync(rel, size, modTime) {
		slog.Debug("sync skip up to date", "path", rel)
		return outcomeSkipped, nil
	}

	// on bidirectional roots a locally-changed file may also have
	// changed remotely since the last sync
	if s.root.Direction == DirectionBoth {
		if obj, ok := s.remoteIndex[rel]; ok && s.remoteChanged(rel, obj) {
			conflict := FileConflict{
				RelPath:       rel,
				LocalSize:     size,
				LocalModTime:  modTime,
				RemoteSize:    obj.Size,
				RemoteModTime: obj.LastModified,
			}
			switch winner := Resolve(conflict, s.strategy); winner {
			case WinnerRemote:
				slog.Info("sync conflict", "path", rel, "winner", winner)
				return s.downloadObject(ctx, rel, obj)
			case WinnerSkip:
				slog.Warn("sync conflict unresolved", "path", rel, "strategy", s.strategy)
				return outcomeSkipped, nil
			default:
				slog.Info("sync conflict", "path", rel, "winner", winner)
			}
		}
	}

	return s.uploadFile(ctx, path, rel, size, modTime)
}

// remoteChanged reports whether obj differs from what was last synced.
// With no record at all, both sides having the file counts as changed.
func (s *Syncer) remoteChanged(rel string, obj *remote.ObjectInfo) bool {
	rec, ok := s.state.Get(rel)
	if !ok {
		return true
	}
	return obj.Size != rec.Size || obj.LastModified.After(rec.SyncedAt)
}

func (s *Syncer) uploadFile(ctx context.Context, path, rel string, size int64, modTime time.Time) (syncOutcome, error) {
	file, err := os.Open(path)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	key := s.RemotePath(rel)
	if err := s.store.Upload(ctx, key, file, size, s.progress(key)); err != nil {
		return outcomeSkipped, &TransferError{Key: key, Err: err}
	}

	s.state.RecordSync(rel, size, modTime, s.fileHash(path, rel, size, modTime), s.root.Direction)
	if err := s.state.Save(); err != nil {
		return outcomeSkipped, err
	}
	s.deleted.Remove(rel)

	slog.Info("synced", "op", "up", "path", rel, "size", humanize.IBytes(uint64(size)))
	return outcomeSynced, nil
}

// SyncAll walks the whole tree and syncs every file that needs it.
// The walk is iterative with an explicit queue, so arbitrarily deep
// trees cannot exhaust the stack. Per-file failures are logged and
// collected without aborting the walk.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncResult, error) {
	started := time.Now()
	result := &SyncResult{}

	dirs := queue.New(s.root.LocalPath)
	for dirs.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		dir, _ := dirs.Pop()

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == s.root.LocalPath {
				return result, fmt.Errorf("failed to read root %s: %w", dir, err)
			}
			slog.Warn("sync walk skip dir", "dir", dir, "error", err)
			result.Failed = append(result.Failed, s.mustRel(dir))
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			rel := s.mustRel(path)

			if entry.IsDir() {
				if s.matcher.Match(rel) {
					slog.Debug("sync walk pruned", "dir", rel)
					continue
				}
				dirs.Push(path)
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			if s.matcher.Match(rel) {
				continue
			}

			outcome, err := s.syncFile(ctx, path)
			switch {
			case err != nil:
				slog.Error("sync failed", "path", rel, "error", err)
				result.Failed = append(result.Failed, rel)
			case outcome == outcomeSynced:
				result.Synced = append(result.Synced, rel)
			default:
				result.Skipped = append(result.Skipped, rel)
			}
		}
	}

	slog.Info("sync all done",
		"root", s.root.LocalPath,
		"synced", len(result.Synced),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
		"took", time.Since(started).Round(time.Millisecond))
	return result, nil
}

// mustRel is RelPath for paths produced by our own walk, which are
// inside the root by construction.
func (s *Syncer) mustRel(path string) string {
	rel, err := s.RelPath(path)
	if err != nil {
		return path
	}
	return rel
}

// HandleDelete drops the state record for a locally deleted file. The
// remote object is deliberately left in place, deletions do not
// propagate.
func (s *Syncer) HandleDelete(ctx context.Context, path string) error {
	rel, err := s.RelPath(path)
	if err != nil {
		return err
	}
	s.deleted.Add(rel)
	return s.removeRecord(rel)
}

func (s *Syncer) removeRecord(rel string) error {
	if _, ok := s.state.Get(rel); !ok {
		return nil
	}
	s.state.RemoveFile(rel)
	if err := s.state.Save(); err != nil {
		return err
	}
	slog.Info("synced", "op", "delete", "path", rel)
	return nil
}

// ReconcileDeletes drops records for files that vanished while the
// engine was not running. Returns the relative paths reconciled.
func (s *Syncer) ReconcileDeletes(ctx context.Context) ([]string, error) {
	tracked := s.state.Paths()
	if tracked.Cardinality() == 0 {
		return nil, nil
	}

	present, err := s.walkRelSet(ctx)
	if err != nil {
		// an aborted walk must not be read as mass deletion
		return nil, err
	}
	removed := tracked.Difference(present)

	var reconciled []string
	for rel := range removed.Iter() {
		// tombstone so a pull pass in this session does not bring
		// the file back
		s.deleted.Add(rel)
		if err := s.removeRecord(rel); err != nil {
			return reconciled, err
		}
		reconciled = append(reconciled, rel)
	}

	if len(reconciled) > 0 {
		slog.Info("reconciled deletions", "root", s.root.LocalPath, "count", len(reconciled))
	}
	return reconciled, nil
}

// walkRelSet collects the relative paths of every regular file under
// the root, ignore rules not applied.
func (s *Syncer) walkRelSet(ctx context.Context) (mapset.Set[string], error) {
	present := mapset.NewThreadUnsafeSet[string]()

	dirs := queue.New(s.root.LocalPath)
	for dirs.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir, _ := dirs.Pop()

		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Warn("reconcile walk skip dir", "dir", dir, "error", err)
			continue
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				dirs.Push(path)
				continue
			}
			if entry.Type().IsRegular() {
				present.Add(s.mustRel(path))
			}
		}
	}
	return present, nil
}

func (s *Syncer) progress(key string) remote.Progress {
	if s.progressFor == nil {
		return remote.NopProgress{}
	}
	return s.progressFor(key)
}

// fileHash returns the memoized content hash for the file, or "" when
// hashing is disabled or fails. Hash failures never fail a sync.
func (s *Syncer) fileHash(path, rel string, size int64, modTime time.Time) string {
	if !s.computeHashes {
		return ""
	}

	cacheKey := fmt.Sprintf("%s|%d|%d", rel, size, modTime.UnixNano())
	if hash, ok := s.hashes.Get(cacheKey); ok {
		return hash
	}

	hash, err := utils.FileHash(path)
	if err != nil {
		slog.Warn("failed to hash file", "path", rel, "error", err)
		return ""
	}
	s.hashes.Add(cacheKey, hash)
	return hash
}
