package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/denisbrodbeck/machineid"
	"github.com/gofrs/flock"

	"github.com/skiffsync/skiff/internal/utils"
)

const (
	stateFileExt = ".json"
	tempFilePat  = ".*.skifftmp"
)

// FileRecord is the last known sync result for one file. A record
// exists iff the file was successfully synced at least once.
type FileRecord struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	Hash      string    `json:"hash,omitempty"`
	SyncedAt  time.Time `json:"synced_at"`
	Direction Direction `json:"direction"`
}

// stateFile is the on-disk shape of a root's sync state.
type stateFile struct {
	Root     string                 `json:"root"`
	Device   string                 `json:"device,omitempty"`
	LastSync *time.Time             `json:"last_sync,omitempty"`
	Files    map[string]*FileRecord `json:"files"`
}

// StateStore is the durable per-root record of synced files. It backs
// the needs-sync decision that makes repeated syncs incremental.
//
// State lives in a single JSON file per root, named after the root's
// absolute path so multiple roots never collide. A flock sidecar
// guarantees only one process owns a root's state at a time.
type StateStore struct {
	rootDir   string
	stateDir  string
	statePath string
	flock     *flock.Flock
	device    string

	files    map[string]*FileRecord
	lastSync *time.Time
}

// NewStateStore creates a store for rootDir persisted under stateDir.
// Call Open before use.
func NewStateStore(stateDir, rootDir string) *StateStore {
	statePath := filepath.Join(stateDir, stateFileName(rootDir))
	return &StateStore{
		rootDir:   rootDir,
		stateDir:  stateDir,
		statePath: statePath,
		flock:     flock.New(statePath + ".lock"),
		files:     make(map[string]*FileRecord),
	}
}

// stateFileName derives a per-root file name from its absolute path.
// Separators and drive colons are replaced so the result is flat.
func stateFileName(rootDir string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(rootDir)
	return name + stateFileExt
}

// Open acquires the root's state lock and loads persisted state.
// A missing state file yields an empty store. Returns ErrStateLocked
// when another process holds the root, ErrStateCorrupt when the file
// exists but cannot be parsed.
func (s *StateStore) Open() error {
	if err := utils.EnsureDir(s.stateDir); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", s.stateDir, err)
	}

	locked, err := s.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock state for %s: %w", s.rootDir, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrStateLocked, s.rootDir)
	}

	if id, err := machineid.ProtectedID("skiff"); err == nil {
		s.device = id
	}

	if err := s.load(); err != nil {
		// release the lock, the caller may not retry
		s.flock.Unlock()
		return err
	}
	return nil
}

func (s *StateStore) load() error {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			// never synced, start fresh
			return nil
		}
		return fmt.Errorf("failed to read state file %s: %w", s.statePath, err)
	}

	var file stateFile
	if err := jsonUnmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStateCorrupt, s.statePath, err)
	}

	if file.Files == nil {
		file.Files = make(map[string]*FileRecord)
	}
	for path, rec := range file.Files {
		if rec.Path == "" {
			rec.Path = path
		}
	}

	s.files = file.Files
	s.lastSync = file.LastSync
	slog.Debug("sync state loaded", "root", s.rootDir, "files", len(s.files))
	return nil
}

// Close releases the root's state lock.
func (s *StateStore) Close() error {
	if !s.flock.Locked() {
		return nil
	}
	if err := s.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock state for %s: %w", s.rootDir, err)
	}
	return os.Remove(s.flock.Path())
}

// NeedsSync reports whether relPath requires a transfer: true when no
// record exists or when size or modification time differ from the
// recorded values. Modification time uses exact equality, sub-second
// clock skew between filesystems is not tolerated here.
func (s *StateStore) NeedsSync(relPath string, size int64, modTime time.Time) bool {
	rec, ok := s.files[relPath]
	if !ok {
		return true
	}
	return rec.Size != size || !rec.ModTime.Equal(modTime)
}

// RecordSync inserts or overwrites the record for relPath and bumps
// the store's last-sync time. Call Save to persist.
func (s *StateStore) RecordSync(relPath string, size int64, modTime time.Time, hash string, direction Direction) {
	now := time.Now().UTC()
	s.files[relPath] = &FileRecord{
		Path:      relPath,
		Size:      size,
		ModTime:   modTime,
		Hash:      hash,
		SyncedAt:  now,
		Direction: direction,
	}
	s.lastSync = &now
}

// RemoveFile drops the record for relPath. Call Save to persist.
func (s *StateStore) RemoveFile(relPath string) {
	delete(s.files, relPath)
}

// Get returns the record for relPath, if any.
func (s *StateStore) Get(relPath string) (*FileRecord, bool) {
	rec, ok := s.files[relPath]
	return rec, ok
}

// FileCount returns the number of tracked files.
func (s *StateStore) FileCount() int {
	return len(s.files)
}

// Paths returns the set of tracked relative paths.
func (s *StateStore) Paths() mapset.Set[string] {
	paths := mapset.NewThreadUnsafeSetWithSize[string](len(s.files))
	for path := range s.files {
		paths.Add(path)
	}
	return paths
}

// LastSync returns the time of the last successful sync for this root,
// or the zero time if nothing was ever synced.
func (s *StateStore) LastSync() time.Time {
	if s.lastSync == nil {
		return time.Time{}
	}
	return *s.lastSync
}

// Path returns the on-disk location of the state file.
func (s *StateStore) Path() string {
	return s.statePath
}

// StateSummary is a read-only snapshot of a root's persisted state.
type StateSummary struct {
	Root     string
	Files    int
	LastSync time.Time
}

// ReadStateSummary parses a root's state file without taking its lock,
// for status displays while a daemon owns the root. A missing file
// yields an empty summary.
func ReadStateSummary(stateDir, rootDir string) (*StateSummary, error) {
	summary := &StateSummary{Root: rootDir}

	data, err := os.ReadFile(filepath.Join(stateDir, stateFileName(rootDir)))
	if err != nil {
		if os.IsNotExist(err) {
			return summary, nil
		}
		return nil, err
	}

	var file stateFile
	if err := jsonUnmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStateCorrupt, rootDir, err)
	}

	summary.Files = len(file.Files)
	if file.LastSync != nil {
		summary.LastSync = *file.LastSync
	}
	return summary, nil
}

// Save serializes the full state and atomically replaces the on-disk
// file. The JSON is indented so state diffs stay readable.
func (s *StateStore) Save() error {
	file := stateFile{
		Root:     s.rootDir,
		Device:   s.device,
		LastSync: s.lastSync,
		Files:    s.files,
	}

	data, err := jsonMarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for %s: %w", s.rootDir, err)
	}

	if err := writeFileAtomic(s.statePath, data); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", s.statePath, err)
	}

	slog.Debug("sync state saved", "root", s.rootDir, "files", len(s.files))
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it, then renames over path so readers never see a torn file.
func writeFileAtomic(path string, data []byte) error {
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("failed to ensure parent: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+tempFilePat)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	success = true
	return nil
}
