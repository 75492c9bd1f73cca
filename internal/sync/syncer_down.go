package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/skiffsync/skiff/internal/remote"
	"github.com/skiffsync/skiff/internal/utils"
)

type downAction int

const (
	downSkip downAction = iota
	downFetch
	downConflictSkip
)

// remotePrefix is the key prefix shared by all of this root's objects.
func (s *Syncer) remotePrefix() string {
	return strings.TrimSuffix(s.root.RemotePath, "/") + "/"
}

// RefreshRemoteIndex snapshots the remote listing. SyncFile consults
// the snapshot to detect conflicting remote edits on bidirectional
// roots, so it should be refreshed ahead of full sync passes.
func (s *Syncer) RefreshRemoteIndex(ctx context.Context) error {
	prefix := s.remotePrefix()
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to refresh remote index: %w", err)
	}

	index := make(map[string]*remote.ObjectInfo, len(objects))
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			// folder markers
			continue
		}
		index[rel] = obj
	}

	s.remoteIndex = index
	slog.Debug("remote index refreshed", "root", s.root.LocalPath, "objects", len(index))
	return nil
}

// SyncDown pulls remote objects into the local root. No-op on
// upload-only roots. Like SyncAll, per-file failures are collected
// without aborting the pass.
func (s *Syncer) SyncDown(ctx context.Context) (*SyncResult, error) {
	started := time.Now()
	result := &SyncResult{}

	if s.root.Direction == DirectionUp {
		return result, nil
	}

	prefix := s.remotePrefix()
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return result, fmt.Errorf("failed to list remote %s: %w", prefix, err)
	}

	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		if s.matcher.Match(rel) {
			continue
		}

		switch s.downDecision(rel, obj) {
		case downFetch:
			if _, err := s.downloadObject(ctx, rel, obj); err != nil {
				slog.Error("sync failed", "path", rel, "error", err)
				result.Failed = append(result.Failed, rel)
				continue
			}
			result.Synced = append(result.Synced, rel)
		case downConflictSkip:
			slog.Warn("sync conflict unresolved", "path", rel, "strategy", s.strategy)
			result.Skipped = append(result.Skipped, rel)
		default:
			result.Skipped = append(result.Skipped, rel)
		}
	}

	slog.Info("sync down done",
		"root", s.root.LocalPath,
		"synced", len(result.Synced),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
		"took", time.Since(started).Round(time.Millisecond))
	return result, nil
}

// downDecision decides what a pull pass should do with one object.
func (s *Syncer) downDecision(rel string, obj *remote.ObjectInfo) downAction {
	localPath := filepath.Join(s.root.LocalPath, filepath.FromSlash(rel))

	info, err := os.Lstat(localPath)
	if err != nil {
		if s.root.Direction == DirectionDown {
			// remote is authoritative on download-only roots, a
			// missing local file gets restored
			return downFetch
		}
		if s.deleted.Contains(rel) {
			// deleted locally this session, do not resurrect
			return downSkip
		}
		if _, tracked := s.state.Get(rel); tracked {
			// record still present means the deletion is not yet
			// reconciled, leave it to HandleDelete
			return downSkip
		}
		return downFetch
	}
	if !info.Mode().IsRegular() {
		return downSkip
	}

	rec, tracked := s.state.Get(rel)
	if !tracked {
		// both sides have the file but it was never synced
		if s.root.Direction == DirectionDown {
			if info.Size() == obj.Size {
				return downSkip
			}
			return downFetch
		}
		return s.resolveDown(rel, info, obj)
	}

	remoteChanged := obj.Size != rec.Size || obj.LastModified.After(rec.SyncedAt)
	if !remoteChanged {
		return downSkip
	}
	if !s.state.NeedsSync(rel, info.Size(), info.ModTime()) {
		// only the remote moved, safe to fetch
		return downFetch
	}
	if s.root.Direction == DirectionDown {
		// remote is authoritative on download-only roots
		return downFetch
	}
	return s.resolveDown(rel, info, obj)
}

func (s *Syncer) resolveDown(rel string, info os.FileInfo, obj *remote.ObjectInfo) downAction {
	conflict := FileConflict{
		RelPath:       rel,
		LocalSize:     info.Size(),
		LocalModTime:  info.ModTime(),
		RemoteSize:    obj.Size,
		RemoteModTime: obj.LastModified,
	}
	switch winner := Resolve(conflict, s.strategy); winner {
	case WinnerRemote:
		slog.Info("sync conflict", "path", rel, "winner", winner)
		return downFetch
	case WinnerLocal:
		// the push pass will carry it up
		slog.Info("sync conflict", "path", rel, "winner", winner)
		return downSkip
	default:
		return downConflictSkip
	}
}

// downloadObject streams one object into the root. The write is atomic
// via a temp file plus rename, and the local mtime is aligned with the
// remote's so the recorded fingerprint matches the file on disk.
func (s *Syncer) downloadObject(ctx context.Context, rel string, obj *remote.ObjectInfo) (syncOutcome, error) {
	localPath := filepath.Join(s.root.LocalPath, filepath.FromSlash(rel))
	if err := utils.EnsureParent(localPath); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to ensure parent of %s: %w", localPath, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(localPath), filepath.Base(localPath)+tempFilePat)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	var hasher hash.Hash
	var sink io.Writer = tempFile
	if s.computeHashes {
		hasher = md5.New()
		sink = io.MultiWriter(tempFile, hasher)
	}

	key := s.RemotePath(rel)
	if err := s.store.Download(ctx, key, sink, s.progress(key)); err != nil {
		return outcomeSkipped, &TransferError{Key: key, Err: err}
	}

	if err := tempFile.Sync(); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to close temp file: %w", err)
	}

	if s.onLocalWrite != nil {
		s.onLocalWrite(localPath)
	}
	if err := os.Rename(tempPath, localPath); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to rename temp file to %s: %w", localPath, err)
	}
	success = true

	if !obj.LastModified.IsZero() {
		if err := os.Chtimes(localPath, time.Now(), obj.LastModified); err != nil {
			slog.Debug("failed to set mtime", "path", localPath, "error", err)
		}
	}

	size := obj.Size
	modTime := obj.LastModified
	if info, err := os.Lstat(localPath); err == nil {
		// record what actually landed on disk
		size = info.Size()
		modTime = info.ModTime()
	}

	var hashStr string
	if hasher != nil {
		hashStr = hex.EncodeToString(hasher.Sum(nil))
	}

	s.state.RecordSync(rel, size, modTime, hashStr, s.root.Direction)
	if err := s.state.Save(); err != nil {
		return outcomeSkipped, err
	}
	s.deleted.Remove(rel)

	slog.Info("synced", "op", "down", "path", rel, "size", humanize.IBytes(uint64(size)))
	return outcomeSynced, nil
}
