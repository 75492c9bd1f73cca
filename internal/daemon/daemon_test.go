package daemon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/remote"
	"github.com/skiffsync/skiff/internal/sync"
)

// fakeStore is a minimal in-memory remote.Store for daemon tests.
type fakeStore struct {
	mu      stdsync.Mutex
	objects map[string][]byte
	mtimes  map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string][]byte),
		mtimes:  make(map[string]time.Time),
	}
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeStore) Upload(ctx context.Context, key string, body io.Reader, size int64, progress remote.Progress) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.mtimes[key] = time.Now().UTC()
	return nil
}

func (f *fakeStore) Download(ctx context.Context, key string, sink io.Writer, progress remote.Progress) error {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such object %s", key)
	}
	_, err := io.Copy(sink, bytes.NewReader(data))
	return err
}

func (f *fakeStore) Delete(ctx context.Context, key string, recursive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	delete(f.mtimes, key)
	return nil
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]*remote.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var objects []*remote.ObjectInfo
	for key, data := range f.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, &remote.ObjectInfo{Key: key, Size: int64(len(data)), LastModified: f.mtimes[key]})
		}
	}
	return objects, nil
}

func (f *fakeStore) CreateFolder(ctx context.Context, key string) error {
	return f.Upload(ctx, strings.TrimSuffix(key, "/")+"/", bytes.NewReader(nil), 0, nil)
}

func (f *fakeStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[srcKey]
	if !ok {
		return fmt.Errorf("no such object %s", srcKey)
	}
	f.objects[dstKey] = append([]byte(nil), data...)
	f.mtimes[dstKey] = time.Now().UTC()
	return nil
}

func (f *fakeStore) Move(ctx context.Context, srcKey, dstKey string) error {
	if err := f.Copy(ctx, srcKey, dstKey); err != nil {
		return err
	}
	return f.Delete(ctx, srcKey, false)
}

var _ remote.Store = (*fakeStore)(nil)

func testConfig(t *testing.T, roots ...config.RootConfig) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Path = filepath.Join(t.TempDir(), "config.json")
	cfg.Roots = roots
	cfg.DebounceMs = 50
	cfg.SyncIntervalSecs = 1
	return cfg
}

// watchableDir returns a temp dir with symlinks resolved, since watch
// events report resolved paths on macOS.
func watchableDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewRequiresRoots(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(t.Context(), cfg, WithStore(newFakeStore()))
	assert.ErrorIs(t, err, ErrNoRoots)
}

func TestNewBuildsSessionPerRoot(t *testing.T) {
	up := watchableDir(t)
	down := watchableDir(t)
	cfg := testConfig(t,
		config.RootConfig{LocalPath: up, RemotePath: "backup/up", Direction: sync.DirectionUp},
		config.RootConfig{LocalPath: down, RemotePath: "backup/down", Direction: sync.DirectionDown},
	)

	d, err := New(t.Context(), cfg, WithStore(newFakeStore()))
	require.NoError(t, err)
	require.Len(t, d.sessions, 2)

	assert.NotNil(t, d.sessions[0].watcher, "pushing roots watch the filesystem")
	assert.Nil(t, d.sessions[1].watcher, "download-only roots have no watcher")
	assert.NotEqual(t, d.sessions[0].id, d.sessions[1].id)
	assert.NotEmpty(t, d.RunID())
}

func TestDaemonSyncsInitialAndWatched(t *testing.T) {
	rootDir := watchableDir(t)
	store := newFakeStore()
	cfg := testConfig(t, config.RootConfig{
		LocalPath:  rootDir,
		RemotePath: "backup/docs",
		Direction:  sync.DirectionUp,
	})

	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "seed.txt"), []byte("present before start"), 0o644))

	d, err := New(t.Context(), cfg, WithStore(store))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.Start(ctx)
	}()

	waitUntil(t, 5*time.Second, func() bool {
		return store.has("backup/docs/seed.txt")
	}, "initial pass never uploaded the seed file")

	// pid file is up while the daemon runs
	pid, err := readPidFile(cfg.PidFilePath())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "live.txt"), []byte("written while running"), 0o644))

	waitUntil(t, 5*time.Second, func() bool {
		return store.has("backup/docs/live.txt")
	}, "watcher never picked up the live write")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean stop")
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	assert.NoFileExists(t, cfg.PidFilePath(), "pid file is cleared on exit")
}

func TestDaemonPullsOnDownRoot(t *testing.T) {
	rootDir := watchableDir(t)
	store := newFakeStore()
	require.NoError(t, store.Upload(t.Context(), "backup/shared/notes.md", strings.NewReader("from remote"), 11, nil))

	cfg := testConfig(t, config.RootConfig{
		LocalPath:  rootDir,
		RemotePath: "backup/shared",
		Direction:  sync.DirectionDown,
	})

	d, err := New(t.Context(), cfg, WithStore(store))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.Start(ctx)
	}()

	local := filepath.Join(rootDir, "notes.md")
	waitUntil(t, 5*time.Second, func() bool {
		_, err := os.Stat(local)
		return err == nil
	}, "initial pull never materialized the remote file")

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "from remote", string(data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}

func TestWritePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "skiff.pid")

	require.NoError(t, writePidFile(path))
	pid, err := readPidFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// the test process is alive, so a second daemon must refuse
	err = writePidFile(path)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	clearPidFile(path)
	assert.NoFileExists(t, path)
	clearPidFile(path) // no-op on a missing file
}

func TestWritePidFileReplacesStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skiff.pid")
	// max pid on linux is far below this, the process cannot exist
	require.NoError(t, os.WriteFile(path, []byte("99999999"), 0o644))

	require.NoError(t, writePidFile(path))
	pid, err := readPidFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestRunningProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skiff.pid")

	proc, err := RunningProcess(path)
	require.NoError(t, err)
	assert.Nil(t, proc, "missing pid file means no daemon")

	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))
	proc, err = RunningProcess(path)
	require.NoError(t, err)
	require.NotNil(t, proc)
	assert.Equal(t, int32(os.Getpid()), proc.Pid)

	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))
	_, err = RunningProcess(path)
	assert.Error(t, err)
}
