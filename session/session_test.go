package session

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriora/tusclient/cache"
	"github.com/auriora/tusclient/internal/logging"
)

func testLogger() logging.Logger {
	return logging.New(os.Stderr, logging.Disabled, "session-test")
}

func newTestCache(t *testing.T) cache.Repository {
	t.Helper()
	repo, err := cache.NewJSONRepository("tusclient-session-test-"+t.Name(), true, testLogger())
	require.NoError(t, err)
	return repo
}

func writeSourceFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// fakeTusServer is a minimal tus v1.0.0 server sufficient to drive the
// engine's creation/PATCH/HEAD/DELETE/OPTIONS contract end to end.
type fakeTusServer struct {
	mu                 sync.Mutex
	offset             int64
	length             int64
	deleted            bool
	conflictsRemaining int
}

func newFakeTusServer() (*httptest.Server, *fakeTusServer) {
	f := &fakeTusServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			length, _ := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
			f.mu.Lock()
			f.length = length
			f.offset = 0
			f.mu.Unlock()
			w.Header().Set("Location", "http://"+r.Host+"/files/abc123")
			w.Header().Set("Tus-Resumable", "1.0.0")
			w.WriteHeader(http.StatusCreated)

		case http.MethodHead:
			f.mu.Lock()
			offset, length := f.offset, f.length
			f.mu.Unlock()
			w.Header().Set("Upload-Offset", strconv.FormatInt(offset, 10))
			w.Header().Set("Upload-Length", strconv.FormatInt(length, 10))
			w.Header().Set("Tus-Resumable", "1.0.0")
			w.WriteHeader(http.StatusOK)

		case http.MethodPatch:
			f.mu.Lock()
			if f.conflictsRemaining > 0 {
				f.conflictsRemaining--
				f.mu.Unlock()
				w.WriteHeader(http.StatusConflict)
				return
			}
			body := r.ContentLength
			f.offset += body
			newOffset := f.offset
			f.mu.Unlock()
			w.Header().Set("Upload-Offset", strconv.FormatInt(newOffset, 10))
			w.Header().Set("Tus-Resumable", "1.0.0")
			w.WriteHeader(http.StatusNoContent)

		case http.MethodDelete:
			f.mu.Lock()
			f.deleted = true
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)

		case http.MethodOptions:
			w.Header().Set("Tus-Resumable", "1.0.0")
			w.Header().Set("Tus-Version", "1.0.0")
			w.Header().Set("Tus-Extension", "creation,expiration")
			w.Header().Set("Tus-Max-Size", "1073741824")
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	return srv, f
}

func TestUploadRunsToFinished(t *testing.T) {
	srv, _ := newFakeTusServer()
	defer srv.Close()

	src := writeSourceFile(t, 2048)
	c := newTestCache(t)

	s, err := New("tusclient-session-test", srv.URL, src, 512, logging.Disabled, c, false)
	require.NoError(t, err)

	finished, err := s.Upload()
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, StatusFinished, s.Status())
	assert.Equal(t, float64(100), s.Progress())
}

func TestPauseIsNoOpWhenNotUploading(t *testing.T) {
	srv, _ := newFakeTusServer()
	defer srv.Close()

	src := writeSourceFile(t, 4096)
	c := newTestCache(t)

	s, err := New("tusclient-session-test", srv.URL, src, 512, logging.Disabled, c, false)
	require.NoError(t, err)

	s.Pause()
	assert.Equal(t, StatusReady, s.Status())
}

func TestCancelEvictsCacheAndDeletesOnServer(t *testing.T) {
	srv, fake := newFakeTusServer()
	defer srv.Close()

	src := writeSourceFile(t, 100)
	c := newTestCache(t)

	s, err := New("tusclient-session-test", srv.URL, src, 0, logging.Disabled, c, false)
	require.NoError(t, err)

	require.NoError(t, s.create())
	c.Add(s.rec)
	require.NotNil(t, c.FindByHash(s.rec.Hash()))

	err = s.Cancel()
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, s.Status())
	assert.Nil(t, c.FindByHash(s.rec.Hash()))

	fake.mu.Lock()
	deleted := fake.deleted
	fake.mu.Unlock()
	assert.True(t, deleted)
}

func TestCancelWithoutLocationIsPrecondition(t *testing.T) {
	srv, _ := newFakeTusServer()
	defer srv.Close()

	src := writeSourceFile(t, 100)
	c := newTestCache(t)

	s, err := New("tusclient-session-test", srv.URL, src, 0, logging.Disabled, c, false)
	require.NoError(t, err)

	err = s.Cancel()
	require.Error(t, err)
}

func TestResumeAfterProcessRestartReloadsStagedChunks(t *testing.T) {
	srv, _ := newFakeTusServer()
	defer srv.Close()

	src := writeSourceFile(t, 1500)
	c := newTestCache(t)

	first, err := New("tusclient-session-test", srv.URL, src, 500, logging.Disabled, c, false)
	require.NoError(t, err)
	require.NoError(t, first.ensureChunksLoaded())
	require.NoError(t, first.create())
	require.NoError(t, first.reconcileOffset())
	c.Add(first.rec)
	c.Save()

	// Simulate a restart: a fresh session reloads the cached record and must
	// not need to re-stage chunks from the source file to resume.
	second, err := New("tusclient-session-test", srv.URL, src, 0, logging.Disabled, c, false)
	require.NoError(t, err)
	require.Equal(t, first.rec.TusIdentifier, second.rec.TusIdentifier)
	require.Equal(t, first.rec.ChunkNumber, second.rec.ChunkNumber)

	finished, err := second.Resume()
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, StatusFinished, second.Status())
}

func TestGetTusServerInformationParsesCapabilities(t *testing.T) {
	srv, _ := newFakeTusServer()
	defer srv.Close()

	src := writeSourceFile(t, 10)
	c := newTestCache(t)
	s, err := New("tusclient-session-test", srv.URL, src, 0, logging.Disabled, c, false)
	require.NoError(t, err)

	caps, err := s.GetTusServerInformation()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", caps["Tus-Resumable"])
	assert.True(t, s.SupportsExtension("creation"))
	assert.False(t, s.SupportsExtension("checksum"))
}

func TestRetryOnlyFromFailedOrCanceled(t *testing.T) {
	srv, _ := newFakeTusServer()
	defer srv.Close()

	src := writeSourceFile(t, 10)
	c := newTestCache(t)
	s, err := New("tusclient-session-test", srv.URL, src, 0, logging.Disabled, c, false)
	require.NoError(t, err)

	ok, err := s.Retry()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StatusReady, s.Status())
}

func TestConflictRetrySucceedsWithinBudget(t *testing.T) {
	srv, fake := newFakeTusServer()
	defer srv.Close()

	fake.conflictsRemaining = maxConflictRetries

	src := writeSourceFile(t, 2048)
	c := newTestCache(t)
	s, err := New("tusclient-session-test", srv.URL, src, 512, logging.Disabled, c, false)
	require.NoError(t, err)

	finished, err := s.Upload()
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, StatusFinished, s.Status())
}

func TestConflictRetryExceedsBudgetFails(t *testing.T) {
	srv, fake := newFakeTusServer()
	defer srv.Close()

	fake.conflictsRemaining = maxConflictRetries + 1

	src := writeSourceFile(t, 2048)
	c := newTestCache(t)
	s, err := New("tusclient-session-test", srv.URL, src, 512, logging.Disabled, c, false)
	require.NoError(t, err)

	finished, err := s.Upload()
	require.Error(t, err)
	assert.False(t, finished)
	assert.Equal(t, StatusFailed, s.Status())
}

func TestRetryAfterCancelMidUploadReachesFinished(t *testing.T) {
	srv, _ := newFakeTusServer()
	defer srv.Close()

	src := writeSourceFile(t, 1500)
	c := newTestCache(t)
	s, err := New("tusclient-session-test", srv.URL, src, 500, logging.Disabled, c, false)
	require.NoError(t, err)

	require.NoError(t, s.ensureChunksLoaded())
	require.NoError(t, s.create())
	require.NoError(t, s.Cancel())
	assert.Equal(t, StatusCanceled, s.Status())
	assert.Equal(t, 0, s.chunk.ChunkCount())

	finished, err := s.Retry()
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, StatusFinished, s.Status())
}
