// Package session implements the upload session engine: the state machine
// that drives one file's tus upload from creation through chunked
// transmission, pause, resume, cancel, and retry (spec.md §4.1).
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/auriora/tusclient/cache"
	"github.com/auriora/tusclient/chunker"
	"github.com/auriora/tusclient/httpclient"
	"github.com/auriora/tusclient/internal/logging"
	"github.com/auriora/tusclient/internal/tuserr"
	"github.com/auriora/tusclient/record"
	"github.com/auriora/tusclient/verifier"
)

const (
	tusResumableVersion = "1.0.0"
	// maxConflictRetries is the global (not per-chunk) conflict retry
	// budget, grounded on the original source's never-reset m_retry
	// counter — see spec.md §9.
	maxConflictRetries = 3
)

// UploadSession is the in-memory aggregate for one active upload, per
// spec.md §3.1. It owns its Chunker and HTTP client outright. The cache
// repository is supplied by the caller of New and is not owned by the
// session: several sessions may share one. The cache keeps a snapshot of
// the FileRecord taken when it is added, not the session's live record.
type UploadSession struct {
	mu sync.Mutex

	appName    string
	baseURL    string
	sourcePath string

	status         Status
	offset         int64
	length         int64
	uploadedChunks int
	progress       float64
	conflictTries  int
	requestTimeout time.Duration

	serverCaps  map[string]string
	capsFetched bool

	loadedChunks []chunker.Chunk

	rec     *record.FileRecord
	chunk   *chunker.Chunker
	cacheRe cache.Repository
	http    *httpclient.Client
	log     logging.Logger
}

// New constructs a session ready for upload(). It normalizes the base URL,
// verifies the source file exists, and — if the cache already holds a
// record for this (path, url, app) triple — copies its persisted progress
// in, which is the sole resume path across process restarts (spec.md
// §4.1's "Session initialization").
func New(appName, baseURL, sourcePath string, chunkSize int64, level logging.Level, cacheRepo cache.Repository, insecureSkipVerify bool) (*UploadSession, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, tuserr.NewIOFailure("source path must exist", err)
	}

	normalizedURL := NormalizeBaseURL(baseURL)
	log := logging.New(os.Stderr, level, appName)

	rec := record.New(sourcePath, normalizedURL, appName)
	if existing := cacheRepo.FindByHash(rec.Hash()); existing != nil {
		rec.UUID = existing.UUID
		rec.UploadOffset = existing.UploadOffset
		rec.ResumeFrom = existing.ResumeFrom
		rec.TusIdentifier = existing.TusIdentifier
		rec.ChunkNumber = existing.ChunkNumber
		rec.LastEditUnixMS = existing.LastEditUnixMS
	}

	v := verifier.NewMD5Verifier()
	c := chunker.New(appName, rec.UUID, sourcePath, chunkSize, v)
	if rec.ChunkNumber > 0 {
		c.SetChunkCount(rec.ChunkNumber)
	}

	return &UploadSession{
		appName:    appName,
		baseURL:    normalizedURL,
		sourcePath: sourcePath,
		status:     StatusReady,
		offset:     rec.UploadOffset,
		rec:        rec,
		chunk:      c,
		cacheRe:    cacheRepo,
		http:       httpclient.New(log, insecureSkipVerify),
		log:        log,
	}, nil
}

// GetURL returns the normalized base URL — spec.md §8 property 1 and
// scenario E7.
func (s *UploadSession) GetURL() string { return s.baseURL }

// Status returns the current status, safe for concurrent callers.
func (s *UploadSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *UploadSession) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *UploadSession) getStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Progress returns the current percentage in [0, 100].
func (s *UploadSession) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// SetRequestTimeout sets the inter-request delay used between a conflict
// retry's offset reconciliation and its next attempt.
func (s *UploadSession) SetRequestTimeout(d time.Duration) {
	s.mu.Lock()
	s.requestTimeout = d
	s.mu.Unlock()
}

// GetRequestTimeout returns the configured inter-request delay.
func (s *UploadSession) GetRequestTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestTimeout
}

// SetBearerToken stores a bearer credential attached to subsequent requests.
func (s *UploadSession) SetBearerToken(token string) {
	s.http.SetAuthorization(token)
}

// IsTokenSet reports whether a bearer credential is set.
func (s *UploadSession) IsTokenSet() bool {
	return s.http.IsAuthenticated()
}

func now() int64 { return time.Now().UnixMilli() }

// Upload runs a fresh or resumed upload. It blocks until the session
// finishes, fails, or is paused or canceled, returning true only on
// FINISHED and false otherwise, per spec.md §4.1's public contract.
func (s *UploadSession) Upload() (bool, error) {
	if err := s.ensureChunksLoaded(); err != nil {
		// Chunking failure: no state persisted, engine stays READY.
		return false, err
	}

	if err := s.create(); err != nil {
		s.setStatus(StatusFailed)
		return false, err
	}

	if err := s.reconcileOffset(); err != nil {
		s.setStatus(StatusFailed)
		return false, err
	}

	s.cacheRe.Add(s.rec)
	s.cacheRe.Save()

	s.setStatus(StatusUploading)
	return s.runChunkLoop()
}

// Resume continues a paused or cold-started session: it re-queries the
// server offset then re-enters the chunk loop, per spec.md §4.1. If this is
// the first activity in the process (e.g. after a restart — the chunks
// loaded by a prior Upload() call don't survive that), it lazily loads the
// already-staged chunk files from disk using the chunk count restored from
// the cache, rather than re-staging from the source file.
func (s *UploadSession) Resume() (bool, error) {
	if err := s.ensureChunksLoaded(); err != nil {
		s.setStatus(StatusFailed)
		return false, err
	}
	if err := s.reconcileOffset(); err != nil {
		s.setStatus(StatusFailed)
		return false, err
	}

	// Start from the first chunk the server has not fully received, so a
	// cold-started session does not resend chunk 0 at a later offset.
	s.mu.Lock()
	idx := 0
	var covered int64
	for idx < len(s.loadedChunks) && covered+int64(len(s.loadedChunks[idx].Payload)) <= s.offset {
		covered += int64(len(s.loadedChunks[idx].Payload))
		idx++
	}
	s.uploadedChunks = idx
	s.mu.Unlock()

	s.setStatus(StatusUploading)
	return s.runChunkLoop()
}

// ensureChunksLoaded loads the session's chunk payloads into memory if they
// aren't already, staging them fresh only if no chunk count has ever been
// recorded for this session.
func (s *UploadSession) ensureChunksLoaded() error {
	s.mu.Lock()
	alreadyLoaded := s.loadedChunks != nil
	s.mu.Unlock()
	if alreadyLoaded {
		return nil
	}

	if s.chunk.ChunkCount() == 0 {
		count, err := s.chunk.ChunkFile()
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.rec.SetChunkNumber(count, now())
		s.mu.Unlock()
	}

	chunks, err := s.chunk.LoadChunks()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.loadedChunks = chunks
	s.mu.Unlock()
	return nil
}

// Pause transitions UPLOADING -> PAUSED and calls AbortAll, which drops
// queued requests; a request already in flight is not interrupted and runs
// to completion. It is a no-op from any other state.
func (s *UploadSession) Pause() {
	s.mu.Lock()
	if s.status != StatusUploading {
		s.mu.Unlock()
		return
	}
	s.status = StatusPaused
	s.mu.Unlock()
	s.http.AbortAll()
}

// Cancel issues a server-side DELETE if a location is known and, once the
// DELETE succeeds, evicts the record from the cache. Before the DELETE it
// calls AbortAll, which drops queued requests; a request already in flight
// is not interrupted. If no location has been assigned it changes nothing
// and returns a precondition error.
func (s *UploadSession) Cancel() error {
	s.mu.Lock()
	location := s.rec.TusIdentifier
	s.mu.Unlock()

	if location == "" {
		return tuserr.NewPreconditionError("cancel: no server location assigned", nil)
	}

	s.setStatus(StatusCanceled)
	s.http.AbortAll()

	var callErr error
	req := httpclient.NewRequest(httpclient.MethodDelete, s.baseURL+location, nil, map[string]string{
		"Tus-Resumable": tusResumableVersion,
		"accept":        "*/*",
	})
	req.OnSuccess = func(resp *httpclient.Response) {
		s.cacheRe.Remove(s.rec)
		s.cacheRe.Save()
		_ = s.chunk.RemoveChunkFiles()
		s.chunk.SetChunkCount(0)
		s.mu.Lock()
		s.rec.SetChunkNumber(0, now())
		s.mu.Unlock()
	}
	req.OnError = func(err error) { callErr = err }
	if err := s.http.Delete(req); err != nil {
		return err
	}
	s.http.Execute()
	return callErr
}

// Retry re-enters READY and calls Upload again. It only has effect from
// FAILED or CANCELED.
func (s *UploadSession) Retry() (bool, error) {
	status := s.getStatus()
	if status != StatusFailed && status != StatusCanceled {
		return false, nil
	}

	s.mu.Lock()
	s.status = StatusReady
	s.uploadedChunks = 0
	s.offset = 0
	s.progress = 0
	s.conflictTries = 0
	s.loadedChunks = nil
	s.mu.Unlock()

	return s.Upload()
}

// stop is the internal terminator: it sets FINISHED if offset==length and
// the session isn't CANCELED/FAILED, then applies spec.md §7's cache
// disposition table.
func (s *UploadSession) stop() bool {
	s.mu.Lock()
	status := s.status
	finished := s.offset == s.length && status != StatusCanceled && status != StatusFailed
	if finished {
		s.status = StatusFinished
		status = StatusFinished
	}
	s.mu.Unlock()

	switch status {
	case StatusPaused:
		// Preserve everything so resume() can continue.
	case StatusFinished:
		s.cacheRe.Remove(s.rec)
		s.cacheRe.Save()
		_ = s.chunk.RemoveChunkFiles()
	case StatusFailed:
		// Cache record and staged chunks preserved to enable retry.
	case StatusCanceled:
		// Cancel() already evicted the cache and removed staged chunks.
	}

	return status == StatusFinished
}

func (s *UploadSession) runChunkLoop() (bool, error) {
	for {
		status := s.getStatus()
		if status != StatusUploading {
			break
		}
		s.mu.Lock()
		offset, length := s.offset, s.length
		idx := s.uploadedChunks
		s.mu.Unlock()
		if offset >= length {
			break
		}
		if idx >= len(s.loadedChunks) {
			break
		}

		advance, err := s.uploadChunk(s.loadedChunks[idx])
		if err != nil {
			s.setStatus(StatusFailed)
			finished := s.stop()
			return finished, err
		}
		if !advance {
			// conflict retry consumed this iteration without advancing idx
			continue
		}
	}

	finished := s.stop()
	if finished {
		return true, nil
	}
	return false, nil
}

// uploadChunk issues one PATCH for chunk c and returns whether the loop
// should advance to the next chunk index (true) or retry the same index
// after a conflict reconciliation (false).
func (s *UploadSession) uploadChunk(c chunker.Chunk) (bool, error) {
	s.mu.Lock()
	location := s.rec.TusIdentifier
	offset := s.offset
	s.mu.Unlock()

	headers := map[string]string{
		"Tus-Resumable": tusResumableVersion,
		"Content-Type":  "application/offset+octet-stream",
		"Upload-Offset": strconv.FormatInt(offset, 10),
	}

	var resp *httpclient.Response
	var callErr error
	req := httpclient.NewRequest(httpclient.MethodPatch, s.baseURL+location, c.Payload, headers)
	req.OnSuccess = func(r *httpclient.Response) { resp = r }
	req.OnError = func(err error) { callErr = err }
	if err := s.http.Patch(req); err != nil {
		return false, err
	}
	s.http.Execute()

	if callErr != nil {
		status := s.getStatus()
		if status == StatusPaused || status == StatusCanceled {
			return false, nil
		}
		return false, tuserr.NewTransportError("chunk upload transport failure", callErr)
	}

	if resp == nil {
		// Aborted between enqueue and send: neither callback fired.
		return false, nil
	}

	switch resp.StatusCode() {
	case 204:
		newOffset := offset + int64(len(c.Payload))
		if raw := resp.HeaderValue("Upload-Offset"); raw != "" {
			if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
				newOffset = parsed
			}
		}
		s.mu.Lock()
		s.uploadedChunks++
		s.offset = newOffset
		s.rec.SetUploadOffset(newOffset, now())
		if s.length > 0 {
			s.progress = float64(newOffset) / float64(s.length) * 100
		}
		s.mu.Unlock()
		s.cacheRe.Save()
		return true, nil

	case 409:
		s.mu.Lock()
		s.conflictTries++
		tries := s.conflictTries
		timeout := s.requestTimeout
		s.mu.Unlock()
		if tries > maxConflictRetries {
			return false, tuserr.NewConflictError(
				fmt.Sprintf("exceeded %d conflict retries", maxConflictRetries), nil)
		}
		s.log.Warn().Int("attempt", tries).Msg("conflict retry: reconciling offset")
		if err := s.reconcileOffset(); err != nil {
			return false, err
		}
		time.Sleep(timeout)
		return false, nil

	default:
		return false, tuserr.NewProtocolError(
			fmt.Sprintf("unexpected chunk response: %s", resp.StatusLine), nil)
	}
}

// create issues the tus creation POST and parses the Location header into
// the session's server-assigned token, per spec.md §4.1, §6.2.
func (s *UploadSession) create() error {
	s.mu.Lock()
	size, statErr := fileSize(s.sourcePath)
	s.mu.Unlock()
	if statErr != nil {
		return tuserr.NewIOFailure("stat source file", statErr)
	}

	headers := map[string]string{
		"Tus-Resumable":       tusResumableVersion,
		"Content-Type":        "application/octet-stream",
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filepath.Base(s.sourcePath)),
		"Upload-Length":       strconv.FormatInt(size, 10),
		"Upload-Metadata":     "filename " + filepath.Base(s.sourcePath),
	}

	var resp *httpclient.Response
	var callErr error
	req := httpclient.NewRequest(httpclient.MethodPost, s.baseURL, nil, headers)
	req.OnSuccess = func(r *httpclient.Response) { resp = r }
	req.OnError = func(err error) { callErr = err }
	if err := s.http.Post(req); err != nil {
		return err
	}
	s.http.Execute()

	if callErr != nil {
		return tuserr.NewTransportError("creation request failed", callErr)
	}

	location := resp.HeaderValue("Location")
	if location == "" {
		return tuserr.NewProtocolError(fmt.Sprintf("creation response missing Location: %s", resp.StatusLine), nil)
	}

	token := lastPathSegment(location)
	s.mu.Lock()
	s.length = size
	s.rec.SetTusIdentifier(token, now())
	s.mu.Unlock()
	return nil
}

// reconcileOffset issues a HEAD against the session's server location and
// aligns the in-memory offset/length with the server's authoritative
// values, per spec.md §4.1's "Offset reconciliation".
func (s *UploadSession) reconcileOffset() error {
	s.mu.Lock()
	location := s.rec.TusIdentifier
	s.mu.Unlock()
	if location == "" {
		return tuserr.NewPreconditionError("reconcile: no server location assigned", nil)
	}

	var resp *httpclient.Response
	var callErr error
	req := httpclient.NewRequest(httpclient.MethodHead, s.baseURL+location, nil, map[string]string{
		"Tus-Resumable": tusResumableVersion,
	})
	req.OnSuccess = func(r *httpclient.Response) { resp = r }
	req.OnError = func(err error) { callErr = err }
	if err := s.http.Head(req); err != nil {
		return err
	}
	s.http.Execute()

	if callErr != nil {
		return tuserr.NewTransportError("offset reconciliation failed", callErr)
	}

	offset, _ := strconv.ParseInt(resp.HeaderValue("Upload-Offset"), 10, 64)
	length, _ := strconv.ParseInt(resp.HeaderValue("Upload-Length"), 10, 64)

	s.mu.Lock()
	s.offset = offset
	if length > 0 {
		s.length = length
	}
	s.rec.SetUploadOffset(offset, now())
	s.mu.Unlock()
	return nil
}

// ServerCapabilities returns the capability map from the last successful
// GetTusServerInformation call without re-querying, and whether such a call
// has succeeded yet (see SPEC_FULL.md §C.1).
func (s *UploadSession) ServerCapabilities() (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverCaps, s.capsFetched
}

// GetTusServerInformation issues an OPTIONS discovery request and returns
// the capability fields named in spec.md §4.1 and §6.2.
func (s *UploadSession) GetTusServerInformation() (map[string]string, error) {
	var resp *httpclient.Response
	var callErr error
	req := httpclient.NewRequest(httpclient.MethodOptions, s.baseURL, nil, map[string]string{
		"accept": "*/*",
	})
	req.OnSuccess = func(r *httpclient.Response) { resp = r }
	req.OnError = func(err error) { callErr = err }
	if err := s.http.Options(req); err != nil {
		return nil, err
	}
	s.http.Execute()

	if callErr != nil {
		return nil, tuserr.NewTransportError("server discovery failed", callErr)
	}

	caps := map[string]string{
		"Upload-Offset": resp.HeaderValue("Upload-Offset"),
		"Upload-Length": resp.HeaderValue("Upload-Length"),
		"Tus-Resumable": resp.HeaderValue("Tus-Resumable"),
		"Tus-Version":   resp.HeaderValue("Tus-Version"),
		"Tus-Extension": resp.HeaderValue("Tus-Extension"),
		"Tus-Max-Size":  resp.HeaderValue("Tus-Max-Size"),
	}

	s.mu.Lock()
	s.serverCaps = caps
	s.capsFetched = true
	s.mu.Unlock()

	return caps, nil
}

// SupportsExtension reports whether name appears in the last-fetched
// Tus-Extension capability list — a small supplement over the original,
// which leaves that header as a raw string (SPEC_FULL.md §C.3).
func (s *UploadSession) SupportsExtension(name string) bool {
	caps, ok := s.ServerCapabilities()
	if !ok {
		return false
	}
	for _, ext := range strings.Split(caps["Tus-Extension"], ",") {
		if strings.TrimSpace(ext) == name {
			return true
		}
	}
	return false
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
