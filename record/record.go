// Package record defines the FileRecord value object that must survive a
// process restart and the identification hash that recognizes the same
// logical upload across runs.
package record

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// FileRecord is the persistent description of one upload session. It is
// created by the engine; the cache repository stores a snapshot of it (see
// Clone), not a shared reference.
type FileRecord struct {
	UUID           uuid.UUID
	FilePath       string
	UploadURL      string
	AppName        string
	UploadOffset   int64
	ResumeFrom     int64
	TusIdentifier  string
	ChunkNumber    int
	LastEditUnixMS int64
}

// IdentificationHash returns the deterministic hash of (path, url, app) that
// invariant 1 in spec.md §3.2 requires: two records collide iff this triple
// matches. Grounded on the teacher's hashAccount (SHA256, truncated hex)
// rather than the original C++'s process-local std::hash<string>, which is
// not stable across runs or platforms and therefore unsuitable for a value
// that must be recognized identically after a process restart.
func IdentificationHash(filePath, uploadURL, appName string) string {
	sum := sha256.Sum256([]byte(filePath + uploadURL + appName))
	return hex.EncodeToString(sum[:])
}

// Hash returns this record's identification hash.
func (r *FileRecord) Hash() string {
	return IdentificationHash(r.FilePath, r.UploadURL, r.AppName)
}

// New constructs a fresh FileRecord with a new UUID and zeroed progress
// fields, mirroring the original TUSFile constructor.
func New(filePath, uploadURL, appName string) *FileRecord {
	return &FileRecord{
		UUID:      uuid.New(),
		FilePath:  filePath,
		UploadURL: uploadURL,
		AppName:   appName,
	}
}

// touch refreshes LastEditUnixMS. The original's setters each call
// updateFile() to do the equivalent; callers here pass the current time in
// explicitly since this package must not call time.Now() at package scope
// to stay trivially testable (the engine passes the value of its now()
// helper).
func (r *FileRecord) touch(nowUnixMS int64) {
	r.LastEditUnixMS = nowUnixMS
}

// SetUploadOffset updates the offset and refreshes last-edit.
func (r *FileRecord) SetUploadOffset(offset, nowUnixMS int64) {
	r.UploadOffset = offset
	r.touch(nowUnixMS)
}

// SetResumeFrom updates the resume marker and refreshes last-edit.
func (r *FileRecord) SetResumeFrom(resumeFrom, nowUnixMS int64) {
	r.ResumeFrom = resumeFrom
	r.touch(nowUnixMS)
}

// SetTusIdentifier updates the server-assigned location token and refreshes
// last-edit.
func (r *FileRecord) SetTusIdentifier(id string, nowUnixMS int64) {
	r.TusIdentifier = id
	r.touch(nowUnixMS)
}

// SetChunkNumber updates the chunk count and refreshes last-edit.
func (r *FileRecord) SetChunkNumber(n int, nowUnixMS int64) {
	r.ChunkNumber = n
	r.touch(nowUnixMS)
}

// Clone returns a deep copy, matching the original CacheRepository::add
// storing a snapshot rather than a live shared reference.
func (r *FileRecord) Clone() *FileRecord {
	cp := *r
	return &cp
}
