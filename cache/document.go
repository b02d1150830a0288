// Package cache provides the durable store of FileRecords for one app
// namespace. The default backend is a JSON document on local storage (see
// spec.md §4.3, §6.1); a bbolt-backed alternate lives in boltcache.go.
package cache

import "github.com/auriora/tusclient/record"

// Repository is the durable-store contract every cache backend satisfies.
type Repository interface {
	Add(r *record.FileRecord)
	Remove(r *record.FileRecord) error
	FindByHash(hash string) *record.FileRecord
	FindAll() []*record.FileRecord
	Open() error
	Save() bool
	ClearCache() error
}

// document is the exact on-disk shape described in spec.md §6.1. Field
// names and their JSON tags match the original CacheRepository verbatim so
// a cache file written by either implementation is readable by the other.
type document struct {
	UUID         string `json:"uuid"`
	LastEdit     int64  `json:"lastEdit"`
	Hash         string `json:"hash"`
	FilePath     string `json:"filePath"`
	AppName      string `json:"appName"`
	UploadURL    string `json:"uploadUrl"`
	UploadOffset int64  `json:"uploadOffset"`
	ResumeFrom   int64  `json:"resumeFrom"`
	TusID        string `json:"tusId"`
	ChunkNumber  int    `json:"chunkNumber"`
}

// requiredFields names every key open() must find on a document element
// before accepting it. A record missing any of these is skipped — spec.md
// §4.3's "fail-open to avoid losing peers".
var requiredFields = []string{
	"uuid", "lastEdit", "hash", "filePath", "appName",
	"uploadUrl", "uploadOffset", "resumeFrom", "tusId", "chunkNumber",
}

func toDocument(r *record.FileRecord) document {
	return document{
		UUID:         r.UUID.String(),
		LastEdit:     r.LastEditUnixMS,
		Hash:         r.Hash(),
		FilePath:     r.FilePath,
		AppName:      r.AppName,
		UploadURL:    r.UploadURL,
		UploadOffset: r.UploadOffset,
		ResumeFrom:   r.ResumeFrom,
		TusID:        r.TusIdentifier,
		ChunkNumber:  r.ChunkNumber,
	}
}
