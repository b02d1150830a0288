package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/auriora/tusclient/internal/logging"
	"github.com/auriora/tusclient/internal/tuserr"
	"github.com/auriora/tusclient/record"
)

// JSONRepository is the spec-mandated default: a JSON array on local
// storage at <tmp>/<appName>/.cache.json, grounded on
// original_source's CacheRepository.
type JSONRepository struct {
	mu      sync.Mutex
	appName string
	path    string
	records []*record.FileRecord
	log     logging.Logger
}

// NewJSONRepository constructs a repository rooted at the system temp
// directory, creating its parent directory if necessary. If clear is true
// the on-disk document is wiped instead of loaded.
func NewJSONRepository(appName string, clear bool, log logging.Logger) (*JSONRepository, error) {
	dir := filepath.Join(os.TempDir(), appName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tuserr.NewIOFailure("create cache directory", err)
	}
	repo := &JSONRepository{
		appName: appName,
		path:    filepath.Join(dir, ".cache.json"),
		log:     log,
	}
	if clear {
		if err := repo.ClearCache(); err != nil {
			return nil, err
		}
	} else if err := repo.Open(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Add stores a snapshot of r, not a live shared reference — matching
// CacheRepository::add in the original.
func (c *JSONRepository) Add(r *record.FileRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r.Clone())
}

// Remove deletes the matching record (by identification hash) and the
// per-session staged-chunk directory it owned.
func (c *JSONRepository) Remove(r *record.FileRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := r.Hash()
	for i, existing := range c.records {
		if existing.Hash() == target {
			c.records = append(c.records[:i], c.records[i+1:]...)
			break
		}
	}

	filesDir := filepath.Join(os.TempDir(), c.appName, "files", r.UUID.String())
	if err := os.RemoveAll(filesDir); err != nil {
		return tuserr.NewIOFailure("remove staged chunk directory", err)
	}
	return nil
}

// FindByHash returns the record with the given identification hash, or nil.
func (c *JSONRepository) FindByHash(hash string) *record.FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.Hash() == hash {
			return r
		}
	}
	return nil
}

// FindAll returns every record currently held in memory.
func (c *JSONRepository) FindAll() []*record.FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*record.FileRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Open loads the on-disk document, clearing in-memory state first. A
// missing file, an empty file, or a malformed document are all equivalent
// to an empty cache — spec.md §6.1's "must not prevent startup".
func (c *JSONRepository) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = nil

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return tuserr.NewIOFailure("read cache file", err)
	}
	if len(data) == 0 {
		return nil
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		c.log.Warn().Err(err).Msg("malformed cache document, starting empty")
		return nil
	}

	for _, item := range raw {
		if !hasRequiredFields(item) {
			continue
		}
		var doc document
		if err := unmarshalInto(item, &doc); err != nil {
			continue
		}
		if _, statErr := os.Stat(doc.FilePath); statErr != nil {
			continue
		}
		id, err := uuid.Parse(doc.UUID)
		if err != nil {
			continue
		}
		r := &record.FileRecord{
			UUID:           id,
			FilePath:       doc.FilePath,
			UploadURL:      doc.UploadURL,
			AppName:        doc.AppName,
			UploadOffset:   doc.UploadOffset,
			ResumeFrom:     doc.ResumeFrom,
			TusIdentifier:  doc.TusID,
			ChunkNumber:    doc.ChunkNumber,
			LastEditUnixMS: doc.LastEdit,
		}
		c.records = append(c.records, r)
	}
	return nil
}

// Save performs an atomic rewrite of the on-disk document: write to a
// sibling temp file, then rename over the target. This is an explicit
// improvement over the original's non-atomic ofstream write, per spec.md
// §4.3's "atomic rewrite" requirement. Never throws; returns false on any
// I/O error, matching CacheRepository::save's noexcept contract.
func (c *JSONRepository) Save() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs := make([]document, 0, len(c.records))
	for _, r := range c.records {
		docs = append(docs, toDocument(r))
	}
	if docs == nil {
		docs = []document{}
	}

	data, err := json.Marshal(docs)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal cache document")
		return false
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.log.Error().Err(err).Msg("write temp cache file")
		return false
	}
	if err := os.Rename(tmp, c.path); err != nil {
		c.log.Error().Err(err).Msg("rename temp cache file")
		return false
	}
	return true
}

// ClearCache empties the in-memory set, persists the empty document, then
// reloads it, matching CacheRepository::clearCache.
func (c *JSONRepository) ClearCache() error {
	c.mu.Lock()
	c.records = nil
	c.mu.Unlock()

	if ok := c.Save(); !ok {
		return tuserr.NewIOFailure("clear cache", nil)
	}
	return c.Open()
}

func hasRequiredFields(item map[string]json.RawMessage) bool {
	for _, field := range requiredFields {
		if _, ok := item[field]; !ok {
			return false
		}
	}
	return true
}

func unmarshalInto(item map[string]json.RawMessage, doc *document) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, doc)
}
