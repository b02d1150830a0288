package cache

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/google/uuid"

	"github.com/auriora/tusclient/internal/tuserr"
	"github.com/auriora/tusclient/record"
)

// uploadsBucket mirrors the teacher's persistProgress bucket name.
var uploadsBucket = []byte("uploads")

// BoltRepository is an alternate Repository backend built on
// go.etcd.io/bbolt, grounded on the teacher's persistProgress/bolt.DB usage
// in internal/fs/upload_session.go. It satisfies the same Repository
// interface as JSONRepository; spec.md §4.3 names the JSON document as the
// default, not the only possible, store.
type BoltRepository struct {
	db      *bolt.DB
	appName string
}

// NewBoltRepository opens (creating if necessary) a bbolt database at path.
// Nothing is loaded into memory: every lookup reads the records stored
// under appName's key prefix straight from the database.
func NewBoltRepository(path, appName string) (*BoltRepository, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, tuserr.NewIOFailure("open bolt cache", err)
	}
	repo := &BoltRepository{db: db, appName: appName}
	if err := repo.Open(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (b *BoltRepository) key(hash string) []byte {
	return []byte(b.appName + ":" + hash)
}

// Add persists a snapshot of r immediately; bbolt has no separate
// save-on-demand step the way the JSON backend does.
func (b *BoltRepository) Add(r *record.FileRecord) {
	_ = b.put(r.Clone())
}

func (b *BoltRepository) put(r *record.FileRecord) error {
	data, err := json.Marshal(toDocument(r))
	if err != nil {
		return tuserr.NewIOFailure("marshal bolt record", err)
	}
	return b.db.Batch(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(uploadsBucket)
		if err != nil {
			return err
		}
		return bkt.Put(b.key(r.Hash()), data)
	})
}

// Remove deletes the record's bbolt entry.
func (b *BoltRepository) Remove(r *record.FileRecord) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(uploadsBucket)
		if bkt == nil {
			return nil
		}
		return bkt.Delete(b.key(r.Hash()))
	})
	if err != nil {
		return tuserr.NewIOFailure("remove bolt record", err)
	}
	return nil
}

// FindByHash looks up a single record by identification hash.
func (b *BoltRepository) FindByHash(hash string) *record.FileRecord {
	var found *record.FileRecord
	_ = b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(uploadsBucket)
		if bkt == nil {
			return nil
		}
		data := bkt.Get(b.key(hash))
		if data == nil {
			return nil
		}
		found = decodeDocument(data)
		return nil
	})
	return found
}

// FindAll returns every record stored under this repository's app
// namespace prefix.
func (b *BoltRepository) FindAll() []*record.FileRecord {
	var out []*record.FileRecord
	prefix := []byte(b.appName + ":")
	_ = b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(uploadsBucket)
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if r := decodeDocument(v); r != nil {
				out = append(out, r)
			}
		}
		return nil
	})
	return out
}

// Open is a no-op for bbolt: the database is already the durable store, so
// there is nothing separate to load into memory.
func (b *BoltRepository) Open() error { return nil }

// Save is a no-op for bbolt: every mutation already commits a transaction.
func (b *BoltRepository) Save() bool { return true }

// ClearCache deletes the entire uploads bucket.
func (b *BoltRepository) ClearCache() error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(uploadsBucket) == nil {
			return nil
		}
		return tx.DeleteBucket(uploadsBucket)
	})
	if err != nil {
		return tuserr.NewIOFailure("clear bolt cache", err)
	}
	return nil
}

// Close releases the underlying bbolt file handle.
func (b *BoltRepository) Close() error {
	return b.db.Close()
}

func decodeDocument(data []byte) *record.FileRecord {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	id, err := uuid.Parse(doc.UUID)
	if err != nil {
		return nil
	}
	return &record.FileRecord{
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
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
