// Package chunker partitions a source file into an ordered sequence of
// chunks, staged on local storage so chunk transmission is decoupled from
// source-file I/O, per spec.md §4.2 and §6.3.
package chunker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/auriora/tusclient/chunkutil"
	"github.com/auriora/tusclient/internal/tuserr"
	"github.com/auriora/tusclient/verifier"
)

// Chunk is one byte range of the source file, identified by its 0-based
// index within the chunker's ordered sequence.
type Chunk struct {
	Index   int
	Payload []byte
}

// Chunker owns the chunk sequence for one upload session. It is
// constructed with the session and destroyed with it, mirroring
// spec.md §3.3's lifecycle note and the original's IFileChunker contract.
type Chunker struct {
	appName    string
	sessionID  uuid.UUID
	sourcePath string
	tmpRoot    string
	chunkSize  int64
	chunkCount int
	verifier   verifier.Verifier
}

// New constructs a Chunker for one session. A chunkSize of 0 or less means
// "use the policy default": ChunkFile then resolves it from the source
// file's size via chunkutil.DefaultChunkSize.
func New(appName string, sessionID uuid.UUID, sourcePath string, chunkSize int64, v verifier.Verifier) *Chunker {
	return &Chunker{
		appName:    appName,
		sessionID:  sessionID,
		sourcePath: sourcePath,
		tmpRoot:    filepath.Join(os.TempDir(), appName, "files", sessionID.String()),
		chunkSize:  chunkSize,
		verifier:   v,
	}
}

// TemporaryDir returns the per-session staging directory.
func (c *Chunker) TemporaryDir() string { return c.tmpRoot }

// ChunkFilename returns the staged filename for chunk index i (no
// directory component), per spec.md §6.3's naming.
func (c *Chunker) ChunkFilename(i int) string {
	return fmt.Sprintf("%s_chunk_%d.bin", c.sessionID.String(), i)
}

// ChunkFilePath returns the full staged path for chunk index i.
func (c *Chunker) ChunkFilePath(i int) string {
	return filepath.Join(c.tmpRoot, c.ChunkFilename(i))
}

// ChunkSize returns the chunk size this Chunker was constructed with, or,
// after a ChunkFile call, the size that call actually used.
func (c *Chunker) ChunkSize() int64 { return c.chunkSize }

// ChunkCount returns the number of chunks produced by the last ChunkFile
// call or restored by SetChunkCount (0 if neither has happened).
func (c *Chunker) ChunkCount() int { return c.chunkCount }

// SetChunkCount restores a chunk count learned from a persisted FileRecord
// (see record.FileRecord.ChunkNumber), so a resumed session can call
// LoadChunks without re-staging from the source file across a process
// restart.
func (c *Chunker) SetChunkCount(n int) { c.chunkCount = n }

// ChunkFile opens the source read-only and streams it into
// ceil(size/chunkSize) staged files under the per-session temp directory.
// Returns the chunk count on success, or an error satisfying
// tuserr.IsIOFailure on any I/O failure — the caller (the engine) maps this
// to the "chunking failure" case in spec.md §4.1's failure semantics.
func (c *Chunker) ChunkFile() (int, error) {
	src, err := os.Open(c.sourcePath)
	if err != nil {
		return -1, tuserr.NewIOFailure("open source file", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return -1, tuserr.NewIOFailure("stat source file", err)
	}

	chunkSize := c.chunkSize
	if chunkSize <= 0 {
		chunkSize = chunkutil.DefaultChunkSize(info.Size())
	}
	if chunkSize <= 0 {
		chunkSize = info.Size()
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}

	if err := os.MkdirAll(c.tmpRoot, 0o755); err != nil {
		return -1, tuserr.NewIOFailure("create staging directory", err)
	}

	count := chunkutil.ChunkCount(info.Size(), chunkSize)
	buf := make([]byte, chunkSize)
	for i := 0; i < count; i++ {
		n, readErr := io.ReadFull(src, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return -1, tuserr.NewIOFailure("read source chunk", readErr)
		}
		if err := os.WriteFile(c.ChunkFilePath(i), buf[:n], 0o600); err != nil {
			return -1, tuserr.NewIOFailure("stage chunk file", err)
		}
	}

	c.chunkSize = chunkSize
	c.chunkCount = count
	return count, nil
}

// LoadChunks reads every staged file into memory, in index order. The last
// chunk may be shorter than ChunkSize if the file size is not an exact
// multiple.
func (c *Chunker) LoadChunks() ([]Chunk, error) {
	chunks := make([]Chunk, 0, c.chunkCount)
	for i := 0; i < c.chunkCount; i++ {
		data, err := os.ReadFile(c.ChunkFilePath(i))
		if err != nil {
			return nil, tuserr.NewIOFailure("load staged chunk", err)
		}
		chunks = append(chunks, Chunk{Index: i, Payload: data})
	}
	return chunks, nil
}

// RemoveChunkFiles deletes every staged file for this session.
func (c *Chunker) RemoveChunkFiles() error {
	if err := os.RemoveAll(c.tmpRoot); err != nil {
		return tuserr.NewIOFailure("remove staged chunk directory", err)
	}
	return nil
}

// Hash delegates to the embedded verifier.
func (c *Chunker) Hash(data []byte) string { return c.verifier.Hash(data) }

// Verify delegates to the embedded verifier.
func (c *Chunker) Verify(data []byte, expected string) bool { return c.verifier.Verify(data, expected) }
