package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriora/tusclient/record"
)

func TestBoltRepositoryRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	repo, err := NewBoltRepository(dbPath, "myapp")
	require.NoError(t, err)
	defer repo.Close()

	r := record.New(filepath.Join(t.TempDir(), "f.bin"), "http://h/", "myapp")
	r.SetUploadOffset(42, 100)
	repo.Add(r)

	found := repo.FindByHash(r.Hash())
	require.NotNil(t, found)
	assert.Equal(t, int64(42), found.UploadOffset)

	require.NoError(t, repo.Remove(r))
	assert.Nil(t, repo.FindByHash(r.Hash()))
}

func TestBoltRepositoryFindAllScopedToAppName(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	repoA, err := NewBoltRepository(dbPath, "appA")
	require.NoError(t, err)
	defer repoA.Close()

	// Both app namespaces share the same bbolt file handle and bucket,
	// keyed apart by the "<appName>:<hash>" prefix (bbolt allows only one
	// open handle per file, unlike the JSON backend's per-appName file).
	repoB := &BoltRepository{db: repoA.db, appName: "appB"}

	repoA.Add(record.New("/a", "http://h/", "appA"))
	repoB.Add(record.New("/b", "http://h/", "appB"))

	assert.Len(t, repoA.FindAll(), 1)
	assert.Len(t, repoB.FindAll(), 1)
}
