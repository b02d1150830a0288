package chunkutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromUnits(t *testing.T) {
	assert.Equal(t, int64(5000), FromKB(5))
	assert.Equal(t, int64(5_000_000), FromMB(5))
	assert.Equal(t, int64(5_000_000_000), FromGB(5))
}

func TestDefaultChunkSizePolicy(t *testing.T) {
	cases := []struct {
		name     string
		fileSize int64
		want     int64
	}{
		{"huge", 2 * GB, 10 * MB},
		{"exactly 1GB", GB, 10 * MB},
		{"large", 200 * MB, 5 * MB},
		{"exactly 100MB", 100 * MB, 5 * MB},
		{"medium", 60 * MB, 2 * MB},
		{"exactly 50MB", 50 * MB, 2 * MB},
		{"small-ish", 20 * MB, 1 * MB},
		{"exactly 10MB", 10 * MB, 1 * MB},
		{"tiny", 11, 11},
		{"under 10MB", 9 * MB, 9 * MB},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultChunkSize(tc.fileSize))
		})
	}
}

func TestChunkCount(t *testing.T) {
	assert.Equal(t, 0, ChunkCount(0, 100))
	assert.Equal(t, 1, ChunkCount(11, 11))
	assert.Equal(t, 10, ChunkCount(10*MB, MB))
	assert.Equal(t, 2, ChunkCount(MB+1, MB))
}
