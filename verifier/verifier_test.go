package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMD5VerifierHash(t *testing.T) {
	v := NewMD5Verifier()
	got := v.Hash([]byte("hello world"))
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", got)
}

func TestMD5VerifierVerify(t *testing.T) {
	v := NewMD5Verifier()
	data := []byte("some chunk payload")
	hash := v.Hash(data)

	assert.True(t, v.Verify(data, hash))
	assert.False(t, v.Verify(data, "deadbeef"))
	assert.False(t, v.Verify([]byte("different payload"), hash))
}
