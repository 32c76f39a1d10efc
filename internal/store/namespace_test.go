package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkBackendIDStableForSameNaturalKey(t *testing.T) {
	a := chunkBackendID("sha256:abc")
	b := chunkBackendID("sha256:abc")
	assert.Equal(t, a, b)
}

func TestChunkBackendIDDiffersFromCodeExampleBackendID(t *testing.T) {
	assert.NotEqual(t, chunkBackendID("same-key"), codeExampleBackendID("same-key"))
}

func TestChunkBackendIDDiffersAcrossNaturalKeys(t *testing.T) {
	assert.NotEqual(t, chunkBackendID("key-1"), chunkBackendID("key-2"))
}
