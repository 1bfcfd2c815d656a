package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_DeterministicForEqualPayloads(t *testing.T) {
	payload := map[string]any{"name": "Ada", "age": 37}

	first, err := Hash(payload)
	require.NoError(t, err)
	second, err := Hash(map[string]any{"name": "Ada", "age": 37})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "expected hex-encoded SHA-256")
}

func TestHash_ChangesWithPayload(t *testing.T) {
	original, err := Hash(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	modified, err := Hash(map[string]any{"name": "Ada "})
	require.NoError(t, err)

	assert.NotEqual(t, original, modified)
}

func TestVerify_DetectsTampering(t *testing.T) {
	payload := map[string]any{"blood_type": "O-"}
	hash, err := Hash(payload)
	require.NoError(t, err)

	assert.True(t, Verify(payload, hash))
	assert.False(t, Verify(map[string]any{"blood_type": "AB+"}, hash))
	assert.False(t, Verify(payload, "not-a-hash"))
}

func TestHash_RejectsUnserializable(t *testing.T) {
	_, err := Hash(make(chan int))
	require.Error(t, err)
}
