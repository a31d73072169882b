package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWidgetKeyUnique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		key, err := NewWidgetKey()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key after %d generations: %s", i, key)
		seen[key] = struct{}{}
	}
}

func TestNewWidgetKeyURLSafe(t *testing.T) {
	key, err := NewWidgetKey()
	require.NoError(t, err)
	assert.NotContains(t, key, "+")
	assert.NotContains(t, key, "/")
	assert.NotContains(t, key, "=")
	// 24 bytes base64url without padding is 32 characters
	assert.Len(t, key, 32)
}

func TestNewOpaqueTokenLength(t *testing.T) {
	tok, err := NewOpaqueToken(9)
	require.NoError(t, err)
	assert.Len(t, tok, 12)
	assert.False(t, strings.ContainsAny(tok, "+/="))
}
