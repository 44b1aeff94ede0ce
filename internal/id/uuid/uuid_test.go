package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewIDIsV7(t *testing.T) {
	t.Parallel()

	gen := New()
	raw, err := gen.NewID()
	require.NoError(t, err)

	parsed, err := goUUID.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestGeneratorNewIDUniqueAndOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	prev, err := gen.NewID()
	require.NoError(t, err)
	seen := map[string]bool{prev: true}
	for range 100 {
		next, err := gen.NewID()
		require.NoError(t, err)
		require.False(t, seen[next], "duplicate id %s", next)
		seen[next] = true
		assert.Less(t, prev, next)
		prev = next
	}
}
