package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/internal/registry"
)

func TestComputeRegistryHashDeterministic(t *testing.T) {
	doc := registry.Document{
		Version: "1.0.0",
		Features: map[string]*registry.Feature{
			"b": {ID: "b", Title: "B"},
			"a": {ID: "a", Title: "A"},
		},
	}

	h1, err := ComputeRegistryHash(doc)
	require.NoError(t, err)
	h2, err := ComputeRegistryHash(doc)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestComputeRegistryHashChangesWithContent(t *testing.T) {
	base := registry.Document{Version: "1.0.0", Features: map[string]*registry.Feature{"a": {ID: "a", Title: "A"}}}
	changed := registry.Document{Version: "1.0.0", Features: map[string]*registry.Feature{"a": {ID: "a", Title: "A renamed"}}}

	h1, err := ComputeRegistryHash(base)
	require.NoError(t, err)
	h2, err := ComputeRegistryHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
