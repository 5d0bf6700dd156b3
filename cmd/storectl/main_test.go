package main

import (
	"testing"

	"github.com/delaneyj/appstate/persist"
	"github.com/delaneyj/appstate/storage"
	"github.com/delaneyj/appstate/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYAMLScalarsKeepTheirType(t *testing.T) {
	h := storagetest.New(t,
		initialOf("name", "kitchen"),
		initialOf("temp", 21.5),
		initialOf("fans", 2),
		initialOf("on", true),
		initialOf("tags", []any{"a", "b"}),
	)

	name, ok := storage.Get[string](h.Store, "name")
	assert.True(t, ok)
	assert.Equal(t, "kitchen", name)
	fans, ok := storage.Get[int](h.Store, "fans")
	assert.True(t, ok)
	assert.Equal(t, 2, fans)
	tags, ok := storage.Get[any](h.Store, "tags")
	assert.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, tags)

	assert.True(t, setAny(h.Store, "temp", 19.0))
	assert.True(t, setAny(h.Store, "temp", 18))
	temp, ok := storage.Get[float64](h.Store, "temp")
	assert.True(t, ok)
	assert.Equal(t, 18.0, temp)
	// ints stay ints where the key holds one
	assert.True(t, setAny(h.Store, "fans", 3))
	assert.True(t, setAny(h.Store, "mode", "eco"))
	assert.False(t, setAny(h.Store, "on", "yes"))
	assert.Contains(t, h.Errors(), "property type mismatch")
}

func TestPersistAnyUsesTheStoredType(t *testing.T) {
	h := storagetest.New(t, initialOf("fans", 2))
	backend := persist.NewMemoryBackend()
	ps := persist.New(h.Store, backend)
	defer ps.Close()

	v, _, ok := h.Store.Inspect("fans")
	require.True(t, ok)
	require.True(t, persistAny(ps, "fans", v))
	assert.True(t, setAny(h.Store, "fans", 3))

	data, ok, err := backend.Load("fans")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3\n", string(data))
}
