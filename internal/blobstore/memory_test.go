package blobstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"salonindex/internal/blobstore"
)

func TestMemoryStore_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	exists, err := store.Exists(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, store.PutJSON(ctx, "k", sample{Name: "first", Count: 1}))
	assert.NoError(t, store.PutJSON(ctx, "k", sample{Name: "second", Count: 2}))

	var got sample
	found, err := store.GetJSON(ctx, "k", &got)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", got.Name)

	assert.NoError(t, store.Delete(ctx, "k"))
	found, err = store.GetJSON(ctx, "k", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	in := []string{"a", "b"}
	assert.NoError(t, store.PutJSON(ctx, "list", in))
	in[0] = "mutated"

	var out []string
	_, err := store.GetJSON(ctx, "list", &out)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}
