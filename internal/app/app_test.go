package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judgebench/internal/config"
	"judgebench/internal/store"
)

func TestNew_Memory(t *testing.T) {
	cfg := config.Config{
		Store:          store.Memory,
		ModelName:      "gpt-4o-mini",
		RunConcurrency: 3,
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.IsType(t, &store.MemoryStore{}, a.Store)
	assert.NotNil(t, a.Runner)
	assert.NotNil(t, a.Results)
	assert.Nil(t, a.Objects)
	assert.NoError(t, a.Store.Ping(context.Background()))
}

func TestNew_RejectsNegativeRetries(t *testing.T) {
	_, err := New(context.Background(), config.Config{Store: store.Memory, RunMaxRetries: -1})
	assert.Error(t, err)
}

func TestNew_UnknownStore(t *testing.T) {
	_, err := New(context.Background(), config.Config{Store: "sqlite"})
	assert.Error(t, err)
}
