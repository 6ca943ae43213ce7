package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedRunsOnceAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.db")

	for run := 0; run < 2; run++ {
		d, err := New(ctx, Options{Driver: DriverSQLite, DSN: path})
		require.NoError(t, err)

		seeded, err := d.Seed(ctx)
		require.NoError(t, err)
		assert.Equal(t, run == 0, seeded, "run %d", run)

		convs, err := d.ListConversations(ctx, 0, 100)
		require.NoError(t, err)
		assert.Len(t, convs, len(seedData), "run %d", run)
		require.NoError(t, d.Close())
	}
}

func TestSeedContent(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	seeded, err := d.Seed(ctx)
	require.NoError(t, err)
	require.True(t, seeded)

	convs, err := d.ListConversations(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, convs, len(seedData))

	for i, conv := range convs {
		require.NotNil(t, conv.Title)
		assert.Equal(t, seedData[i].title, *conv.Title)

		msgs, err := d.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, msgs, len(seedData[i].messages))
		for j, m := range msgs {
			assert.Equal(t, seedData[i].messages[j].role, m.Role)
			assert.Equal(t, seedData[i].messages[j].content, m.Content)
		}
	}
}

func TestSeedSkipsNonEmptyStore(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	_, err := d.CreateConversation(ctx, strPtr("mine"))
	require.NoError(t, err)

	seeded, err := d.Seed(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	convs, err := d.ListConversations(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}
