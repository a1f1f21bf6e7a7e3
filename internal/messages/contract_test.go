package messages_test

import (
	"context"
	"testing"

	"github.com/2beens/contactform/internal/messages"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repoUnderTest interface {
	Insert(ctx context.Context, name, email, message string) (*messages.Message, error)
	ListAll(ctx context.Context) ([]messages.Message, error)
	Probe(ctx context.Context) error
}

// runRepoContract checks the behaviour every messages backend must share.
// The repo has to start with an empty table.
func runRepoContract(t *testing.T, repo repoUnderTest) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty table lists as empty slice", func(t *testing.T) {
		listed, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.NotNil(t, listed)
		assert.Empty(t, listed)
	})

	t.Run("probe succeeds", func(t *testing.T) {
		assert.NoError(t, repo.Probe(ctx))
	})

	t.Run("insert echoes the stored row", func(t *testing.T) {
		name, email, text := gofakeit.Name(), gofakeit.Email(), gofakeit.Sentence(6)
		inserted, err := repo.Insert(ctx, name, email, text)
		require.NoError(t, err)
		require.NotNil(t, inserted)
		assert.NotEmpty(t, inserted.ID)
		assert.NotEmpty(t, inserted.CreatedAt)
		assert.Equal(t, name, inserted.Name)
		assert.Equal(t, email, inserted.Email)
		assert.Equal(t, text, inserted.Message)
	})

	t.Run("list is newest first", func(t *testing.T) {
		var insertedIDs []string
		for _, name := range []string{"A", "B", "C"} {
			inserted, err := repo.Insert(ctx, name, gofakeit.Email(), gofakeit.Sentence(3))
			require.NoError(t, err)
			insertedIDs = append(insertedIDs, inserted.ID)
		}

		listed, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 4)
		assert.Equal(t, "C", listed[0].Name)
		assert.Equal(t, "B", listed[1].Name)
		assert.Equal(t, "A", listed[2].Name)
		assert.Equal(t, insertedIDs[2], listed[0].ID)
		assert.Equal(t, insertedIDs[0], listed[2].ID)

		seen := make(map[string]bool)
		for _, m := range listed {
			assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
			seen[m.ID] = true
		}
	})
}
