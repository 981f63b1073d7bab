package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderDoc struct {
	UserID string `json:"userId"`
	Total  string `json:"total"`
}

// exerciseStore runs the behaviour every Store implementation shares.
// reset must leave the store empty.
func exerciseStore(t *testing.T, s Store, reset func()) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		reset()
		// given
		created, err := s.Create(ctx, "orders", orderDoc{UserID: "u1", Total: "10.00"})
		require.NoError(t, err)

		// when
		got, err := s.Get(ctx, "orders", created.ID)

		// then
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.False(t, got.CreatedAt.IsZero())
		var o orderDoc
		require.NoError(t, got.Decode(&o))
		assert.Equal(t, orderDoc{UserID: "u1", Total: "10.00"}, o)
	})

	t.Run("get missing", func(t *testing.T) {
		reset()
		_, err := s.Get(ctx, "orders", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put replaces data and keeps createdAt", func(t *testing.T) {
		reset()
		// given
		first, err := s.Put(ctx, "users", "uid-1", map[string]any{"name": "Ann", "email": "ann@example.com"})
		require.NoError(t, err)

		// when
		second, err := s.Put(ctx, "users", "uid-1", map[string]any{"name": "Anna"})

		// then
		require.NoError(t, err)
		assert.Equal(t, first.CreatedAt, second.CreatedAt)
		assert.Equal(t, "Anna", second.Field("name").String())
		assert.False(t, second.Field("email").Exists())
	})

	t.Run("merge keeps untouched keys", func(t *testing.T) {
		reset()
		// given
		_, err := s.Merge(ctx, "users", "uid-2", map[string]any{"name": "Bob", "email": "bob@example.com"})
		require.NoError(t, err)

		// when
		doc, err := s.Merge(ctx, "users", "uid-2", map[string]any{"name": "Robert"})

		// then
		require.NoError(t, err)
		assert.Equal(t, "Robert", doc.Field("name").String())
		assert.Equal(t, "bob@example.com", doc.Field("email").String())
	})

	t.Run("update missing", func(t *testing.T) {
		reset()
		_, err := s.Update(ctx, "users", "ghost", map[string]any{"name": "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update existing", func(t *testing.T) {
		reset()
		// given
		_, err := s.Put(ctx, "users", "uid-3", map[string]any{"name": "Cy", "phone": "1"})
		require.NoError(t, err)

		// when
		doc, err := s.Update(ctx, "users", "uid-3", map[string]any{"phone": "2"})

		// then
		require.NoError(t, err)
		assert.Equal(t, "Cy", doc.Field("name").String())
		assert.Equal(t, "2", doc.Field("phone").String())
	})

	t.Run("delete", func(t *testing.T) {
		reset()
		// given
		_, err := s.Put(ctx, "users", "uid-4", map[string]any{"name": "Di"})
		require.NoError(t, err)

		// when
		require.NoError(t, s.Delete(ctx, "users", "uid-4"))

		// then
		_, err = s.Get(ctx, "users", "uid-4")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, s.Delete(ctx, "users", "uid-4"))
	})

	t.Run("filtered and ordered query with index", func(t *testing.T) {
		reset()
		// given
		for _, total := range []string{"1", "2", "3"} {
			_, err := s.Create(ctx, "orders", orderDoc{UserID: "u1", Total: total})
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, "orders", orderDoc{UserID: "u2", Total: "9"})
		require.NoError(t, err)

		// when
		docs, err := s.Query(ctx, Where("orders", "userId", "u1").Sorted(FieldCreatedAt, true))

		// then
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, "3", docs[0].Field("total").String())
		assert.Equal(t, "1", docs[2].Field("total").String())
	})

	t.Run("filtered and ordered query without index", func(t *testing.T) {
		reset()
		_, err := s.Query(ctx, Where("users", "email", "a@b.c").Sorted(FieldCreatedAt, false))
		assert.ErrorIs(t, err, ErrIndexMissing)
	})

	t.Run("sorted query falls back without index", func(t *testing.T) {
		reset()
		// given
		for _, name := range []string{"b", "a", "c"} {
			_, err := s.Create(ctx, "reviews", map[string]any{"product": "p1", "name": name})
			require.NoError(t, err)
		}

		// when
		docs, fallback, err := QuerySorted(ctx, s, Where("reviews", "product", "p1").Sorted("name", false))

		// then
		require.NoError(t, err)
		assert.True(t, fallback)
		require.Len(t, docs, 3)
		assert.Equal(t, "a", docs[0].Field("name").String())
		assert.Equal(t, "c", docs[2].Field("name").String())
	})

	t.Run("invalid names are rejected", func(t *testing.T) {
		_, err := s.Query(ctx, Where("orders", "userId'; drop", "x"))
		assert.ErrorIs(t, err, ErrInvalidQuery)
		_, err = s.Put(ctx, "bad-name", "1", map[string]any{})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("non object data is rejected", func(t *testing.T) {
		_, err := s.Put(ctx, "users", "uid-5", []int{1, 2})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}
