package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns one fresh store per implementation that can run without
// external services.
func backends(t *testing.T) map[string]DocumentStore {
	t.Helper()
	ctx := context.Background()

	sqlite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rs := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	stores := map[string]DocumentStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
		"redis":  rs,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func eachBackend(t *testing.T, fn func(t *testing.T, s DocumentStore)) {
	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func TestBackend_GetMissing(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		_, err := s.Get(context.Background(), CollectionProducts, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBackend_SetGetDelete(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, CollectionProducts, "p1", []byte(`{"name":"Rose","price":10}`)))

		doc, err := s.Get(ctx, CollectionProducts, "p1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Rose","price":10}`, string(doc.Data))

		require.NoError(t, s.Delete(ctx, CollectionProducts, "p1"))
		_, err = s.Get(ctx, CollectionProducts, "p1")
		assert.ErrorIs(t, err, ErrNotFound)

		// deleting again is fine
		assert.NoError(t, s.Delete(ctx, CollectionProducts, "p1"))
	})
}

func TestBackend_SetRejectsNonObject(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		err := s.Set(context.Background(), CollectionProducts, "p1", []byte(`[1,2]`))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestBackend_ArrayUnionAndRemove(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()

		// missing document is created
		require.NoError(t, s.ArrayUnion(ctx, CollectionCarts, "u1", "items", "p1"))
		require.NoError(t, s.ArrayUnion(ctx, CollectionCarts, "u1", "items", "p2", "p1"))

		doc, err := s.Get(ctx, CollectionCarts, "u1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":["p1","p2"]}`, string(doc.Data))

		require.NoError(t, s.ArrayRemove(ctx, CollectionCarts, "u1", "items", "p1", "zzz"))
		doc, err = s.Get(ctx, CollectionCarts, "u1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":["p2"]}`, string(doc.Data))

		// no-op on a missing document, nothing gets created
		require.NoError(t, s.ArrayRemove(ctx, CollectionCarts, "ghost", "items", "p1"))
		_, err = s.Get(ctx, CollectionCarts, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBackend_ArrayUnionKeepsOtherFields(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, CollectionCarts, "u1", []byte(`{"note":"gift","items":null}`)))
		require.NoError(t, s.ArrayUnion(ctx, CollectionCarts, "u1", "items", "p1"))

		doc, err := s.Get(ctx, CollectionCarts, "u1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"note":"gift","items":["p1"]}`, string(doc.Data))
	})
}

func TestBackend_QueryFiltersAndSorts(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, CollectionProducts, "b", []byte(`{"category":"Toys"}`)))
		require.NoError(t, s.Set(ctx, CollectionProducts, "a", []byte(`{"category":"Toys"}`)))
		require.NoError(t, s.Set(ctx, CollectionProducts, "c", []byte(`{"category":"Books"}`)))
		require.NoError(t, s.Set(ctx, CollectionProducts, "d", []byte(`{"category":"toys"}`)))

		docs, err := s.Query(ctx, CollectionProducts, Where{Field: "category", Value: "Toys"})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "a", docs[0].ID)
		assert.Equal(t, "b", docs[1].ID)

		all, err := s.Query(ctx, CollectionProducts)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		none, err := s.Query(ctx, CollectionOrders)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)

		_, err = s.Query(ctx, CollectionProducts, Where{Field: "a.b", Value: "x"})
		assert.ErrorIs(t, err, ErrInvalidField)
	})
}

func TestBackend_QueryMatchesOnlyStrings(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, CollectionOrders, "str", []byte(`{"userId":"5"}`)))
		require.NoError(t, s.Set(ctx, CollectionOrders, "num", []byte(`{"userId":5}`)))
		require.NoError(t, s.Set(ctx, CollectionOrders, "bool", []byte(`{"userId":true}`)))

		docs, err := s.Query(ctx, CollectionOrders, Where{Field: "userId", Value: "5"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "str", docs[0].ID)

		docs, err = s.Query(ctx, CollectionOrders, Where{Field: "userId", Value: "true"})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func TestBackend_UnionRejectsNonStringElements(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		orig := `{"items":[1,null]}`
		require.NoError(t, s.Set(ctx, CollectionCarts, "u1", []byte(orig)))

		err := s.ArrayUnion(ctx, CollectionCarts, "u1", "items", "p1")
		require.ErrorIs(t, err, ErrMalformed)

		doc, err := s.Get(ctx, CollectionCarts, "u1")
		require.NoError(t, err)
		assert.JSONEq(t, orig, string(doc.Data))
	})
}

func TestBackend_CommitIsAllOrNothing(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, CollectionCarts, "u1", []byte(`{"items":"not-an-array"}`)))

		err := s.Commit(ctx,
			SetOp(CollectionOrders, "u1:p1", []byte(`{"status":"Purchased"}`)),
			RemoveOp(CollectionCarts, "u1", "items", "p1"),
		)
		require.ErrorIs(t, err, ErrMalformed)

		_, err = s.Get(ctx, CollectionOrders, "u1:p1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBackend_CommitAppliesInOrder(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		require.NoError(t, s.ArrayUnion(ctx, CollectionCarts, "u1", "items", "p1", "p2"))

		require.NoError(t, s.Commit(ctx,
			SetOp(CollectionOrders, "u1:p1", []byte(`{"status":"Purchased"}`)),
			RemoveOp(CollectionCarts, "u1", "items", "p1"),
		))

		order, err := s.Get(ctx, CollectionOrders, "u1:p1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"Purchased"}`, string(order.Data))

		cart, err := s.Get(ctx, CollectionCarts, "u1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":["p2"]}`, string(cart.Data))
	})
}

func TestBackend_ConcurrentUnionLosesNothing(t *testing.T) {
	eachBackend(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		const n = 8

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.ArrayUnion(ctx, CollectionCarts, "u1", "items", fmt.Sprintf("p%d", i))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		doc, err := s.Get(ctx, CollectionCarts, "u1")
		require.NoError(t, err)
		var cart struct{ Items []string }
		require.NoError(t, json.Unmarshal(doc.Data, &cart))
		assert.Len(t, cart.Items, n)
	})
}
