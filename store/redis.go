package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
)

const (
	redisPrefix     = "giftshop"
	redisMaxRetries = 32
)

// RedisStore keeps each document as a JSON string under
// giftshop:<collection>:<id> and tracks ids per collection in the set
// giftshop:<collection>. Commit uses optimistic WATCH/MULTI transactions.
type RedisStore struct {
	client *redis.Client
}

var _ DocumentStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis dials addr and checks the connection.
func OpenRedis(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStore(client), nil
}

func docKey(collection, id string) string {
	return redisPrefix + ":" + collection + ":" + id
}

func indexKey(collection string) string {
	return redisPrefix + ":" + collection
}

func (r *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	data, err := r.client.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return Document{Collection: collection, ID: id, Data: data}, nil
}

func (r *RedisStore) Query(ctx context.Context, collection string, where ...Where) ([]Document, error) {
	if err := checkWhere(where); err != nil {
		return nil, err
	}
	ids, err := r.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	out := []Document{}
	if len(ids) == 0 {
		return out, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection, id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index entry without a document, removed concurrently
			continue
		}
		if matches([]byte(s), where) {
			out = append(out, Document{Collection: collection, ID: ids[i], Data: []byte(s)})
		}
	}
	return out, nil
}

func (r *RedisStore) Set(ctx context.Context, collection, id string, data []byte) error {
	return r.Commit(ctx, SetOp(collection, id, data))
}

func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	return r.Commit(ctx, DeleteOp(collection, id))
}

func (r *RedisStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	return r.Commit(ctx, UnionOp(collection, id, field, values...))
}

func (r *RedisStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	return r.Commit(ctx, RemoveOp(collection, id, field, values...))
}

// Commit watches every touched key, computes the result client side and
// writes it in one MULTI block. A concurrent change to a watched key aborts
// the block and the whole commit is retried.
func (r *RedisStore) Commit(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		keys = append(keys, docKey(op.Collection, op.ID))
	}

	txf := func(tx *redis.Tx) error {
		type staged struct {
			op     Op
			data   []byte
			exists bool
		}
		scratch := map[string]*staged{}
		order := []string{}

		for _, op := range ops {
			k := docKey(op.Collection, op.ID)
			st, ok := scratch[k]
			if !ok {
				st = &staged{op: op}
				data, err := tx.Get(ctx, k).Bytes()
				switch {
				case errors.Is(err, redis.Nil):
				case err != nil:
					return err
				default:
					st.data, st.exists = data, true
				}
				scratch[k] = st
				order = append(order, k)
			}
			ch, err := apply(op, st.data, st.exists)
			if err != nil {
				return err
			}
			switch {
			case ch.skip:
			case ch.del:
				st.data, st.exists = nil, false
			default:
				st.data, st.exists = ch.data, true
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range order {
				st := scratch[k]
				if st.exists {
					pipe.Set(ctx, k, st.data, 0)
					pipe.SAdd(ctx, indexKey(st.op.Collection), st.op.ID)
				} else {
					pipe.Del(ctx, k)
					pipe.SRem(ctx, indexKey(st.op.Collection), st.op.ID)
				}
			}
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis commit: too much contention on %v", keys)
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisStore) Close() error { return r.client.Close() }
