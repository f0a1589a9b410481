package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process DocumentStore. It backs local development and
// the service tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

var _ DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]map[string][]byte{}}
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Collection: collection, ID: id, Data: clone(data)}, nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, where ...Where) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkWhere(where); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Document{}
	for id, data := range m.docs[collection] {
		if matches(data, where) {
			out = append(out, Document{Collection: collection, ID: id, Data: clone(data)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, data []byte) error {
	return m.Commit(ctx, SetOp(collection, id, data))
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return m.Commit(ctx, DeleteOp(collection, id))
}

func (m *MemoryStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	return m.Commit(ctx, UnionOp(collection, id, field, values...))
}

func (m *MemoryStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	return m.Commit(ctx, RemoveOp(collection, id, field, values...))
}

// Commit stages every op against a scratch view first and only touches the
// live maps once all of them succeeded.
func (m *MemoryStore) Commit(ctx context.Context, ops ...Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	type staged struct {
		data   []byte
		exists bool
	}
	scratch := map[string]*staged{}
	order := []Op{}

	for _, op := range ops {
		k := op.key()
		st, ok := scratch[k]
		if !ok {
			data, exists := m.docs[op.Collection][op.ID]
			st = &staged{data: data, exists: exists}
			scratch[k] = st
			order = append(order, op)
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
			st.data, st.exists = clone(ch.data), true
		}
	}

	for _, op := range order {
		st := scratch[op.key()]
		if !st.exists {
			delete(m.docs[op.Collection], op.ID)
			continue
		}
		coll, ok := m.docs[op.Collection]
		if !ok {
			coll = map[string][]byte{}
			m.docs[op.Collection] = coll
		}
		coll[op.ID] = st.data
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
