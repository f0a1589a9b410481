package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLStore keeps every collection in a single documents table. Postgres
// stores the payload as JSONB, SQLite as TEXT.
type SQLStore struct {
	db     *sqlx.DB
	driver string

	// per-document mutexes so goroutines in this process do not race on the
	// same read-modify-write. Keys are collection/id -> *sync.Mutex
	locks sync.Map
}

var _ DocumentStore = (*SQLStore)(nil)

// NewSQLStore wraps an open handle. The schema must already be migrated.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, driver: db.DriverName()}
}

// OpenPostgres connects, migrates and returns a Postgres-backed store.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	return finishOpen(ctx, db)
}

// OpenSQLite opens (creating if needed) a SQLite file and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return finishOpen(ctx, db)
}

func finishOpen(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	if err := Migrate(db.DB, db.DriverName()); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLStore(db), nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// lockKeys acquires the process-local locks for every key, in sorted order so
// two commits touching the same documents cannot deadlock. Returns unlock func.
func (s *SQLStore) lockKeys(keys []string) func() {
	sort.Strings(keys)
	held := make([]*sync.Mutex, 0, len(keys))
	var prev string
	for i, k := range keys {
		if i > 0 && k == prev {
			continue
		}
		prev = k
		v, _ := s.locks.LoadOrStore(k, &sync.Mutex{})
		m := v.(*sync.Mutex)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, s.db.Rebind(`SELECT data FROM documents WHERE collection = ? AND id = ?`), collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return Document{Collection: collection, ID: id, Data: data}, nil
}

func (s *SQLStore) Query(ctx context.Context, collection string, where ...Where) ([]Document, error) {
	if err := checkWhere(where); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	args := []interface{}{collection}
	for _, w := range where {
		b.WriteString(" AND ")
		b.WriteString(s.filterExpr(w.Field))
		args = append(args, w.Value)
	}
	b.WriteString(" ORDER BY id")

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var row struct {
			ID   string `db:"id"`
			Data []byte `db:"data"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		out = append(out, Document{Collection: collection, ID: row.ID, Data: row.Data})
	}
	return out, rows.Err()
}

// filterExpr compares a top-level field with one bound value. Only JSON
// strings match, as in the memory and redis stores. field has passed
// checkField.
func (s *SQLStore) filterExpr(field string) string {
	if s.driver == DriverSQLite {
		return fmt.Sprintf("json_type(data, '$.%[1]s') = 'text' AND json_extract(data, '$.%[1]s') = ?", field)
	}
	return fmt.Sprintf("jsonb_typeof(data->'%[1]s') = 'string' AND data->>'%[1]s' = ?", field)
}

func (s *SQLStore) Set(ctx context.Context, collection, id string, data []byte) error {
	return s.Commit(ctx, SetOp(collection, id, data))
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	return s.Commit(ctx, DeleteOp(collection, id))
}

func (s *SQLStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	return s.Commit(ctx, UnionOp(collection, id, field, values...))
}

func (s *SQLStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	return s.Commit(ctx, RemoveOp(collection, id, field, values...))
}

func (s *SQLStore) Commit(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		keys = append(keys, op.key())
	}
	unlock := s.lockKeys(keys)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, op := range ops {
		if err := s.applyTx(ctx, tx, op); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SQLStore) applyTx(ctx context.Context, tx *sqlx.Tx, op Op) error {
	var (
		current []byte
		exists  bool
	)
	// Set replaces the document wholesale, no need to read it first.
	if op.Kind != OpSet {
		err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT data FROM documents WHERE collection = ? AND id = ?`+s.lockClause()), op.Collection, op.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			exists = true
		}
	}

	ch, err := apply(op, current, exists)
	if err != nil {
		return err
	}
	switch {
	case ch.skip:
		return nil
	case ch.del:
		_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`), op.Collection, op.ID)
		return err
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`), op.Collection, op.ID, string(ch.data), time.Now().UTC())
	return err
}

func (s *SQLStore) lockClause() string {
	if s.driver == DriverSQLite {
		return ""
	}
	return " FOR UPDATE"
}
