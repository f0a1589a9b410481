package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Collections used by the storefront.
const (
	CollectionUsers          = "users"
	CollectionSessions       = "sessions"
	CollectionCategories     = "categories"
	CollectionProducts       = "products"
	CollectionProductDetails = "productdetails"
	CollectionCarts          = "carts"
	CollectionOrders         = "orders"
)

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrMalformed is returned when a stored document cannot be interpreted,
	// e.g. an array operation targets a field that is not an array.
	ErrMalformed = errors.New("malformed document")
	// ErrInvalidField is returned for field names that are not plain identifiers.
	ErrInvalidField = errors.New("invalid field name")
)

// Document is one stored record. Data is a JSON object.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
}

// Where is an equality filter on a top-level string field.
type Where struct {
	Field string
	Value string
}

// DocumentStore is a small document database: named collections of JSON
// objects keyed by id.
//
// ArrayUnion, ArrayRemove and Commit are atomic per call. ArrayUnion creates
// the document when it is missing and never duplicates a value; ArrayRemove
// on a missing document is a no-op. Delete of a missing document is a no-op.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, where ...Where) ([]Document, error)
	Set(ctx context.Context, collection, id string, data []byte) error
	Delete(ctx context.Context, collection, id string) error
	ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error
	ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error

	// Commit applies all ops in order, all or nothing.
	Commit(ctx context.Context, ops ...Op) error

	Ping(ctx context.Context) error
	Close() error
}

type OpKind int

const (
	OpSet OpKind = iota + 1
	OpDelete
	OpArrayUnion
	OpArrayRemove
)

// Op is one write inside a Commit.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       []byte
	Field      string
	Values     []string
}

func SetOp(collection, id string, data []byte) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Data: data}
}

func DeleteOp(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

func UnionOp(collection, id, field string, values ...string) Op {
	return Op{Kind: OpArrayUnion, Collection: collection, ID: id, Field: field, Values: values}
}

func RemoveOp(collection, id, field string, values ...string) Op {
	return Op{Kind: OpArrayRemove, Collection: collection, ID: id, Field: field, Values: values}
}

func (o Op) key() string { return o.Collection + "/" + o.ID }
