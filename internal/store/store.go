// Package store defines the data-store contract the entity services and the
// query translator are written against. Implementations live in memstore
// (in-process) and pg (PostgreSQL).
package store

import (
	"context"
	"errors"
	"fmt"
)

// Record is one row of an entity: field name -> value. It always carries the
// identity field.
type Record map[string]any

// Clone returns a shallow copy; nested relation slices are copied as well.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if rel, ok := v.([]Record); ok {
			cp := make([]Record, len(rel))
			for i := range rel {
				cp[i] = rel[i].Clone()
			}
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Op is a comparison operator inside a predicate.
type Op string

const (
	OpEq       Op = "eq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains" // case-insensitive substring
)

// Condition is one field-level constraint; a predicate is a conjunction of them.
type Condition struct {
	Field string
	Op    Op
	Value any
}

type OrderKey struct {
	Field string
	Desc  bool
}

// FindOptions is what FindMany receives. Select nil means all fields;
// Take 0 means no limit.
type FindOptions struct {
	Where   []Condition
	OrderBy []OrderKey
	Select  []string
	Include []string
	Skip    int
	Take    int
}

// Delegate holds the CRUD primitives for one entity.
type Delegate interface {
	FindUnique(ctx context.Context, id string, include ...string) (Record, error)
	FindMany(ctx context.Context, opts FindOptions) ([]Record, error)
	Count(ctx context.Context, where []Condition) (int, error)
	Create(ctx context.Context, data Record) (Record, error)
	Update(ctx context.Context, id string, data Record) (Record, error)
	Delete(ctx context.Context, id string) (Record, error)
}

// Store hands out delegates and scopes work in a transaction. Inside WithTx
// every delegate obtained from the tx Store is part of one atomic unit; a
// non-nil error from fn rolls everything back. Calling WithTx on a tx Store
// joins the running transaction.
type Store interface {
	Delegate(entity string) (Delegate, error)
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// ErrNotFound is returned by FindUnique, Update and Delete when no row has the id.
var ErrNotFound = errors.New("store: record not found")

type ConstraintKind string

const (
	ConstraintUnique       ConstraintKind = "unique"
	ConstraintForeignKey   ConstraintKind = "foreign_key"
	ConstraintNotNull      ConstraintKind = "not_null"
	ConstraintInvalidValue ConstraintKind = "invalid_value"
)

// ConstraintError reports a store-enforced integrity violation.
type ConstraintError struct {
	Kind   ConstraintKind
	Entity string
	Field  string
	Detail string
	Err    error
}

func (e *ConstraintError) Error() string {
	msg := fmt.Sprintf("store: %s violation", e.Kind)
	if e.Entity != "" || e.Field != "" {
		msg += fmt.Sprintf(" on %s.%s", e.Entity, e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// AsConstraint unwraps err into a *ConstraintError.
func AsConstraint(err error) (*ConstraintError, bool) {
	var ce *ConstraintError
	ok := errors.As(err, &ce)
	return ce, ok
}

// WithTiebreaker appends idField ascending unless the order already mentions
// it, so paging over equal sort keys is deterministic.
func WithTiebreaker(order []OrderKey, idField string) []OrderKey {
	for _, k := range order {
		if k.Field == idField {
			return order
		}
	}
	out := make([]OrderKey, 0, len(order)+1)
	out = append(out, order...)
	return append(out, OrderKey{Field: idField})
}
