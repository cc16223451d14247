// Package pg is the PostgreSQL store.Store. Tables and columns follow the
// registry: one table per entity, camelCase quoted columns, uuid ids.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"roster/internal/registry"
	"roster/internal/store"
)

type Store struct {
	db  *sqlx.DB
	reg *registry.Registry
	now func() time.Time

	ext sqlx.ExtContext // db, or tx inside WithTx
	tx  *sqlx.Tx
}

func New(db *sqlx.DB, reg *registry.Registry) *Store {
	return &Store{db: db, reg: reg, now: time.Now, ext: db}
}

func (s *Store) Delegate(entity string) (store.Delegate, error) {
	e, err := s.reg.Entity(entity)
	if err != nil {
		return nil, err
	}
	return &delegate{s: s, e: e}, nil
}

// WithTx runs fn in one database transaction; a nested call joins it.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	view := &Store{db: s.db, reg: s.reg, now: s.now, ext: tx, tx: tx}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate("", err)
	}
	return nil
}

type delegate struct {
	s *Store
	e *registry.Entity
}

func (d *delegate) rebind(q string) string { return d.s.ext.Rebind(q) }

// query runs q and scans every row into a Record.
func (d *delegate) query(ctx context.Context, q string, args ...any) ([]store.Record, error) {
	rows, err := d.s.ext.QueryxContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, translate(d.e.Name, err)
	}
	defer rows.Close()

	out := []store.Record{}
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, translate(d.e.Name, err)
		}
		out = append(out, normalize(m))
	}
	if err := rows.Err(); err != nil {
		return nil, translate(d.e.Name, err)
	}
	return out, nil
}

// one expects exactly one row and reports none as store.ErrNotFound.
func (d *delegate) one(ctx context.Context, q string, args ...any) (store.Record, error) {
	recs, err := d.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

func (d *delegate) FindUnique(ctx context.Context, id string, include ...string) (store.Record, error) {
	q, args := findUniqueSQL(d.e, id)
	rec, err := d.one(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if err := d.attach(ctx, []store.Record{rec}, include); err != nil {
		return nil, err
	}
	return rec, nil
}

func (d *delegate) FindMany(ctx context.Context, opts store.FindOptions) ([]store.Record, error) {
	q, args, addedID, err := selectSQL(d.e, opts)
	if err != nil {
		return nil, err
	}
	recs, err := d.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if err := d.attach(ctx, recs, opts.Include); err != nil {
		return nil, err
	}
	if addedID {
		for _, r := range recs {
			delete(r, d.e.IDField)
		}
	}
	return recs, nil
}

func (d *delegate) Count(ctx context.Context, where []store.Condition) (int, error) {
	q, args, err := countSQL(d.e, where)
	if err != nil {
		return 0, err
	}
	var n int
	if err := d.s.ext.QueryRowxContext(ctx, d.rebind(q), args...).Scan(&n); err != nil {
		return 0, translate(d.e.Name, err)
	}
	return n, nil
}

func (d *delegate) Create(ctx context.Context, data store.Record) (store.Record, error) {
	rec, err := d.values(data)
	if err != nil {
		return nil, err
	}
	now := d.s.now().UTC()
	rec[d.e.IDField] = uuid.NewString()
	if d.e.HasField("createdAt") {
		rec["createdAt"] = now
	}
	if d.e.HasField("updatedAt") {
		rec["updatedAt"] = now
	}
	q, args, err := insertSQL(d.e, rec)
	if err != nil {
		return nil, err
	}
	return d.one(ctx, q, args...)
}

func (d *delegate) Update(ctx context.Context, id string, data store.Record) (store.Record, error) {
	rec, err := d.values(data)
	if err != nil {
		return nil, err
	}
	if d.e.HasField("updatedAt") {
		rec["updatedAt"] = d.s.now().UTC()
	}
	q, args, err := updateSQL(d.e, id, rec)
	if err != nil {
		return nil, err
	}
	return d.one(ctx, q, args...)
}

func (d *delegate) Delete(ctx context.Context, id string) (store.Record, error) {
	q, args := deleteSQL(d.e, id)
	return d.one(ctx, q, args...)
}

// values keeps non-system fields and coerces them to the column kind.
func (d *delegate) values(data store.Record) (store.Record, error) {
	out := make(store.Record, len(data)+3)
	for name, v := range data {
		if d.e.System(name) {
			continue
		}
		f, ok := d.e.Field(name)
		if !ok {
			return nil, &store.ConstraintError{Kind: store.ConstraintInvalidValue, Entity: d.e.Name, Field: name, Detail: "no such column"}
		}
		cv, err := f.Coerce(v)
		if err != nil {
			return nil, &store.ConstraintError{Kind: store.ConstraintInvalidValue, Entity: d.e.Name, Field: name, Detail: err.Error(), Err: err}
		}
		out[name] = cv
	}
	return out, nil
}

// attach loads each relation for all parents with one IN query.
func (d *delegate) attach(ctx context.Context, parents []store.Record, include []string) error {
	if len(include) == 0 || len(parents) == 0 {
		return nil
	}
	ids := make([]any, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p[d.e.IDField])
	}
	for _, name := range include {
		rel, ok := d.e.Relation(name)
		if !ok {
			return fmt.Errorf("pg: %s has no relation %q", d.e.Name, name)
		}
		target, err := d.s.reg.Entity(rel.Target)
		if err != nil {
			return err
		}
		base, err := relationSQL(target, rel)
		if err != nil {
			return err
		}
		q, args, err := sqlx.In(base, ids)
		if err != nil {
			return err
		}
		child := &delegate{s: d.s, e: target}
		children, err := child.query(ctx, q, args...)
		if err != nil {
			return err
		}

		byParent := make(map[string][]store.Record, len(parents))
		for _, c := range children {
			key := fmt.Sprint(c[rel.ForeignKey])
			byParent[key] = append(byParent[key], c)
		}
		for _, p := range parents {
			list := byParent[fmt.Sprint(p[d.e.IDField])]
			if list == nil {
				list = []store.Record{}
			}
			p[name] = list
		}
	}
	return nil
}

// normalize turns driver values into the kinds the rest of the code uses.
func normalize(m map[string]any) store.Record {
	out := make(store.Record, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case []byte:
			out[k] = string(t)
		case time.Time:
			out[k] = t.UTC()
		case int32:
			out[k] = int64(t)
		case float32:
			out[k] = float64(t)
		case [16]byte:
			out[k] = uuid.UUID(t).String()
		default:
			out[k] = v
		}
	}
	return out
}
