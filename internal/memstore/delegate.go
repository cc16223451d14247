package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"roster/internal/registry"
	"roster/internal/store"
)

type delegate struct {
	s *Store
	e *registry.Entity
}

func (d *delegate) rows(ds dataset) (map[string]store.Record, error) {
	rows, ok := ds[d.e.Name]
	if !ok {
		return nil, unknownEntity(d.e.Name)
	}
	return rows, nil
}

func (d *delegate) FindUnique(ctx context.Context, id string, include ...string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out store.Record
	err := d.s.read(func(ds dataset) error {
		rows, err := d.rows(ds)
		if err != nil {
			return err
		}
		rec, ok := rows[id]
		if !ok {
			return store.ErrNotFound
		}
		out = rec.Clone()
		return d.attach(ds, out, include)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *delegate) FindMany(ctx context.Context, opts store.FindOptions) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []store.Record
	err := d.s.read(func(ds dataset) error {
		rows, err := d.rows(ds)
		if err != nil {
			return err
		}
		hits := make([]store.Record, 0, len(rows))
		for _, rec := range rows {
			if matches(rec, opts.Where) {
				hits = append(hits, rec)
			}
		}
		sortRecords(hits, store.WithTiebreaker(opts.OrderBy, d.e.IDField))
		hits = window(hits, opts.Skip, opts.Take)

		out = make([]store.Record, 0, len(hits))
		for _, rec := range hits {
			row := project(rec, opts.Select)
			if len(opts.Include) > 0 {
				// relations hang off the full record so projection cannot drop the id
				full := rec.Clone()
				if err := d.attach(ds, full, opts.Include); err != nil {
					return err
				}
				for _, name := range opts.Include {
					row[name] = full[name]
				}
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *delegate) Count(ctx context.Context, where []store.Condition) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := d.s.read(func(ds dataset) error {
		rows, err := d.rows(ds)
		if err != nil {
			return err
		}
		for _, rec := range rows {
			if matches(rec, where) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (d *delegate) Create(ctx context.Context, data store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out store.Record
	err := d.s.write(func(ds dataset) error {
		rows, err := d.rows(ds)
		if err != nil {
			return err
		}
		rec := store.Record{}
		if err := d.assign(rec, data); err != nil {
			return err
		}
		for _, f := range d.e.Fields {
			if _, ok := rec[f.Name]; !ok && !d.e.System(f.Name) {
				rec[f.Name] = nil
			}
		}
		if err := d.check(ds, rec, ""); err != nil {
			return err
		}
		now := d.s.stamp()
		id := uuid.NewString()
		rec[d.e.IDField] = id
		if d.e.HasField("createdAt") {
			rec["createdAt"] = now
		}
		if d.e.HasField("updatedAt") {
			rec["updatedAt"] = now
		}
		rows[id] = rec
		out = rec.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *delegate) Update(ctx context.Context, id string, data store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out store.Record
	err := d.s.write(func(ds dataset) error {
		rows, err := d.rows(ds)
		if err != nil {
			return err
		}
		prev, ok := rows[id]
		if !ok {
			return store.ErrNotFound
		}
		next := prev.Clone()
		if err := d.assign(next, data); err != nil {
			return err
		}
		if err := d.check(ds, next, id); err != nil {
			return err
		}
		if d.e.HasField("updatedAt") {
			next["updatedAt"] = d.s.stamp()
		}
		rows[id] = next
		out = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *delegate) Delete(ctx context.Context, id string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out store.Record
	err := d.s.write(func(ds dataset) error {
		rows, err := d.rows(ds)
		if err != nil {
			return err
		}
		prev, ok := rows[id]
		if !ok {
			return store.ErrNotFound
		}
		if ref, field, found := d.incomingRef(ds, id); found {
			return &store.ConstraintError{
				Kind:   store.ConstraintForeignKey,
				Entity: ref,
				Field:  field,
				Detail: fmt.Sprintf("%s %s is still referenced", d.e.Name, id),
			}
		}
		delete(rows, id)
		out = prev.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// assign copies coerced non-system values from data into rec.
func (d *delegate) assign(rec, data store.Record) error {
	for name, v := range data {
		if d.e.System(name) {
			continue
		}
		f, ok := d.e.Field(name)
		if !ok {
			return &store.ConstraintError{
				Kind:   store.ConstraintInvalidValue,
				Entity: d.e.Name,
				Field:  name,
				Detail: "no such column",
			}
		}
		cv, err := f.Coerce(v)
		if err != nil {
			return &store.ConstraintError{
				Kind:   store.ConstraintInvalidValue,
				Entity: d.e.Name,
				Field:  name,
				Detail: err.Error(),
				Err:    err,
			}
		}
		rec[name] = cv
	}
	return nil
}

// check enforces not-null, unique and foreign-key constraints for rec;
// selfID excludes the record itself from the unique scan.
func (d *delegate) check(ds dataset, rec store.Record, selfID string) error {
	for _, f := range d.e.Fields {
		if d.e.System(f.Name) {
			continue
		}
		v := rec[f.Name]
		if v == nil {
			if f.Required {
				return &store.ConstraintError{Kind: store.ConstraintNotNull, Entity: d.e.Name, Field: f.Name}
			}
			continue
		}
		if f.Unique {
			for id, other := range ds[d.e.Name] {
				if id != selfID && other[f.Name] != nil && compare(other[f.Name], v) == 0 {
					return &store.ConstraintError{
						Kind:   store.ConstraintUnique,
						Entity: d.e.Name,
						Field:  f.Name,
						Detail: fmt.Sprintf("%v already exists", v),
					}
				}
			}
		}
		if f.References != "" {
			if _, ok := ds[f.References][toString(v)]; !ok {
				return &store.ConstraintError{
					Kind:   store.ConstraintForeignKey,
					Entity: d.e.Name,
					Field:  f.Name,
					Detail: fmt.Sprintf("%s %v does not exist", f.References, v),
				}
			}
		}
	}
	return nil
}

// incomingRef finds a record of any entity whose foreign key points at id.
func (d *delegate) incomingRef(ds dataset, id string) (entity, field string, ok bool) {
	for _, other := range d.s.reg.Entities() {
		for _, f := range other.Fields {
			if f.References != d.e.Name {
				continue
			}
			for _, rec := range ds[other.Name] {
				if s, _ := rec[f.Name].(string); s == id {
					return other.Name, f.Name, true
				}
			}
		}
	}
	return "", "", false
}

// attach loads the named relations onto rec, oldest child first.
func (d *delegate) attach(ds dataset, rec store.Record, include []string) error {
	id, _ := rec[d.e.IDField].(string)
	for _, name := range include {
		rel, ok := d.e.Relation(name)
		if !ok {
			return fmt.Errorf("memstore: %s has no relation %q", d.e.Name, name)
		}
		target, err := d.s.reg.Entity(rel.Target)
		if err != nil {
			return err
		}
		children := make([]store.Record, 0)
		for _, child := range ds[rel.Target] {
			if s, _ := child[rel.ForeignKey].(string); s == id {
				children = append(children, child.Clone())
			}
		}
		order := []store.OrderKey{{Field: target.IDField}}
		if target.HasField("createdAt") {
			order = append([]store.OrderKey{{Field: "createdAt"}}, order...)
		}
		sortRecords(children, order)
		rec[name] = children
	}
	return nil
}
