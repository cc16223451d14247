// Package registry is the static, process-lifetime mapping from entity name
// to its allowed fields and relations. Every client-supplied field name is
// checked against it before reaching the store.
package registry

import (
	"sort"

	"roster/internal/apperr"
)

// FieldSet is the set of allowed field names of one entity.
type FieldSet map[string]struct{}

func (s FieldSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s FieldSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Registry is immutable after New returns and safe for concurrent reads.
type Registry struct {
	order    []string
	entities map[string]*Entity
	fields   map[string]FieldSet
}

// New builds a registry and checks that every reference and relation points
// at a declared entity and field.
func New(entities ...Entity) (*Registry, error) {
	r := &Registry{
		entities: make(map[string]*Entity, len(entities)),
		fields:   make(map[string]FieldSet, len(entities)),
	}
	for i := range entities {
		e := entities[i]
		if e.Name == "" {
			return nil, apperr.Configuration("entity without name")
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, apperr.Configuration("entity %q declared twice", e.Name)
		}
		if e.IDField == "" {
			e.IDField = "id"
		}
		if !e.HasField(e.IDField) {
			return nil, apperr.Configuration("entity %q lacks identity field %q", e.Name, e.IDField)
		}
		set := make(FieldSet, len(e.Fields))
		for _, f := range e.Fields {
			set[f.Name] = struct{}{}
		}
		r.order = append(r.order, e.Name)
		r.entities[e.Name] = &e
		r.fields[e.Name] = set
	}
	for _, name := range r.order {
		e := r.entities[name]
		for _, f := range e.Fields {
			if f.References != "" {
				if _, ok := r.entities[f.References]; !ok {
					return nil, apperr.Configuration("%s.%s references unknown entity %q", e.Name, f.Name, f.References)
				}
			}
		}
		for _, rel := range e.Relations {
			target, ok := r.entities[rel.Target]
			if !ok {
				return nil, apperr.Configuration("%s.%s targets unknown entity %q", e.Name, rel.Name, rel.Target)
			}
			if !target.HasField(rel.ForeignKey) {
				return nil, apperr.Configuration("%s.%s: %s has no field %q", e.Name, rel.Name, rel.Target, rel.ForeignKey)
			}
		}
	}
	return r, nil
}

// MustNew panics on a configuration error; for compiled-in registries.
func MustNew(entities ...Entity) *Registry {
	r, err := New(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

// FieldsFor returns the allowed field names of entity.
func (r *Registry) FieldsFor(entity string) (FieldSet, error) {
	set, ok := r.fields[entity]
	if !ok {
		return nil, apperr.Configuration("unknown entity %q", entity)
	}
	return set, nil
}

// Entity returns the full metadata of entity.
func (r *Registry) Entity(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, apperr.Configuration("unknown entity %q", name)
	}
	return e, nil
}

// Entities returns entities in declaration order; referenced entities are
// declared first, so this is also a safe DDL order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entities[n])
	}
	return out
}

// Unknown returns the names not present in set, de-duplicated, in input order.
func (s FieldSet) Unknown(names ...string) []string {
	var bad []string
	seen := map[string]bool{}
	for _, n := range names {
		if s.Has(n) || seen[n] {
			continue
		}
		seen[n] = true
		bad = append(bad, n)
	}
	return bad
}
