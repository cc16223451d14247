// Package service is the generic CRUD facade over one entity's store
// delegate. It turns the store's not-found signal into apperr NotFound,
// strips system fields from writes, and scopes work in transactions.
package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"roster/internal/apperr"
	"roster/internal/metrics"
	"roster/internal/query"
	"roster/internal/registry"
	"roster/internal/store"
)

type Service struct {
	st     store.Store
	reg    *registry.Registry
	entity *registry.Entity
	log    *zap.Logger
}

// New binds a service to entity. A nil logger discards output.
func New(st store.Store, reg *registry.Registry, entity string, log *zap.Logger) (*Service, error) {
	e, err := reg.Entity(entity)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		st:     st,
		reg:    reg,
		entity: e,
		log:    log.With(zap.String("entity", e.Name)),
	}, nil
}

func (s *Service) Entity() *registry.Entity { return s.entity }

// Sibling returns the service of another entity on the same store. Inside a
// transaction the sibling joins it.
func (s *Service) Sibling(entity string) (*Service, error) {
	e, err := s.reg.Entity(entity)
	if err != nil {
		return nil, err
	}
	return &Service{st: s.st, reg: s.reg, entity: e, log: s.log.With(zap.String("entity", e.Name))}, nil
}

func (s *Service) GetOne(ctx context.Context, id string, include ...string) (store.Record, error) {
	var bad []string
	for _, r := range include {
		if _, ok := s.entity.Relation(r); !ok {
			bad = append(bad, r)
		}
	}
	if len(bad) > 0 {
		return nil, s.done("getOne", id, apperr.InvalidField(s.entity.Name, bad))
	}
	key, ok := s.canonicalID(id)
	if !ok {
		return nil, s.done("getOne", id, apperr.NotFound(s.entity.Name, id))
	}
	d, err := s.st.Delegate(s.entity.Name)
	if err != nil {
		return nil, s.done("getOne", id, err)
	}
	rec, err := d.FindUnique(ctx, key, include...)
	if err != nil {
		return nil, s.done("getOne", id, s.notFound(id, err))
	}
	return rec, s.done("getOne", id, nil)
}

// GetAll runs the list pipeline: filter, sort, projection, keyword, page.
func (s *Service) GetAll(ctx context.Context, params query.Params) (query.Result, error) {
	res, err := query.New(s.st, s.reg, s.entity.Name, params).
		Filter().
		Sort().
		LimitFields().
		KeywordSearch("").
		Execute(ctx)
	return res, s.done("getAll", "", err)
}

// CreateOne inserts data; identity and timestamps are assigned by the store.
func (s *Service) CreateOne(ctx context.Context, data store.Record) (store.Record, error) {
	clean, err := s.prepare(data)
	if err != nil {
		return nil, s.done("createOne", "", err)
	}
	d, err := s.st.Delegate(s.entity.Name)
	if err != nil {
		return nil, s.done("createOne", "", err)
	}
	rec, err := d.Create(ctx, clean)
	if err != nil {
		return nil, s.done("createOne", "", err)
	}
	id, _ := rec[s.entity.IDField].(string)
	return rec, s.done("createOne", id, nil)
}

// UpdateOne applies a partial update. A missing id is reported by the store
// itself, so there is no read before the write.
func (s *Service) UpdateOne(ctx context.Context, id string, data store.Record) (store.Record, error) {
	key, ok := s.canonicalID(id)
	if !ok {
		return nil, s.done("updateOne", id, apperr.NotFound(s.entity.Name, id))
	}
	clean, err := s.prepare(data)
	if err != nil {
		return nil, s.done("updateOne", id, err)
	}
	d, err := s.st.Delegate(s.entity.Name)
	if err != nil {
		return nil, s.done("updateOne", id, err)
	}
	rec, err := d.Update(ctx, key, clean)
	if err != nil {
		return nil, s.done("updateOne", id, s.notFound(id, err))
	}
	return rec, s.done("updateOne", id, nil)
}

// DeleteOne removes the record and returns its last state.
func (s *Service) DeleteOne(ctx context.Context, id string) (store.Record, error) {
	key, ok := s.canonicalID(id)
	if !ok {
		return nil, s.done("deleteOne", id, apperr.NotFound(s.entity.Name, id))
	}
	d, err := s.st.Delegate(s.entity.Name)
	if err != nil {
		return nil, s.done("deleteOne", id, err)
	}
	rec, err := d.Delete(ctx, key)
	if err != nil {
		return nil, s.done("deleteOne", id, s.notFound(id, err))
	}
	return rec, s.done("deleteOne", id, nil)
}

// Transaction runs fn with a service bound to one store transaction. Any
// error from fn rolls back. apperr and constraint errors come back as they
// are; anything else becomes a TransactionError.
func (s *Service) Transaction(ctx context.Context, fn func(tx *Service) error) error {
	err := s.st.WithTx(ctx, func(tx store.Store) error {
		return fn(s.bind(tx))
	})
	if err == nil {
		return s.done("transaction", "", nil)
	}
	if _, ok := apperr.As(err); ok {
		return s.done("transaction", "", err)
	}
	if _, ok := store.AsConstraint(err); ok {
		return s.done("transaction", "", err)
	}
	return s.done("transaction", "", apperr.Transaction(err))
}

func (s *Service) bind(tx store.Store) *Service {
	cp := *s
	cp.st = tx
	return &cp
}

// prepare drops system fields, rejects unknown ones and coerces values.
func (s *Service) prepare(data store.Record) (store.Record, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		if !s.entity.System(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var unknown, invalid []string
	out := make(store.Record, len(keys))
	for _, k := range keys {
		f, ok := s.entity.Field(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		v, err := f.Coerce(data[k])
		if err != nil {
			invalid = append(invalid, k)
			continue
		}
		out[k] = v
	}
	if len(unknown) > 0 {
		return nil, apperr.InvalidField(s.entity.Name, unknown)
	}
	if len(invalid) > 0 {
		return nil, apperr.InvalidInput("invalid value", invalid...)
	}
	return out, nil
}

// canonicalID normalises id to the identity field's kind; ids that cannot be
// valid never match a record.
func (s *Service) canonicalID(id string) (string, bool) {
	f, ok := s.entity.Field(s.entity.IDField)
	if !ok {
		return id, true
	}
	v, err := f.Coerce(id)
	if err != nil {
		return "", false
	}
	key, ok := v.(string)
	return key, ok
}

func (s *Service) notFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(s.entity.Name, id)
	}
	return err
}

// done logs and counts one operation and returns err unchanged.
func (s *Service) done(op, id string, err error) error {
	outcome := "ok"
	switch e, ok := apperr.As(err); {
	case err == nil:
	case ok && e.Kind == apperr.KindNotFound:
		outcome = "not_found"
	case ok && e.Operational():
		outcome = "invalid"
	default:
		if _, isConstraint := store.AsConstraint(err); isConstraint {
			outcome = "invalid"
		} else {
			outcome = "error"
		}
	}
	metrics.StoreOp(s.entity.Name, op, outcome)

	fields := []zap.Field{zap.String("op", op), zap.String("outcome", outcome)}
	if id != "" {
		fields = append(fields, zap.String("id", id))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.log.Debug("entity operation", fields...)
	return err
}
