// Package query turns a client's list request into a validated store query.
//
// A Translator is built per request and chained:
//
//	res, err := query.New(st, reg, registry.Team, params).
//		Filter().Sort().LimitFields().KeywordSearch("").
//		Execute(ctx)
//
// Every step validates field names against the registry. The first failure
// sticks: later steps become no-ops and Execute returns it.
package query

import (
	"context"
	"sort"
	"strings"

	"roster/internal/apperr"
	"roster/internal/registry"
	"roster/internal/store"
)

// Keyword is a case-insensitive substring constraint.
type Keyword struct {
	Field string
	Term  string
}

// Descriptor is the accumulated, validated query.
type Descriptor struct {
	Where   []store.Condition
	OrderBy []store.OrderKey
	Select  []string // nil means all fields
	Keyword *Keyword
	Include []string
	Window  Window
}

// Result is what Execute returns.
type Result struct {
	Data       []store.Record `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

type Translator struct {
	st     store.Store
	entity *registry.Entity
	fields registry.FieldSet
	params Params

	filter     []store.Condition
	order      []store.OrderKey
	sel        []string
	keyword    *Keyword
	include    []string
	pagination *Pagination

	err error
}

// New binds a translator to one entity and one request's params.
// An unknown entity is a ConfigurationError surfaced by Err.
func New(st store.Store, reg *registry.Registry, entity string, params Params) *Translator {
	t := &Translator{st: st, params: params}
	if t.params == nil {
		t.params = Params{}
	}
	e, err := reg.Entity(entity)
	if err != nil {
		t.err = err
		return t
	}
	fields, err := reg.FieldsFor(entity)
	if err != nil {
		t.err = err
		return t
	}
	t.entity, t.fields = e, fields
	return t
}

// Err returns the first error any step produced.
func (t *Translator) Err() error { return t.err }

// Filter turns every non-reserved key into predicate constraints: a scalar
// is equality, a {gt,gte,lt,lte} mapping adds one comparison per operator.
// Values are coerced to the field's kind.
func (t *Translator) Filter() *Translator {
	if t.err != nil {
		return t
	}
	keys := make([]string, 0, len(t.params))
	for k := range t.params {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if bad := t.fields.Unknown(keys...); len(bad) > 0 {
		t.err = apperr.InvalidField(t.entity.Name, bad)
		return t
	}

	var (
		conds     []store.Condition
		badOps    []string
		badValues []string
	)
	for _, key := range keys {
		f, _ := t.entity.Field(key)
		raw := t.params[key]

		ops, nested := operators(raw)
		if !nested {
			v, err := f.Coerce(raw)
			if err != nil {
				badValues = append(badValues, key)
				continue
			}
			conds = append(conds, store.Condition{Field: key, Op: store.OpEq, Value: v})
			continue
		}

		names := make([]string, 0, len(ops))
		for op := range ops {
			names = append(names, op)
		}
		sort.Strings(names)
		for _, op := range names {
			cmp, ok := comparison[op]
			if !ok {
				badOps = append(badOps, key+"["+op+"]")
				continue
			}
			v, err := f.Coerce(ops[op])
			if err != nil {
				badValues = append(badValues, key+"["+op+"]")
				continue
			}
			conds = append(conds, store.Condition{Field: key, Op: cmp, Value: v})
		}
	}
	switch {
	case len(badOps) > 0:
		t.err = apperr.InvalidInput("unsupported filter operator, use gt, gte, lt or lte", badOps...)
	case len(badValues) > 0:
		t.err = apperr.InvalidInput("invalid filter value", badValues...)
	default:
		t.filter = conds
		t.pagination = nil
	}
	return t
}

var comparison = map[string]store.Op{
	"gt":  store.OpGt,
	"gte": store.OpGte,
	"lt":  store.OpLt,
	"lte": store.OpLte,
}

// Sort reads the comma-separated sort key; "-field" is descending, "+field"
// or "field" ascending. Without it results are newest first.
func (t *Translator) Sort() *Translator {
	if t.err != nil {
		return t
	}
	raw, _ := t.params.String(KeySort)
	tokens := splitList(raw)
	if len(tokens) == 0 {
		t.order = t.defaultOrder()
		return t
	}

	order := make([]store.OrderKey, 0, len(tokens))
	names := make([]string, 0, len(tokens))
	var malformed []string
	for _, tok := range tokens {
		name, desc := tok, false
		switch tok[0] {
		case '-':
			name, desc = tok[1:], true
		case '+':
			name = tok[1:]
		}
		if name == "" || strings.ContainsAny(name, "-+") {
			malformed = append(malformed, tok)
			continue
		}
		names = append(names, name)
		order = append(order, store.OrderKey{Field: name, Desc: desc})
	}
	if len(malformed) > 0 {
		t.err = apperr.InvalidInput("malformed sort key, use field, +field or -field", malformed...)
		return t
	}
	if bad := t.fields.Unknown(names...); len(bad) > 0 {
		t.err = apperr.InvalidField(t.entity.Name, bad)
		return t
	}
	t.order = order
	return t
}

func (t *Translator) defaultOrder() []store.OrderKey {
	var order []store.OrderKey
	if t.fields.Has("createdAt") {
		order = append(order, store.OrderKey{Field: "createdAt", Desc: true})
	}
	return append(order, store.OrderKey{Field: t.entity.IDField, Desc: true})
}

// LimitFields reads the comma-separated projection; absent means all fields.
func (t *Translator) LimitFields() *Translator {
	if t.err != nil {
		return t
	}
	raw, _ := t.params.String(KeyFields)
	names := splitList(raw)
	if bad := t.fields.Unknown(names...); len(bad) > 0 {
		t.err = apperr.InvalidField(t.entity.Name, bad)
		return t
	}
	t.sel = names
	return t
}

// KeywordSearch adds a case-insensitive substring match on field (the
// entity's search field when empty). It replaces any filter on that field.
func (t *Translator) KeywordSearch(field string) *Translator {
	if t.err != nil {
		return t
	}
	raw, ok := t.params[KeyKeyword]
	if !ok || raw == nil {
		return t
	}
	if _, nested := operators(raw); nested {
		t.err = apperr.InvalidInput("keyword must be plain text", KeyKeyword)
		return t
	}
	term := strings.TrimSpace(toString(raw))
	if term == "" {
		t.err = apperr.InvalidInput("keyword must not be empty", KeyKeyword)
		return t
	}
	if field == "" {
		field = t.entity.SearchField
	}
	if field == "" {
		field = "name"
	}
	f, ok := t.entity.Field(field)
	if !ok {
		t.err = apperr.InvalidField(t.entity.Name, []string{field})
		return t
	}
	if f.Kind != registry.KindString {
		t.err = apperr.InvalidInput("keyword search needs a text field", field)
		return t
	}
	t.keyword = &Keyword{Field: field, Term: term}
	t.pagination = nil
	return t
}

// Include eager-loads the named relations on every returned record.
func (t *Translator) Include(relations ...string) *Translator {
	if t.err != nil {
		return t
	}
	var bad []string
	for _, r := range relations {
		if _, ok := t.entity.Relation(r); !ok {
			bad = append(bad, r)
		}
	}
	if len(bad) > 0 {
		t.err = apperr.InvalidField(t.entity.Name, bad)
		return t
	}
	t.include = append([]string(nil), relations...)
	return t
}

// Paginate validates page/limit and counts the rows matching the current
// predicate.
func (t *Translator) Paginate(ctx context.Context) *Translator {
	if t.err != nil {
		return t
	}
	page, limit, err := pageParams(t.params)
	if err != nil {
		t.err = err
		return t
	}
	d, err := t.delegate(t.st)
	if err != nil {
		t.err = err
		return t
	}
	total, err := d.Count(ctx, t.where())
	if err != nil {
		t.err = apperr.QueryExecution(t.entity.Name, err)
		return t
	}
	p := ComputePagination(page, limit, total)
	t.pagination = &p
	return t
}

// Pagination returns the computed page info; ok is false before Paginate.
func (t *Translator) Pagination() (Pagination, bool) {
	if t.pagination == nil {
		return Pagination{}, false
	}
	return *t.pagination, true
}

// Descriptor returns a copy of the query assembled so far.
func (t *Translator) Descriptor() Descriptor {
	d := Descriptor{
		Where:   t.where(),
		OrderBy: append([]store.OrderKey(nil), t.order...),
		Select:  append([]string(nil), t.sel...),
		Include: append([]string(nil), t.include...),
	}
	if len(d.Select) == 0 {
		d.Select = nil
	}
	if t.keyword != nil {
		kw := *t.keyword
		d.Keyword = &kw
	}
	if t.pagination != nil {
		d.Window = t.pagination.Window()
	}
	return d
}

// Execute paginates if the caller has not, then fetches one page.
func (t *Translator) Execute(ctx context.Context) (Result, error) {
	if t.err != nil {
		return Result{}, t.err
	}
	if t.pagination == nil {
		if t.Paginate(ctx); t.err != nil {
			return Result{}, t.err
		}
	}
	if t.order == nil {
		t.order = t.defaultOrder()
	}
	d, err := t.delegate(t.st)
	if err != nil {
		return Result{}, err
	}
	w := t.pagination.Window()
	rows, err := d.FindMany(ctx, store.FindOptions{
		Where:   t.where(),
		OrderBy: t.order,
		Select:  t.sel,
		Include: t.include,
		Skip:    w.Skip,
		Take:    w.Take,
	})
	if err != nil {
		return Result{}, apperr.QueryExecution(t.entity.Name, err)
	}
	if rows == nil {
		rows = []store.Record{}
	}
	return Result{Data: rows, Pagination: *t.pagination}, nil
}

// ExecuteWithTransaction runs count and fetch inside one store transaction,
// on a copy of the translator bound to the transactional store.
func (t *Translator) ExecuteWithTransaction(ctx context.Context) (Result, error) {
	if t.err != nil {
		return Result{}, t.err
	}
	var res Result
	err := t.st.WithTx(ctx, func(tx store.Store) error {
		scoped := t.bind(tx)
		r, err := scoped.Execute(ctx)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return Result{}, err
		}
		return Result{}, apperr.Transaction(err)
	}
	return res, nil
}

// bind copies the translator onto another store; the count is redone there.
func (t *Translator) bind(st store.Store) *Translator {
	cp := *t
	cp.st = st
	cp.pagination = nil
	return &cp
}

// where merges filter constraints with the keyword constraint; the keyword
// overrides filters on its field.
func (t *Translator) where() []store.Condition {
	out := make([]store.Condition, 0, len(t.filter)+1)
	for _, c := range t.filter {
		if t.keyword != nil && c.Field == t.keyword.Field {
			continue
		}
		out = append(out, c)
	}
	if t.keyword != nil {
		out = append(out, store.Condition{Field: t.keyword.Field, Op: store.OpContains, Value: t.keyword.Term})
	}
	return out
}

func (t *Translator) delegate(st store.Store) (store.Delegate, error) {
	d, err := st.Delegate(t.entity.Name)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.QueryExecution(t.entity.Name, err)
	}
	return d, nil
}
