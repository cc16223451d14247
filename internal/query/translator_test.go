package query_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roster/internal/apperr"
	"roster/internal/memstore"
	"roster/internal/query"
	"roster/internal/registry"
	"roster/internal/store"
)

type fixture struct {
	reg    *registry.Registry
	st     *memstore.Store
	teamID string
}

func newFixture(t *testing.T, teams int) *fixture {
	t.Helper()
	reg := registry.Default()
	st := memstore.New(reg)
	d, err := st.Delegate(registry.Team)
	require.NoError(t, err)

	var first string
	for i := 0; i < teams; i++ {
		rec, err := d.Create(context.Background(), store.Record{
			"name":       fmt.Sprintf("Team %02d", i),
			"shirtColor": "red",
		})
		require.NoError(t, err)
		if i == 0 {
			first = rec["id"].(string)
		}
	}
	return &fixture{reg: reg, st: st, teamID: first}
}

func (f *fixture) addPlayers(t *testing.T, players ...store.Record) {
	t.Helper()
	d, err := f.st.Delegate(registry.Player)
	require.NoError(t, err)
	for _, p := range players {
		p["teamId"] = f.teamID
		if _, ok := p["position"]; !ok {
			p["position"] = "Forward"
		}
		_, err := d.Create(context.Background(), p)
		require.NoError(t, err)
	}
}

func (f *fixture) translator(entity string, p query.Params) *query.Translator {
	return query.New(f.st, f.reg, entity, p)
}

func TestSecondPageOfTwentyFive(t *testing.T) {
	f := newFixture(t, 25)

	res, err := f.translator(registry.Team, query.Params{"page": "2", "limit": "10"}).
		Filter().Sort().LimitFields().KeywordSearch("").
		Execute(context.Background())
	require.NoError(t, err)

	p := res.Pagination
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 3, p.NumberOfPages)
	assert.Equal(t, 25, p.Total)
	require.NotNil(t, p.NextPage)
	require.NotNil(t, p.PrevPage)
	assert.Equal(t, 3, *p.NextPage)
	assert.Equal(t, 1, *p.PrevPage)
	require.Len(t, res.Data, 10)

	// newest first: page two starts at the 11th newest team
	assert.Equal(t, "Team 14", res.Data[0]["name"])
	assert.Equal(t, "Team 05", res.Data[9]["name"])

	res, err = f.translator(registry.Team, query.Params{"page": "3", "limit": "10"}).Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Data, 5)
	assert.Nil(t, res.Pagination.NextPage)
}

func TestKeywordWithFilter(t *testing.T) {
	f := newFixture(t, 1)
	f.addPlayers(t,
		store.Record{"name": "Salah", "salary": 50000},
		store.Record{"name": "Hassan", "salary": 40000},
	)

	res, err := f.translator(registry.Player, query.Params{"keyword": "  sal "}).
		Filter().Sort().LimitFields().KeywordSearch("").
		Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Salah", res.Data[0]["name"])
	assert.Equal(t, 1, res.Pagination.Total)
}

func TestKeywordOverridesFilterOnSameField(t *testing.T) {
	f := newFixture(t, 1)
	f.addPlayers(t,
		store.Record{"name": "Salah", "salary": 50000},
		store.Record{"name": "Sallam", "salary": 10000},
	)

	tr := f.translator(registry.Player, query.Params{"name": "Hassan", "salary": map[string]any{"gte": "20000"}, "keyword": "sal"}).
		Filter().KeywordSearch("")
	require.NoError(t, tr.Err())

	d := tr.Descriptor()
	assert.Equal(t, []store.Condition{
		{Field: "salary", Op: store.OpGte, Value: float64(20000)},
		{Field: "name", Op: store.OpContains, Value: "sal"},
	}, d.Where)
	require.NotNil(t, d.Keyword)
	assert.Equal(t, "name", d.Keyword.Field)

	res, err := tr.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Salah", res.Data[0]["name"])
}

func TestKeywordErrors(t *testing.T) {
	f := newFixture(t, 0)

	err := f.translator(registry.Player, query.Params{"keyword": "   "}).KeywordSearch("").Err()
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	err = f.translator(registry.Player, query.Params{"keyword": "x"}).KeywordSearch("nickname").Err()
	assert.Equal(t, apperr.KindInvalidField, apperr.KindOf(err))

	err = f.translator(registry.Player, query.Params{"keyword": "x"}).KeywordSearch("age").Err()
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	// keyword[gt]=Team is not a search term
	err = f.translator(registry.Team, query.ParseValues(url.Values{"keyword[gt]": {"Team"}})).KeywordSearch("").Err()
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindInvalidInput, e.Kind)
	assert.Equal(t, []string{"keyword"}, e.Fields)

	// absent keyword is a no-op
	tr := f.translator(registry.Player, query.Params{}).KeywordSearch("")
	require.NoError(t, tr.Err())
	assert.Nil(t, tr.Descriptor().Keyword)
}

func TestSortParsing(t *testing.T) {
	f := newFixture(t, 0)

	tr := f.translator(registry.Team, query.Params{"sort": "-name,age"}).Sort()
	e, ok := apperr.As(tr.Err())
	require.True(t, ok)
	assert.Equal(t, apperr.KindInvalidField, e.Kind)
	assert.Equal(t, []string{"age"}, e.Fields)

	tr = f.translator(registry.Team, query.Params{"sort": "-name"}).Sort()
	require.NoError(t, tr.Err())
	assert.Equal(t, []store.OrderKey{{Field: "name", Desc: true}}, tr.Descriptor().OrderBy)

	tr = f.translator(registry.Team, query.Params{"sort": " name , -createdAt"}).Sort()
	require.NoError(t, tr.Err())
	assert.Equal(t, []store.OrderKey{{Field: "name"}, {Field: "createdAt", Desc: true}}, tr.Descriptor().OrderBy)

	tr = f.translator(registry.Team, query.Params{}).Sort()
	require.NoError(t, tr.Err())
	assert.Equal(t, []store.OrderKey{{Field: "createdAt", Desc: true}, {Field: "id", Desc: true}}, tr.Descriptor().OrderBy)

	tr = f.translator(registry.Team, query.Params{"sort": "+name"}).Sort()
	require.NoError(t, tr.Err())
	assert.Equal(t, []store.OrderKey{{Field: "name"}}, tr.Descriptor().OrderBy)
}

func TestSortRejectsMalformedKeys(t *testing.T) {
	f := newFixture(t, 0)

	for _, raw := range []string{"--name", "+-name", "-+name", "-", "+", "name,-"} {
		t.Run(raw, func(t *testing.T) {
			e, ok := apperr.As(f.translator(registry.Team, query.Params{"sort": raw}).Sort().Err())
			require.True(t, ok)
			assert.Equal(t, apperr.KindInvalidInput, e.Kind)
			assert.NotContains(t, e.Fields, "")
		})
	}
}

func TestFilterReportsEveryInvalidField(t *testing.T) {
	f := newFixture(t, 0)

	tr := f.translator(registry.Team, query.Params{"age": "3", "name": "x", "salary": map[string]any{"gt": "1"}, "page": "1"}).Filter()
	e, ok := apperr.As(tr.Err())
	require.True(t, ok)
	assert.Equal(t, apperr.KindInvalidField, e.Kind)
	assert.Equal(t, []string{"age", "salary"}, e.Fields)
}

func TestFilterOperators(t *testing.T) {
	f := newFixture(t, 1)
	f.addPlayers(t,
		store.Record{"name": "Cheap", "salary": 100, "age": 18},
		store.Record{"name": "Mid", "salary": 500, "age": 25},
		store.Record{"name": "Rich", "salary": 900, "age": 31},
	)

	q, err := url.ParseQuery("salary[gte]=100&salary[lt]=900&sort=salary")
	require.NoError(t, err)
	res, err := f.translator(registry.Player, query.ParseValues(q)).Filter().Sort().Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "Cheap", res.Data[0]["name"])
	assert.Equal(t, "Mid", res.Data[1]["name"])

	res, err = f.translator(registry.Player, query.Params{"age": "25"}).Filter().Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Mid", res.Data[0]["name"])
}

func TestFilterRejectsUnknownOperatorAndBadValues(t *testing.T) {
	f := newFixture(t, 0)

	e, ok := apperr.As(f.translator(registry.Player, query.Params{"salary": map[string]string{"gte": "1", "between": "2"}}).Filter().Err())
	require.True(t, ok)
	assert.Equal(t, apperr.KindInvalidInput, e.Kind)
	assert.Equal(t, []string{"salary[between]"}, e.Fields)

	e, ok = apperr.As(f.translator(registry.Player, query.Params{"age": "old", "salary": map[string]any{"lt": "cheap"}}).Filter().Err())
	require.True(t, ok)
	assert.Equal(t, apperr.KindInvalidInput, e.Kind)
	assert.Equal(t, []string{"age", "salary[lt]"}, e.Fields)
}

func TestLimitFields(t *testing.T) {
	f := newFixture(t, 2)

	res, err := f.translator(registry.Team, query.Params{"fields": "name, shirtColor"}).LimitFields().Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, store.Record{"name": "Team 01", "shirtColor": "red"}, res.Data[0])

	e, ok := apperr.As(f.translator(registry.Team, query.Params{"fields": "name,salary,age"}).LimitFields().Err())
	require.True(t, ok)
	assert.Equal(t, []string{"salary", "age"}, e.Fields)
}

func TestInclude(t *testing.T) {
	f := newFixture(t, 1)
	f.addPlayers(t, store.Record{"name": "Salah", "salary": 50000})

	res, err := f.translator(registry.Team, nil).Include("players").Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Len(t, res.Data[0]["players"], 1)

	err = f.translator(registry.Team, nil).Include("coaches").Err()
	assert.Equal(t, apperr.KindInvalidField, apperr.KindOf(err))
}

func TestStickyErrorSkipsLaterSteps(t *testing.T) {
	f := newFixture(t, 3)

	tr := f.translator(registry.Team, query.Params{"sort": "bogus", "limit": "500"}).Sort().Paginate(context.Background())
	assert.Equal(t, apperr.KindInvalidField, apperr.KindOf(tr.Err()))
	_, ok := tr.Pagination()
	assert.False(t, ok)

	_, err := tr.Execute(context.Background())
	assert.Equal(t, apperr.KindInvalidField, apperr.KindOf(err))
}

func TestStepsAreIdempotent(t *testing.T) {
	f := newFixture(t, 0)
	p := query.Params{"name": "Team 01", "sort": "-name", "fields": "name", "keyword": "team"}

	once := f.translator(registry.Team, p).Filter().Sort().LimitFields().KeywordSearch("").Descriptor()
	twice := f.translator(registry.Team, p).Filter().Filter().Sort().Sort().LimitFields().KeywordSearch("").LimitFields().KeywordSearch("").Filter().Descriptor()
	assert.Equal(t, once, twice)
}

func TestUnknownEntity(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.translator("coach", nil).Filter().Execute(context.Background())
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

type failingStore struct{ store.Store }

func (failingStore) Delegate(string) (store.Delegate, error) { return failingDelegate{}, nil }

type failingDelegate struct{ store.Delegate }

func (failingDelegate) Count(context.Context, []store.Condition) (int, error) {
	return 0, errors.New("connection reset")
}

func TestStoreFailureIsQueryExecutionError(t *testing.T) {
	reg := registry.Default()
	_, err := query.New(failingStore{}, reg, registry.Team, nil).Execute(context.Background())
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindQueryExecution, e.Kind)
	assert.False(t, e.Operational())
}

func TestExecuteWithTransaction(t *testing.T) {
	f := newFixture(t, 4)

	res, err := f.translator(registry.Team, query.Params{"limit": "3", "sort": "name"}).
		Filter().Sort().
		ExecuteWithTransaction(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Data, 3)
	assert.Equal(t, 4, res.Pagination.Total)
	assert.Equal(t, "Team 00", res.Data[0]["name"])
}
