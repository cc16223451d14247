package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"roster/internal/apperr"
	"roster/internal/memstore"
	"roster/internal/registry"
	"roster/internal/roster"
	"roster/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	router *gin.Engine
	svcs   *roster.Services
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	reg := registry.Default()
	log := zaptest.NewLogger(t)
	svcs, err := roster.New(memstore.New(reg), reg, log)
	require.NoError(t, err)
	r, err := NewRouter(svcs, reg, log, opts)
	require.NoError(t, err)
	return &fixture{router: r, svcs: svcs}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func dig(t *testing.T, m map[string]any, keys ...string) any {
	t.Helper()
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		require.True(t, ok, "no object at %q", k)
		cur = obj[k]
	}
	return cur
}

func TestTeamLifecycle(t *testing.T) {
	f := newFixture(t, Options{})

	w, body := f.do(t, http.MethodPost, "/api/v1/teams", gin.H{
		"name":       "Al Ahly",
		"shirtColor": "red",
		"players": []gin.H{
			{"name": "Mo", "age": 31, "salary": 50000, "position": "Forward"},
			{"name": "Hamid", "age": 29, "salary": 40000, "position": "Goalkeeper"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "success", body["status"])
	id := dig(t, body, "data", "team", "id").(string)
	assert.Len(t, dig(t, body, "data", "team", "players"), 2)

	w, body = f.do(t, http.MethodGet, "/api/v1/teams/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Al Ahly", dig(t, body, "data", "team", "name"))
	assert.Len(t, dig(t, body, "data", "team", "players"), 2)

	w, body = f.do(t, http.MethodGet, "/api/v1/teams/"+id+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 90000.0, dig(t, body, "data", "stats", "totalSalary"))
	assert.Equal(t, 2.0, dig(t, body, "data", "stats", "playerCount"))
	assert.Equal(t, 45000.0, dig(t, body, "data", "stats", "averageSalary"))

	w, body = f.do(t, http.MethodGet, "/api/v1/teams/"+id+"/salary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 90000.0, dig(t, body, "data", "totalSalary"))

	w, body = f.do(t, http.MethodPatch, "/api/v1/teams/"+id, gin.H{"shirtColor": "black"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "black", dig(t, body, "data", "team", "shirtColor"))
	assert.Equal(t, "Al Ahly", dig(t, body, "data", "team", "name"))

	// the squad still references the team
	w, body = f.do(t, http.MethodDelete, "/api/v1/teams/"+id, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeForeignKeyError, body["errorCode"])

	w, body = f.do(t, http.MethodGet, "/api/v1/players?teamId="+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, p := range dig(t, body, "data", "players").([]any) {
		pid := p.(map[string]any)["id"].(string)
		w, _ = f.do(t, http.MethodDelete, "/api/v1/players/"+pid, nil)
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	w, _ = f.do(t, http.MethodDelete, "/api/v1/teams/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())

	w, body = f.do(t, http.MethodGet, "/api/v1/teams/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "fail", body["status"])
	assert.Equal(t, string(apperr.KindNotFound), body["errorCode"])
}

func TestStatsOfEmptyTeam(t *testing.T) {
	f := newFixture(t, Options{})
	w, body := f.do(t, http.MethodPost, "/api/v1/teams", gin.H{"name": "Zamalek", "shirtColor": "white"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := dig(t, body, "data", "team", "id").(string)

	w, body = f.do(t, http.MethodGet, "/api/v1/teams/"+id+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, gin.H{"totalSalary": 0.0, "playerCount": 0.0, "averageSalary": 0.0}, gin.H(dig(t, body, "data", "stats").(map[string]any)))
}

func TestListPagination(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	for i := 1; i <= 25; i++ {
		_, err := f.svcs.Teams.CreateOne(ctx, store.Record{"name": fmt.Sprintf("Team %02d", i), "shirtColor": "red"})
		require.NoError(t, err)
	}

	w, body := f.do(t, http.MethodGet, "/api/v1/teams?page=2&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 25.0, body["results"])
	assert.Equal(t, 2.0, dig(t, body, "pagination", "page"))
	assert.Equal(t, 3.0, dig(t, body, "pagination", "numberOfPages"))
	assert.Equal(t, 3.0, dig(t, body, "pagination", "nextPage"))
	assert.Equal(t, 1.0, dig(t, body, "pagination", "prevPage"))

	teams := dig(t, body, "data", "teams").([]any)
	require.Len(t, teams, 10)
	assert.Equal(t, "Team 15", teams[0].(map[string]any)["name"])

	w, body = f.do(t, http.MethodGet, "/api/v1/teams?keyword=team%2007&fields=name", nil)
	require.Equal(t, http.StatusOK, w.Code)
	teams = dig(t, body, "data", "teams").([]any)
	require.Len(t, teams, 1)
	assert.Equal(t, map[string]any{"name": "Team 07"}, teams[0])
}

func TestListRejectsBadQueries(t *testing.T) {
	f := newFixture(t, Options{})
	tests := []struct {
		query string
		code  apperr.Kind
	}{
		{"coach=1", apperr.KindInvalidField},
		{"sort=-height", apperr.KindInvalidField},
		{"page=0", apperr.KindInvalidPage},
		{"limit=500", apperr.KindInvalidLimit},
		{"createdAt[gte]=yesterday", apperr.KindInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			w, body := f.do(t, http.MethodGet, "/api/v1/teams?"+tc.query, nil)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "fail", body["status"])
			assert.Equal(t, string(tc.code), body["errorCode"])
		})
	}
}

func TestPayloadValidation(t *testing.T) {
	f := newFixture(t, Options{})

	w, body := f.do(t, http.MethodPost, "/api/v1/teams", gin.H{"name": "AB", "shirtColor": "gold"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.KindValidation), body["errorCode"])
	details := body["details"].([]any)
	require.Len(t, details, 2)
	assert.Equal(t, "too_short", details[0].(map[string]any)["code"])
	assert.Equal(t, "name", details[0].(map[string]any)["field"])
	assert.Equal(t, "enum_invalid", details[1].(map[string]any)["code"])
	assert.Equal(t, "shirtColor", details[1].(map[string]any)["field"])

	w, body = f.do(t, http.MethodPost, "/api/v1/teams", gin.H{
		"name": "Pyramids", "shirtColor": "blue",
		"players": []gin.H{{"name": "X1", "age": 12, "salary": 10, "position": "Forward"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := []string{}
	for _, d := range body["details"].([]any) {
		fields = append(fields, d.(map[string]any)["field"].(string))
	}
	assert.Equal(t, []string{"players[0].name", "players[0].age"}, fields)

	w, body = f.do(t, http.MethodPost, "/api/v1/players", gin.H{"name": "Mo", "age": 20, "salary": 1, "position": "Forward", "teamId": "nope"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "teamId", dig(t, body, "details").([]any)[0].(map[string]any)["field"])

	w, body = f.do(t, http.MethodPost, "/api/v1/teams", `{"name":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.KindValidation), body["errorCode"])

	w, body = f.do(t, http.MethodPost, "/api/v1/teams", gin.H{"name": 7, "shirtColor": "red"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrTypeMismatch, dig(t, body, "details").([]any)[0].(map[string]any)["code"])

	w, body = f.do(t, http.MethodGet, "/api/v1/teams/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrInvalidUUID, dig(t, body, "details").([]any)[0].(map[string]any)["code"])
}

func TestNamesAreTrimmedBeforeValidation(t *testing.T) {
	f := newFixture(t, Options{})

	w, body := f.do(t, http.MethodPost, "/api/v1/teams", gin.H{"name": "  ab  ", "shirtColor": "red"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "too_short", dig(t, body, "details").([]any)[0].(map[string]any)["code"])

	w, body = f.do(t, http.MethodPost, "/api/v1/teams", gin.H{
		"name": "  Ismaily ", "shirtColor": "yellow",
		"players": []gin.H{{"name": " a ", "age": 20, "salary": 10, "position": "Forward"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "players[0].name", dig(t, body, "details").([]any)[0].(map[string]any)["field"])

	w, body = f.do(t, http.MethodPost, "/api/v1/teams", gin.H{"name": "  Ismaily ", "shirtColor": "yellow"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Ismaily", dig(t, body, "data", "team", "name"))
	id := dig(t, body, "data", "team", "id").(string)

	w, _ = f.do(t, http.MethodPatch, "/api/v1/teams/"+id, gin.H{"name": " x "})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConstraintErrors(t *testing.T) {
	f := newFixture(t, Options{})

	w, _ := f.do(t, http.MethodPost, "/api/v1/teams", gin.H{"name": "Al Ahly", "shirtColor": "red"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, body := f.do(t, http.MethodPost, "/api/v1/teams", gin.H{"name": "Al Ahly", "shirtColor": "blue"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeDuplicateEntry, body["errorCode"])

	w, body = f.do(t, http.MethodPost, "/api/v1/players", gin.H{
		"name": "Mo", "age": 20, "salary": 100, "position": "Forward",
		"teamId": "1b4e28ba-2fa1-4d3b-a3f5-ef19b5a7633b",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeForeignKeyError, body["errorCode"])

	w, body = f.do(t, http.MethodPatch, "/api/v1/players/1b4e28ba-2fa1-4d3b-a3f5-ef19b5a7633b", gin.H{"age": 30})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperr.KindNotFound), body["errorCode"])
}

func TestCreateTeamWithInvalidSquadIsAtomic(t *testing.T) {
	f := newFixture(t, Options{})
	// passes payload validation, fails the store's unique check on the second team
	w, _ := f.do(t, http.MethodPost, "/api/v1/teams", gin.H{"name": "Ismaily", "shirtColor": "yellow"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/teams", gin.H{
		"name": "Ismaily", "shirtColor": "yellow",
		"players": []gin.H{{"name": "Mo", "age": 20, "salary": 100, "position": "Forward"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	_, body := f.do(t, http.MethodGet, "/api/v1/players", nil)
	assert.Equal(t, 0.0, body["results"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid field", apperr.InvalidField("team", []string{"x"}), 400, "INVALID_FIELD"},
		{"not found", apperr.NotFound("team", "1"), 404, "RECORD_NOT_FOUND"},
		{"store not found", store.ErrNotFound, 404, "RECORD_NOT_FOUND"},
		{"unique", &store.ConstraintError{Kind: store.ConstraintUnique, Field: "name"}, 400, CodeDuplicateEntry},
		{"not null", &store.ConstraintError{Kind: store.ConstraintNotNull, Field: "salary"}, 400, CodeInvalidValue},
		{"query", apperr.QueryExecution("team", errors.New("conn reset")), 500, "QUERY_EXECUTION_ERROR"},
		{"unknown", errors.New("boom"), 500, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := classify(tc.err)
			assert.Equal(t, tc.status, p.status)
			assert.Equal(t, tc.code, p.code)
		})
	}
}

func TestInternalErrorsAreHiddenOutsideDevelopment(t *testing.T) {
	for _, dev := range []bool{false, true} {
		t.Run(fmt.Sprint("dev=", dev), func(t *testing.T) {
			f := newFixture(t, Options{Dev: dev})
			f.router.GET("/boom", func(c *gin.Context) {
				fail(c, apperr.Transaction(errors.New("deadlock detected")))
			})
			f.router.GET("/panic", func(c *gin.Context) { panic("nil map") })

			w, body := f.do(t, http.MethodGet, "/boom", nil)
			require.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, "Something went wrong", body["message"])
			if dev {
				assert.Contains(t, body["error"], "deadlock detected")
				assert.Equal(t, "TRANSACTION_ERROR", body["errorCode"])
			} else {
				assert.NotContains(t, body, "error")
				assert.NotContains(t, body, "errorCode")
			}

			w, body = f.do(t, http.MethodGet, "/panic", nil)
			require.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, "Something went wrong", body["message"])
		})
	}
}

func TestMeta(t *testing.T) {
	f := newFixture(t, Options{})
	w, body := f.do(t, http.MethodGet, "/api/v1/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)

	entities := dig(t, body, "data", "entities").([]any)
	require.Len(t, entities, 2)
	team := entities[0].(map[string]any)
	assert.Equal(t, "team", team["entity"])
	assert.Equal(t, "name", team["searchField"])

	var shirt map[string]any
	for _, fl := range team["fields"].([]any) {
		if fl.(map[string]any)["name"] == "shirtColor" {
			shirt = fl.(map[string]any)
		}
	}
	require.NotNil(t, shirt)
	assert.Len(t, shirt["enum"], len(roster.ShirtColors))
}

func TestHealthAndUnknownRoute(t *testing.T) {
	f := newFixture(t, Options{})
	w, body := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, body = f.do(t, http.MethodGet, "/api/v1/coaches", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "fail", body["status"])
}
