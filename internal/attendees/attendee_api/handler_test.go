package attendee_api_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"ms-checkin/internal/attendees/attendee_api"
	"ms-checkin/internal/attendees/db"
	attendees "ms-checkin/internal/attendees/service"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/badges"
	"ms-checkin/internal/clock"
	"ms-checkin/internal/config"
	"ms-checkin/internal/importer"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/raffle"
	"ms-checkin/internal/testutil"
)

type fakeImporter struct {
	result importer.ImportResult
	err    error
	calls  int
}

func (f *fakeImporter) Import(context.Context) (importer.ImportResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeStatus struct {
	last *importer.ImportResult
	err  error
}

func (f *fakeStatus) LoadLast(context.Context) (*importer.ImportResult, error) {
	return f.last, f.err
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testEnv struct {
	router   http.Handler
	handler  *attendee_api.Handler
	bunDB    *bun.DB
	importer *fakeImporter
	badges   *badges.Generator
}

func newTestEnv(t *testing.T, authCfg config.AuthConfig) *testEnv {
	bunDB := testutil.NewTestDB(t)
	store := db.New(bunDB, clock.NewFixed(time.Date(2013, 9, 20, 9, 30, 0, 0, time.UTC)))
	log := logger.Nop()

	gen, err := badges.NewGenerator("test-secret")
	require.NoError(t, err)

	imp := &fakeImporter{}
	h := &attendee_api.Handler{
		Attendees:   attendees.NewAttendeeService(store, nil, log),
		Raffle:      raffle.NewSelector(store, nil, log),
		Importer:    imp,
		Badges:      gen,
		RaffleRoles: []models.Role{models.RoleAttendee},
		Logger:      log,
	}
	router := attendee_api.NewRouter(h, auth.NewAuthenticator(authCfg, log), []string{"http://localhost:3000"}, log)
	return &testEnv{router: router, handler: h, bunDB: bunDB, importer: imp, badges: gen}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	rec, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
}

func TestSearchAttendees(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	testutil.SeedAttendee(t, env.bunDB, models.Attendee{Code: "A1", FirstName: "Jane", LastName: "Doe"})
	testutil.SeedAttendee(t, env.bunDB, models.Attendee{Code: "A2", FirstName: "Bob"})

	var result struct {
		Searched  bool              `json:"searched"`
		Attendees []models.Attendee `json:"attendees"`
	}

	rec, body := env.do(t, http.MethodGet, "/api/attendees?q=jane", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.True(t, result.Searched)
	require.Len(t, result.Attendees, 1)
	assert.Equal(t, "A1", result.Attendees[0].Code)

	rec, body = env.do(t, http.MethodGet, "/api/attendees?q=zebra", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.True(t, result.Searched)
	assert.NotNil(t, result.Attendees)
	assert.Empty(t, result.Attendees)

	rec, body = env.do(t, http.MethodGet, "/api/attendees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.False(t, result.Searched)
	assert.Empty(t, result.Attendees)
}

func TestListAndGetAttendee(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	a := testutil.SeedAttendee(t, env.bunDB, models.Attendee{Code: "A1"})
	testutil.SeedAttendee(t, env.bunDB, models.Attendee{Code: "A2", Role: models.RoleDeleted})

	rec, body := env.do(t, http.MethodGet, "/api/attendees/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.Attendee
	require.NoError(t, json.Unmarshal(body.Data, &all))
	require.Len(t, all, 1)

	rec, body = env.do(t, http.MethodGet, "/api/attendees/"+strconv.FormatInt(a.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Attendee
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, "A1", got.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/attendees/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/attendees/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAttendee(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	a := testutil.SeedAttendee(t, env.bunDB, models.Attendee{Code: "A1", Email: "old@example.com"})
	path := "/api/attendees/" + strconv.FormatInt(a.ID, 10)

	rec, body := env.do(t, http.MethodPut, path, map[string]string{"email": "new@example.com", "role": "press"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Attendee
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, models.RolePress, got.Role)

	// code and raffled are not editable
	rec, _ = env.do(t, http.MethodPut, path, map[string]interface{}{"code": "HACK", "raffled": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, path, map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/attendees/999", map[string]string{"email": "a@b.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckin(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	a := testutil.SeedAttendee(t, env.bunDB, models.Attendee{Code: "EZ-1", Source: models.SourceEventioz})

	rec, body := env.do(t, http.MethodPost, "/api/checkin", map[string]interface{}{"code": "EZ-1", "source": "eventioz", "day": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Checked in for day 1", body.Message)

	rec, body = env.do(t, http.MethodPost, "/api/checkin", map[string]interface{}{"code": "EZ-1", "source": "eventioz", "day": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Check-in for day 1 cleared", body.Message)

	token, err := env.badges.Token(&a)
	require.NoError(t, err)
	rec, body = env.do(t, http.MethodPost, "/api/checkin", map[string]interface{}{"badge": token, "day": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Attendee
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.NotNil(t, got.CheckinDay2)

	rec, _ = env.do(t, http.MethodPost, "/api/checkin", map[string]interface{}{"badge": "forged", "day": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/checkin", map[string]interface{}{"code": "EZ-1", "source": "eventioz", "day": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/checkin", map[string]interface{}{"code": "NOPE", "source": "eventioz", "day": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	testutil.SeedAttendee(t, env.bunDB, models.Attendee{Code: "A1", Email: "ana@example.com"})

	rec, _ := env.do(t, http.MethodGet, "/api/attendees/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, attendees.CSVHeader, records[0])
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	testutil.SeedAttendees(t, env.bunDB, "att", models.RoleAttendee, 2)

	rec, body := env.do(t, http.MethodGet, "/api/attendees/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats attendees.Stats
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	assert.Equal(t, 2, stats.Total)
}

func TestBadge(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	a := testutil.SeedAttendee(t, env.bunDB, models.Attendee{Code: "EZ-1"})

	rec, _ := env.do(t, http.MethodGet, "/api/attendees/"+strconv.FormatInt(a.ID, 10)+"/badge.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(rec.Body)
	assert.NoError(t, err)

	rec, _ = env.do(t, http.MethodGet, "/api/attendees/999/badge.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportEndpoints(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	env.importer.result = importer.ImportResult{RunID: uuid.New(), Imported: 4, Ignored: 1}

	rec, body := env.do(t, http.MethodPost, "/api/import", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Imported 4, ignored 1", body.Message)
	assert.Equal(t, 1, env.importer.calls)

	env.importer.err = errors.New("database is locked")
	rec, body = env.do(t, http.MethodPost, "/api/import", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, body.Error, "locked")

	rec, _ = env.do(t, http.MethodGet, "/api/import/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.handler.ImportStatus = &fakeStatus{last: &env.importer.result}
	rec, body = env.do(t, http.MethodGet, "/api/import/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var last importer.ImportResult
	require.NoError(t, json.Unmarshal(body.Data, &last))
	assert.Equal(t, 4, last.Imported)
}

func TestRaffleEndpoints(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	testutil.SeedAttendees(t, env.bunDB, "att", models.RoleAttendee, 1)
	testutil.SeedAttendees(t, env.bunDB, "spk", models.RoleSpeaker, 2)

	rec, body := env.do(t, http.MethodGet, "/api/raffle/pool?roles=attendee,speaker&limit=2&fields=id,first_name", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pool []models.Attendee
	require.NoError(t, json.Unmarshal(body.Data, &pool))
	assert.Len(t, pool, 2)

	rec, _ = env.do(t, http.MethodGet, "/api/raffle/pool?roles=vip", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = env.do(t, http.MethodGet, "/api/raffle/pool?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// default roles come from configuration
	rec, body = env.do(t, http.MethodPost, "/api/raffle/draw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var winner models.Attendee
	require.NoError(t, json.Unmarshal(body.Data, &winner))
	assert.Equal(t, models.RoleAttendee, winner.Role)

	rec, body = env.do(t, http.MethodPost, "/api/raffle/draw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No eligible attendees left", body.Message)
	assert.Empty(t, body.Data)

	rec, body = env.do(t, http.MethodPost, "/api/raffle/draw", map[string][]string{"roles": {"speaker"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &winner))
	assert.Equal(t, models.RoleSpeaker, winner.Role)

	rec, _ = env.do(t, http.MethodPost, "/api/raffle/draw", map[string][]string{"roles": {"vip"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffAuthRequired(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("door-2013"), bcrypt.MinCost)
	require.NoError(t, err)
	env := newTestEnv(t, config.AuthConfig{Realm: "checkin", Users: map[string]string{"staff": string(hash)}})

	rec, _ := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/attendees/all", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/attendees/all", nil)
	req.SetBasicAuth("staff", "door-2013")
	authed := httptest.NewRecorder()
	env.router.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)
}
