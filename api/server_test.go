package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"civic-dispatch/config"
	"civic-dispatch/core/auth"
	"civic-dispatch/core/dispatch"
	"civic-dispatch/core/geo"
	"civic-dispatch/core/store"
	"civic-dispatch/core/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct {
	addr *geo.Address
}

func (g stubGeocoder) Reverse(ctx context.Context, lat, lon float64) (*geo.Address, error) {
	return g.addr, nil
}

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "api.db"),
		Dispatch: config.DispatchConfig{ReassignReopens: true, DefaultNotes: "Assigned via Admin Dashboard", BulkMaxItems: 10, BulkParallelism: 2},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	logger := utils.NopLogger()
	db, err := store.NewDB(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.ApplyMigrations(context.Background(), db, logger))

	reg := prometheus.NewRegistry()
	metrics, err := dispatch.NewMetrics(reg)
	require.NoError(t, err)

	issues := store.NewIssuesStore(db)
	departments := store.NewDepartmentsStore(db)
	officials := store.NewOfficialsStore(db)
	assignments := store.NewAssignmentsStore(db)
	audits := store.NewAuditStore(db)

	resolver := dispatch.NewResolver(stubGeocoder{addr: &geo.Address{Suburb: "Andheri West", City: "Mumbai"}}, time.Second, logger, metrics)
	ranker := dispatch.NewRanker(departments, officials, metrics)
	ledger := dispatch.NewLedger(assignments, audits, dispatch.LedgerOptions{ReassignReopens: true, DefaultNotes: cfg.Dispatch.DefaultNotes}, logger, metrics)
	bulk, err := dispatch.NewBulk(ledger, issues, audits, dispatch.BulkOptions{MaxItems: 10, Parallelism: 2}, logger, metrics)
	require.NoError(t, err)

	s := NewServer(cfg, ServerDeps{
		DB:          db,
		Policy:      testPolicy(t),
		Gatherer:    reg,
		Issues:      issues,
		Departments: departments,
		Officials:   officials,
		Audits:      audits,
		Resolver:    resolver,
		Ranker:      ranker,
		Ledger:      ledger,
		Bulk:        bulk,
		Advisor:     dispatch.NewAdvisor(issues, resolver, ranker),
	}, logger)
	return &testServer{handler: s.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if role != "" {
		req.Header.Set(auth.HeaderUser, role+"@city.gov")
		req.Header.Set(auth.HeaderRoles, role)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func createID(t *testing.T, rr *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return int64(decodeBody(t, rr)["id"].(float64))
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rr)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, rr.Body.String())
	return e["code"].(string)
}

type seeded struct {
	dept, near, far, issue int64
}

func seed(t *testing.T, ts *testServer) seeded {
	t.Helper()
	dept := createID(t, ts.do(t, "POST", "/api/admin/departments", "admin", `{"name":"Roads"}`))
	near := createID(t, ts.do(t, "POST", "/api/admin/officials", "admin", fmt.Sprintf(`{"display_name":"Asha","department_id":%d,"region":"Andheri West"}`, dept)))
	far := createID(t, ts.do(t, "POST", "/api/admin/officials", "admin", fmt.Sprintf(`{"display_name":"Bilal","department_id":%d,"region":"Colaba"}`, dept)))
	issue := createID(t, ts.do(t, "POST", "/api/issues", "citizen", fmt.Sprintf(`{"title":"Pothole","department_id":%d,"latitude":19.1364,"longitude":72.8296}`, dept)))
	return seeded{dept: dept, near: near, far: far, issue: issue}
}

func TestAssignLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	s := seed(t, ts)
	assignPath := fmt.Sprintf("/api/admin/issues/%d/assign", s.issue)

	rr := ts.do(t, "PUT", assignPath, "admin", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, store.StatusUnderProgress, body["status"])
	assert.Equal(t, store.StatusActive, body["previous_status"])
	assert.Equal(t, "Assigned via Admin Dashboard", body["assignment"].(map[string]any)["notes"])

	rr = ts.do(t, "PUT", assignPath, "admin", fmt.Sprintf(`{"assignee_id":"%d","notes":"handover"}`, s.far))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decodeBody(t, rr)["reassigned"])

	rr = ts.do(t, "PUT", assignPath, "admin", `{"assignee_id":null}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body = decodeBody(t, rr)
	assert.Equal(t, store.StatusActive, body["status"])
	assert.Equal(t, true, body["unassigned"])

	rr = ts.do(t, "GET", fmt.Sprintf("/api/admin/issues/%d/history", s.issue), "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := decodeBody(t, rr)["items"].([]any)
	assert.Len(t, items, 3)
}

func TestAssignRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)
	s := seed(t, ts)
	assignPath := fmt.Sprintf("/api/admin/issues/%d/assign", s.issue)

	rr := ts.do(t, "PUT", assignPath, "admin", `{"notes":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "assignee_required", errorCode(t, rr))

	rr = ts.do(t, "PUT", assignPath, "admin", `{"assignee_id":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, "PUT", assignPath, "admin", `{"assignee_id":9999}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "official_not_found", errorCode(t, rr))

	rr = ts.do(t, "PUT", "/api/admin/issues/9999/assign", "admin", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "issue_not_found", errorCode(t, rr))

	orphan := createID(t, ts.do(t, "POST", "/api/issues", "citizen", `{"title":"Streetlight out"}`))
	rr = ts.do(t, "PUT", fmt.Sprintf("/api/admin/issues/%d/assign", orphan), "admin", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "department_not_found", errorCode(t, rr))

	rr = ts.do(t, "PUT", assignPath, "official", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, "PUT", assignPath, "", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCandidatesAndOfficials(t *testing.T) {
	ts := newTestServer(t)
	s := seed(t, ts)

	rr := ts.do(t, "GET", fmt.Sprintf("/api/admin/issues/%d/candidates", s.issue), "admin", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "Andheri West", body["location"].(map[string]any)["region"])
	ranking := body["ranking"].(map[string]any)
	assert.Equal(t, dispatch.ScopeRegional, ranking["scope"])
	assert.Len(t, ranking["candidates"].([]any), 1)

	rr = ts.do(t, "GET", fmt.Sprintf("/api/admin/issues/%d/candidates?broaden=true", s.issue), "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["ranking"].(map[string]any)["candidates"].([]any), 2)

	rr = ts.do(t, "GET", fmt.Sprintf("/api/admin/officials?departmentId=%d&region=Powai", s.dept), "official", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body = decodeBody(t, rr)
	assert.Empty(t, body["items"])
	assert.Equal(t, true, body["suggest_broaden"])

	rr = ts.do(t, "GET", fmt.Sprintf("/api/admin/officials?departmentId=%d", s.dept), "official", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["items"].([]any), 2)

	rr = ts.do(t, "GET", "/api/admin/officials", "official", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, "GET", "/api/admin/officials?departmentId=999", "official", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusAndBulkOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	s := seed(t, ts)
	second := createID(t, ts.do(t, "POST", "/api/issues", "citizen", fmt.Sprintf(`{"title":"Garbage","department_id":%d}`, s.dept)))

	rr := ts.do(t, "PUT", fmt.Sprintf("/api/admin/issues/%d/status", s.issue), "official", `{"status":"under_review","notes":"checked on site"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, store.StatusUnderReview, decodeBody(t, rr)["status"])

	rr = ts.do(t, "PUT", fmt.Sprintf("/api/admin/issues/%d/status", s.issue), "official", `{"status":"done"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, "POST", fmt.Sprintf("/api/admin/issues/%d/status", s.issue), "official", `{"status":"closed"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = ts.do(t, "POST", "/api/admin/issues/bulk", "admin", fmt.Sprintf(`{"operation":"update_status","issue_ids":[%d,%d,4242],"data":{"status":"closed"}}`, s.issue, second))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, float64(2), body["succeeded"])
	assert.Equal(t, float64(1), body["failed"])

	rr = ts.do(t, "POST", "/api/admin/issues/bulk", "admin", `{"operation":"update_status","issue_ids":[],"data":{"status":"closed"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, "POST", "/api/admin/issues/bulk", "official", fmt.Sprintf(`{"operation":"flag_priority","issue_ids":[%d],"data":{"flagged":true}}`, s.issue))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, "GET", fmt.Sprintf("/api/admin/issues?department=%d&status=closed", s.dept), "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["items"].([]any), 2)

	rr = ts.do(t, "GET", "/api/admin/issues?status=bogus", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGeocodeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, "GET", "/api/external/geocode?lat=19.1364&lon=72.8296", "citizen", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "Andheri West", body["region"])
	assert.NotEmpty(t, body["digipin"])

	rr = ts.do(t, "GET", "/api/external/geocode", "citizen", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, dispatch.RegionLocationMissing, decodeBody(t, rr)["region"])

	rr = ts.do(t, "GET", "/api/external/geocode?lat=19.1364", "citizen", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, dispatch.RegionLocationMissing, decodeBody(t, rr)["region"])
	rr = ts.do(t, "GET", "/api/external/geocode?lon=72.8296", "citizen", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, dispatch.RegionLocationMissing, decodeBody(t, rr)["region"])

	rr = ts.do(t, "GET", "/api/external/geocode?lat=north&lon=72.8", "citizen", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, "GET", "/api/external/geocode?lon=east", "citizen", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_lon", errorCode(t, rr))
}

func TestDirectoryValidation(t *testing.T) {
	ts := newTestServer(t)
	createID(t, ts.do(t, "POST", "/api/admin/departments", "admin", `{"name":"Water"}`))

	rr := ts.do(t, "POST", "/api/admin/departments", "admin", `{"name":"Water"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = ts.do(t, "POST", "/api/admin/departments", "admin", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, "POST", "/api/admin/officials", "admin", `{"display_name":"Ghost","department_id":77}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = ts.do(t, "POST", "/api/admin/departments", "citizen", `{"name":"Parks"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, "GET", "/api/admin/departments", "citizen", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["items"].([]any), 1)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	s := seed(t, ts)
	rr := ts.do(t, "PUT", fmt.Sprintf("/api/admin/issues/%d/assign", s.issue), "admin", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `dispatch_assignments_total{outcome="ok"} 1`), rr.Body.String())
}

func TestEdgeMiddlewareFromConfig(t *testing.T) {
	cfg := &config.AppConfig{HTTP: config.HTTPConfig{AllowedOrigins: []string{"https://portal.example"}, RateLimit: 2}}
	s := NewServer(cfg, ServerDeps{Policy: testPolicy(t)}, utils.NopLogger())
	ts := &testServer{handler: s.Handler()}

	req := httptest.NewRequest(http.MethodOptions, "/api/issues", nil)
	req.Header.Set("Origin", "https://portal.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, "https://portal.example", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = ts.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestCategoryRoutingOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	s := seed(t, ts)
	water := createID(t, ts.do(t, "POST", "/api/admin/departments", "admin", `{"name":"Water"}`))
	catPath := fmt.Sprintf("/api/admin/departments/%d/categories", s.dept)

	rr := ts.do(t, "POST", catPath, "admin", `{"category":"Pothole"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []any{"pothole"}, decodeBody(t, rr)["categories"])
	rr = ts.do(t, "POST", catPath, "admin", `{"category":" "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, "POST", fmt.Sprintf("/api/admin/departments/%d/categories", water), "admin", `{"category":"pothole"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = ts.do(t, "POST", "/api/admin/departments/999/categories", "admin", `{"category":"leak"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = ts.do(t, "POST", catPath, "official", `{"category":"leak"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	routed := createID(t, ts.do(t, "POST", "/api/issues", "citizen", `{"title":"Crater","tags":["pothole"]}`))
	rr = ts.do(t, "GET", fmt.Sprintf("/api/admin/issues/%d", routed), "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(s.dept), decodeBody(t, rr)["department_id"])
	rr = ts.do(t, "PUT", fmt.Sprintf("/api/admin/issues/%d/assign", routed), "admin", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	stray := createID(t, ts.do(t, "POST", "/api/issues", "citizen", `{"title":"Noise","tags":["noise"]}`))
	assignStray := fmt.Sprintf("/api/admin/issues/%d/assign", stray)
	rr = ts.do(t, "PUT", assignStray, "admin", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	routePath := fmt.Sprintf("/api/admin/issues/%d/department", stray)
	rr = ts.do(t, "PUT", routePath, "official", fmt.Sprintf(`{"department_id":%d}`, s.dept))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = ts.do(t, "PUT", routePath, "admin", `{"department_id":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(t, "PUT", routePath, "admin", `{"department_id":999}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = ts.do(t, "PUT", routePath, "admin", fmt.Sprintf(`{"department_id":%d}`, s.dept))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Nil(t, body["previous_department_id"])
	issue := body["issue"].(map[string]any)
	assert.Equal(t, float64(s.dept), issue["department_id"])
	assert.Equal(t, store.StatusActive, issue["status"])

	rr = ts.do(t, "GET", fmt.Sprintf("/api/admin/issues/%d/history", stray), "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody(t, rr)["items"].([]any), 1)

	rr = ts.do(t, "PUT", assignStray, "admin", fmt.Sprintf(`{"assignee_id":%d}`, s.near))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(t, "DELETE", catPath+"?category=POTHOLE", "admin", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body = decodeBody(t, rr)
	assert.Equal(t, true, body["removed"])
	assert.Empty(t, body["categories"])
	rr = ts.do(t, "DELETE", catPath, "admin", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
