package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"civic-dispatch/core/auth"
	"civic-dispatch/core/rbac"
	"civic-dispatch/core/utils"
)

func testPolicy(t *testing.T) *rbac.Policy {
	t.Helper()
	p, err := rbac.NewPolicy(rbac.DefaultRoles())
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return p
}

func TestRequirePermissionDeniesMissingPermission(t *testing.T) {
	s := &Server{policy: testPolicy(t), logger: utils.NopLogger()}
	handler := s.requirePermission(rbac.PermDispatchAssign)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPut, "/api/admin/issues/1/assign", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.PrincipalContextKey, &auth.Principal{
		Username: "ward-officer",
		Roles:    []string{"official"},
	}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", rr.Code)
	}
}

func TestRequirePermissionWithoutPrincipal(t *testing.T) {
	s := &Server{policy: testPolicy(t), logger: utils.NopLogger()}
	handler := s.requirePermission(rbac.PermIssuesView)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/admin/issues", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
}

func TestWithPrincipalAttachesGatewayIdentity(t *testing.T) {
	s := &Server{policy: testPolicy(t), logger: utils.NopLogger()}
	var got *auth.Principal
	handler := s.withPrincipal(s.requirePermission(rbac.PermIssuesView)(func(w http.ResponseWriter, r *http.Request) {
		got = auth.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/issues", nil)
	req.Header.Set(auth.HeaderUser, "admin@city.gov")
	req.Header.Set(auth.HeaderRoles, "Admin")
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got == nil || got.Username != "admin@city.gov" {
		t.Fatalf("principal not attached: %+v", got)
	}

	rr = httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/admin/issues", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without gateway headers, got %d", rr.Code)
	}
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	s := &Server{logger: utils.NopLogger()}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/issues", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	s := &Server{logger: utils.NopLogger()}
	var seen string
	h := s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(headerRequestID)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if seen == "" || rr.Header().Get(headerRequestID) != seen {
		t.Fatalf("expected minted request id, got %q / %q", seen, rr.Header().Get(headerRequestID))
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get(headerRequestID) != "abc-123" {
		t.Fatalf("expected caller id to be kept, got %q", rr.Header().Get(headerRequestID))
	}
}
