package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/crosslink/internal/auth"
	"horse.fit/crosslink/internal/index"
	"horse.fit/crosslink/internal/linkplan"
)

type fakePlanner struct {
	result *linkplan.PlanResult
	err    error
	calls  int
}

func (f *fakePlanner) PlanAndApply(ctx context.Context, articleUUID string) (*linkplan.PlanResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

const testArticleUUID = "6f2d9f3e-4c1a-4b9d-9a7e-2f8c5d1e0b3a"

func newTestServer(t *testing.T, planner Planner, token string) *Server {
	t.Helper()

	hash := ""
	if token != "" {
		var err error
		hash, err = auth.HashToken(token)
		if err != nil {
			t.Fatalf("hash token: %v", err)
		}
	}
	return &Server{
		planner: planner,
		logger:  zerolog.Nop(),
		opts:    Options{APITokenHash: hash},
	}
}

func decodeJSend(t *testing.T, rec *httptest.ResponseRecorder) jsendResponse {
	t.Helper()
	var resp jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakePlanner{}, "")
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeJSend(t, rec); resp.Status != "success" {
		t.Fatalf("expected success, got %q", resp.Status)
	}
}

func TestHandlePlan_RequiresToken(t *testing.T) {
	t.Parallel()

	planner := &fakePlanner{result: &linkplan.PlanResult{}}
	srv := newTestServer(t, planner, "secret-token")
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles/"+testArticleUUID+"/links/plan", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/articles/"+testArticleUUID+"/links/plan", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
	if planner.calls != 0 {
		t.Fatalf("planner must not run unauthenticated")
	}
}

func TestHandlePlan_DisabledWithoutConfiguredToken(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakePlanner{}, "")
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles/"+testArticleUUID+"/links/plan", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when no token hash is configured, got %d", rec.Code)
	}
}

func TestHandlePlan_Success(t *testing.T) {
	t.Parallel()

	planner := &fakePlanner{result: &linkplan.PlanResult{
		SourceUUID: testArticleUUID,
		Applied: []linkplan.AppliedLink{
			{LinkUUID: "l1", TargetSlug: "other", AnchorText: "solar panels here"},
		},
	}}
	srv := newTestServer(t, planner, "secret-token")
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles/"+testArticleUUID+"/links/plan", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSend(t, rec)
	if resp.Status != "success" {
		t.Fatalf("expected success, got %q", resp.Status)
	}
	if planner.calls != 1 {
		t.Fatalf("expected one planner call, got %d", planner.calls)
	}
}

func TestHandlePlan_BackendOutageIsRetryable(t *testing.T) {
	t.Parallel()

	planner := &fakePlanner{err: &index.BackendError{Op: "dense search", Err: fmt.Errorf("timeout")}}
	srv := newTestServer(t, planner, "secret-token")
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles/"+testArticleUUID+"/links/plan", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on backend outage, got %d", rec.Code)
	}
	resp := decodeJSend(t, rec)
	if resp.Status != "fail" {
		t.Fatalf("expected fail status, got %q", resp.Status)
	}
}

func TestHandlePlan_RejectsMalformedUUID(t *testing.T) {
	t.Parallel()

	planner := &fakePlanner{result: &linkplan.PlanResult{}}
	srv := newTestServer(t, planner, "secret-token")
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles/not-a-uuid/links/plan", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed UUID, got %d", rec.Code)
	}
	if planner.calls != 0 {
		t.Fatalf("planner must not run for malformed UUID")
	}
}
