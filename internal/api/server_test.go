package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/config"
	"github.com/mixid/mixid-engine/internal/identify"
	"github.com/mixid/mixid-engine/internal/progress"
)

func testServer(authToken string) *Server {
	cfg := &config.Config{
		HTTPAddr:       ":0",
		Recognizer:     config.RecognizerAudd,
		AuddAPIToken:   "tok",
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		AuthToken:      authToken,
	}
	return NewServer(Options{
		Config:   cfg,
		Runner:   &fakeRunner{entries: []identify.TrackEntry{{Time: "00:00", Title: identify.NoMatchesTitle}}},
		Bus:      progress.NewBus(16),
		Jobs:     fakeJobs{},
		Sweeper:  &fakeSweeper{removed: 1},
		Splitter: fakeTool{ok: true},
		Fetcher:  fakeTool{ok: true},
		Version:  "test",
		Log:      zerolog.Nop(),
	})
}

func serve(s *Server, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	if method == "POST" && strings.Contains(target, "identify") {
		req = httptest.NewRequest(method, target, strings.NewReader(`{"url":"https://x.example/set.mp3"}`))
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServerRoutes(t *testing.T) {
	s := testServer("")

	t.Run("root_banner", func(t *testing.T) {
		rec := serve(s, "GET", "/", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "mixid-engine") {
			t.Errorf("banner body = %s", rec.Body.String())
		}
	})

	t.Run("health", func(t *testing.T) {
		rec := serve(s, "GET", "/api/v1/health", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("openapi", func(t *testing.T) {
		rec := serve(s, "GET", "/api/v1/openapi.yaml", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "openapi:") {
			t.Error("expected embedded OpenAPI document")
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := serve(s, "GET", "/metrics", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "mixid_sse_events_published_total") {
			t.Error("expected service metrics in exposition")
		}
	})

	t.Run("identify_open_without_token", func(t *testing.T) {
		rec := serve(s, "POST", "/api/v1/identify", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("admin_blocked_without_configured_token", func(t *testing.T) {
		rec := serve(s, "POST", "/api/v1/admin/workspaces/sweep", nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("unknown_route", func(t *testing.T) {
		rec := serve(s, "GET", "/api/v1/nope", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestServerRoutesWithAuth(t *testing.T) {
	s := testServer("hunter2")

	t.Run("identify_requires_token", func(t *testing.T) {
		rec := serve(s, "POST", "/api/v1/identify", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("identify_with_token", func(t *testing.T) {
		rec := serve(s, "POST", "/api/v1/identify", map[string]string{"Authorization": "Bearer hunter2"})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("health_stays_open", func(t *testing.T) {
		rec := serve(s, "GET", "/api/v1/health", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("admin_sweep_with_token", func(t *testing.T) {
		rec := serve(s, "POST", "/api/v1/admin/workspaces/sweep", map[string]string{"Authorization": "Bearer hunter2"})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("admin_sweep_wrong_token", func(t *testing.T) {
		rec := serve(s, "POST", "/api/v1/admin/workspaces/sweep", map[string]string{"Authorization": "Bearer nope"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}
