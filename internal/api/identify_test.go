package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/identify"
)

type fakeRunner struct {
	entries []identify.TrackEntry
	err     error

	calls  int
	gotJob string
	gotURL string
}

func (f *fakeRunner) IdentifyURL(ctx context.Context, jobID, url string) ([]identify.TrackEntry, error) {
	f.calls++
	f.gotJob = jobID
	f.gotURL = url
	return f.entries, f.err
}

func postIdentify(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/identify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleIdentify(t *testing.T) {
	runner := &fakeRunner{entries: []identify.TrackEntry{
		{Time: "00:00", Title: "Bicep – Glue", Link: "https://open.spotify.com/track/abc"},
		{Time: "04:00", Title: "Overmono – So U Kno"},
	}}
	h := HandleIdentify(runner, true, zerolog.Nop())

	rec := postIdentify(h, `{"url":"https://media.example.com/sets/set.mp3"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got []identify.TrackEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("body is not a tracklist: %v", err)
	}
	if !reflect.DeepEqual(got, runner.entries) {
		t.Errorf("tracklist = %+v, want %+v", got, runner.entries)
	}
	if runner.gotURL != "https://media.example.com/sets/set.mp3" {
		t.Errorf("runner got url %q", runner.gotURL)
	}
	jobID := rec.Header().Get("X-Job-ID")
	if jobID == "" {
		t.Error("missing X-Job-ID header")
	}
	if jobID != runner.gotJob {
		t.Errorf("X-Job-ID %q does not match runner job %q", jobID, runner.gotJob)
	}
}

func TestHandleIdentifyValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed_json", `{"url":`, ErrInvalidBody},
		{"empty_body", ``, ErrInvalidBody},
		{"missing_url", `{}`, ErrInvalidParameter},
		{"blank_url", `{"url":"   "}`, ErrInvalidParameter},
		{"too_short_url", `{"url":"http://a"}`, ErrInvalidParameter},
		{"relative_url", `{"url":"/local/file.mp3"}`, ErrInvalidParameter},
		{"unsupported_scheme", `{"url":"ftp://host/set.mp3"}`, ErrInvalidParameter},
		{"scheme_without_host", `{"url":"https:///sets/set.mp3"}`, ErrInvalidParameter},
		{"job_id_with_spaces", `{"url":"https://x.example/set.mp3","job_id":"has spaces"}`, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := postIdentify(HandleIdentify(runner, true, zerolog.Nop()), tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var body ErrorResponse
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if runner.calls != 0 {
				t.Errorf("runner called %d times for invalid input", runner.calls)
			}
		})
	}
}

func TestHandleIdentifyClientJobID(t *testing.T) {
	runner := &fakeRunner{entries: []identify.TrackEntry{{Time: "00:00", Title: identify.NoMatchesTitle}}}
	rec := postIdentify(HandleIdentify(runner, true, zerolog.Nop()), `{"url":"https://x.example/set.mp3","job_id":"warmup-42"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if runner.gotJob != "warmup-42" {
		t.Errorf("runner job = %q, want the client-supplied id", runner.gotJob)
	}
	if got := rec.Header().Get("X-Job-ID"); got != "warmup-42" {
		t.Errorf("X-Job-ID = %q, want warmup-42", got)
	}
}

func TestHandleIdentifyRecognizerNotConfigured(t *testing.T) {
	runner := &fakeRunner{}
	rec := postIdentify(HandleIdentify(runner, false, zerolog.Nop()), `{"url":"https://x.example/set.mp3"}`)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	var body ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Code != ErrNotConfigured {
		t.Errorf("code = %q, want %q", body.Code, ErrNotConfigured)
	}
	if runner.calls != 0 {
		t.Error("runner should not run without recognizer credentials")
	}
}

func TestHandleIdentifyStageErrors(t *testing.T) {
	tests := []struct {
		name       string
		stage      identify.Stage
		wantStatus int
		wantCode   string
	}{
		{"fetch_maps_to_bad_gateway", identify.StageFetch, http.StatusBadGateway, ErrFetchFailed},
		{"split_maps_to_internal", identify.StageSplit, http.StatusInternalServerError, ErrSplitFailed},
		{"workspace_maps_to_internal", identify.StageWorkspace, http.StatusInternalServerError, ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: &identify.StageError{Stage: tt.stage, Err: errors.New("boom")}}
			rec := postIdentify(HandleIdentify(runner, true, zerolog.Nop()), `{"url":"https://x.example/set.mp3"}`)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Stage != string(tt.stage) {
				t.Errorf("stage = %q, want %q", body.Stage, tt.stage)
			}
			if body.Error != "boom" {
				t.Errorf("error = %q, want the underlying message without the stage prefix", body.Error)
			}
		})
	}
}

func TestHandleIdentifyUnexpectedError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("unexpected")}
	rec := postIdentify(HandleIdentify(runner, true, zerolog.Nop()), `{"url":"https://x.example/set.mp3"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Code != ErrInternal {
		t.Errorf("code = %q, want %q", body.Code, ErrInternal)
	}
}

func TestHandleIdentifySentinelPassthrough(t *testing.T) {
	runner := &fakeRunner{entries: []identify.TrackEntry{{Time: "00:00", Title: identify.NoMatchesTitle}}}
	rec := postIdentify(HandleIdentify(runner, true, zerolog.Nop()), `{"url":"https://x.example/set.mp3"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `[{"time":"00:00","title":"No matches found"}]`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}
