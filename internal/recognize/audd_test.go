package recognize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestAudio creates a throwaway file standing in for a segment artifact.
func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment00001.mp3")
	if err := os.WriteFile(path, []byte("not-really-mp3-bytes"), 0o644); err != nil {
		t.Fatalf("write test audio: %v", err)
	}
	return path
}

func auddServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("api_token") != "test-token" {
			t.Errorf("api_token = %q, want test-token", r.FormValue("api_token"))
		}
		if r.FormValue("return") != "spotify" {
			t.Errorf("return = %q, want spotify", r.FormValue("return"))
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestAuddRecognize_Match(t *testing.T) {
	srv := auddServer(t, `{"status":"success","result":{"artist":"Daft Punk","title":"One More Time","song_link":"https://lis.tn/OneMoreTime"}}`)
	defer srv.Close()

	c := NewAuddClient(srv.URL, "test-token", 5*time.Second)
	m, err := c.Recognize(context.Background(), writeTestAudio(t))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Artist != "Daft Punk" || m.Title != "One More Time" {
		t.Errorf("match = %q / %q, want Daft Punk / One More Time", m.Artist, m.Title)
	}
	if m.Link != "https://lis.tn/OneMoreTime" {
		t.Errorf("link = %q, want song_link value", m.Link)
	}
}

func TestAuddRecognize_NestedSpotifyLink(t *testing.T) {
	srv := auddServer(t, `{"status":"success","result":{"artist":"Moderat","title":"A New Error","spotify":{"external_urls":{"spotify":"https://open.spotify.com/track/abc123"}}}}`)
	defer srv.Close()

	c := NewAuddClient(srv.URL, "test-token", 5*time.Second)
	m, err := c.Recognize(context.Background(), writeTestAudio(t))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Link != "https://open.spotify.com/track/abc123" {
		t.Errorf("link = %q, want nested spotify URL", m.Link)
	}
}

func TestAuddRecognize_MalformedSpotifyDegrades(t *testing.T) {
	// spotify is a string instead of an object; the match must survive
	// with an empty link.
	srv := auddServer(t, `{"status":"success","result":{"artist":"Moderat","title":"A New Error","spotify":"garbage"}}`)
	defer srv.Close()

	c := NewAuddClient(srv.URL, "test-token", 5*time.Second)
	m, err := c.Recognize(context.Background(), writeTestAudio(t))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Link != "" {
		t.Errorf("link = %q, want empty for malformed metadata", m.Link)
	}
}

func TestAuddRecognize_NoMatch(t *testing.T) {
	srv := auddServer(t, `{"status":"success","result":null}`)
	defer srv.Close()

	c := NewAuddClient(srv.URL, "test-token", 5*time.Second)
	m, err := c.Recognize(context.Background(), writeTestAudio(t))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil match for null result, got %+v", m)
	}
}

func TestAuddRecognize_PartialMatchPassesThrough(t *testing.T) {
	// Completeness rules live in the pipeline; the client reports what the
	// service said, empty title included.
	srv := auddServer(t, `{"status":"success","result":{"artist":"Unknown"}}`)
	defer srv.Close()

	c := NewAuddClient(srv.URL, "test-token", 5*time.Second)
	m, err := c.Recognize(context.Background(), writeTestAudio(t))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match struct")
	}
	if m.Artist != "Unknown" || m.Title != "" {
		t.Errorf("match = %q / %q, want Unknown / empty", m.Artist, m.Title)
	}
}

func TestAuddRecognize_APIError(t *testing.T) {
	srv := auddServer(t, `{"status":"error","error":{"error_code":901,"error_message":"api_token limit reached"}}`)
	defer srv.Close()

	c := NewAuddClient(srv.URL, "test-token", 5*time.Second)
	if _, err := c.Recognize(context.Background(), writeTestAudio(t)); err == nil {
		t.Error("expected error for status=error response")
	}
}

func TestAuddRecognize_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewAuddClient(srv.URL, "test-token", 5*time.Second)
	if _, err := c.Recognize(context.Background(), writeTestAudio(t)); err == nil {
		t.Error("expected error for HTTP 500")
	}
}

func TestAuddRecognize_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewAuddClient(srv.URL, "test-token", 20*time.Millisecond)
	if _, err := c.Recognize(context.Background(), writeTestAudio(t)); err == nil {
		t.Error("expected error for timed-out call")
	}
}

func TestAuddRecognize_MissingFile(t *testing.T) {
	c := NewAuddClient("http://localhost:1", "test-token", time.Second)
	if _, err := c.Recognize(context.Background(), filepath.Join(t.TempDir(), "nope.mp3")); err == nil {
		t.Error("expected error for missing audio file")
	}
}

func TestAuddDefaultEndpoint(t *testing.T) {
	c := NewAuddClient("", "tok", time.Second)
	if c.endpoint != DefaultAuddEndpoint {
		t.Errorf("endpoint = %q, want %q", c.endpoint, DefaultAuddEndpoint)
	}
}
