package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultAuddEndpoint is the public AudD music recognition API.
const DefaultAuddEndpoint = "https://api.audd.io/"

// AuddClient calls the AudD music recognition API.
// Implements the Provider interface.
type AuddClient struct {
	endpoint string
	token    string
	timeout  time.Duration
	client   *http.Client
}

// auddResponse is the JSON envelope returned by the AudD API.
// Result is null when the sample matched nothing.
type auddResponse struct {
	Status string          `json:"status"`
	Error  *auddError      `json:"error"`
	Result json.RawMessage `json:"result"`
}

type auddError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

// auddResult is the match payload. Spotify holds the optional nested
// streaming metadata requested via the "return" form field.
type auddResult struct {
	Artist   string          `json:"artist"`
	Title    string          `json:"title"`
	SongLink string          `json:"song_link"`
	Spotify  json.RawMessage `json:"spotify"`
}

// NewAuddClient creates a new AudD recognition client. endpoint "" uses the
// public API.
func NewAuddClient(endpoint, token string, timeout time.Duration) *AuddClient {
	if endpoint == "" {
		endpoint = DefaultAuddEndpoint
	}
	return &AuddClient{
		endpoint: endpoint,
		token:    token,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (a *AuddClient) Name() string { return "audd" }

// Recognize sends an audio file to the AudD API and returns the match.
func (a *AuddClient) Recognize(ctx context.Context, audioPath string) (*Match, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	w.WriteField("api_token", a.token)

	// Ask for nested streaming metadata so a link can be extracted when the
	// top-level song_link is absent.
	w.WriteField("return", "spotify")

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audd request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audd API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result auddResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Status != "success" {
		if result.Error != nil {
			return nil, fmt.Errorf("audd error %d: %s", result.Error.Code, result.Error.Message)
		}
		return nil, fmt.Errorf("audd returned status %q", result.Status)
	}

	// result is null when the segment matched nothing.
	if len(result.Result) == 0 || string(result.Result) == "null" {
		return nil, nil
	}

	var match auddResult
	if err := json.Unmarshal(result.Result, &match); err != nil {
		return nil, fmt.Errorf("decode match payload: %w", err)
	}

	link := match.SongLink
	if link == "" {
		link = spotifyLink(match.Spotify)
	}

	return &Match{
		Artist: match.Artist,
		Title:  match.Title,
		Link:   link,
	}, nil
}

// spotifyLink digs the track URL out of AudD's nested spotify metadata.
// Missing or malformed metadata degrades to "", never failing the match.
func spotifyLink(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s struct {
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s.ExternalURLs.Spotify
}
