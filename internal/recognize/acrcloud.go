package recognize

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// acrNoResultCode is ACRCloud's status code for "no match found".
const acrNoResultCode = 1001

// ACRClient calls the ACRCloud identification API with raw audio samples
// (data_type=audio, no local fingerprinting).
// Implements the Provider interface.
type ACRClient struct {
	endpoint     string
	accessKey    string
	accessSecret string
	timeout      time.Duration
	client       *http.Client
	now          func() time.Time // injectable for signature tests
}

// acrResponse is the JSON response from /v1/identify.
type acrResponse struct {
	Status struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"status"`
	Metadata struct {
		Music []acrMusic `json:"music"`
	} `json:"metadata"`
}

type acrMusic struct {
	Title   string `json:"title"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	ExternalMetadata json.RawMessage `json:"external_metadata"`
}

// NewACRClient creates a new ACRCloud client. host is the project's region
// host (e.g. "identify-eu-west-1.acrcloud.com"); a full http(s) URL is
// accepted as-is.
func NewACRClient(host, accessKey, accessSecret string, timeout time.Duration) *ACRClient {
	return &ACRClient{
		endpoint:     acrEndpoint(host),
		accessKey:    accessKey,
		accessSecret: accessSecret,
		timeout:      timeout,
		client:       &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// Name returns the provider name.
func (c *ACRClient) Name() string { return "acrcloud" }

// Recognize sends an audio file to ACRCloud and returns the match.
func (c *ACRClient) Recognize(ctx context.Context, audioPath string) (*Match, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := c.sign(timestamp)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("access_key", c.accessKey)
	w.WriteField("data_type", "audio")
	w.WriteField("signature_version", "1")
	w.WriteField("signature", signature)
	w.WriteField("timestamp", timestamp)
	w.WriteField("sample_bytes", strconv.FormatInt(info.Size(), 10))

	part, err := w.CreateFormFile("sample", info.Name())
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acrcloud request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("acrcloud API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result acrResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Status.Code == acrNoResultCode {
		return nil, nil
	}
	if result.Status.Code != 0 {
		return nil, fmt.Errorf("acrcloud error %d: %s", result.Status.Code, result.Status.Msg)
	}
	if len(result.Metadata.Music) == 0 {
		return nil, nil
	}

	music := result.Metadata.Music[0]
	artist := ""
	if len(music.Artists) > 0 {
		artist = music.Artists[0].Name
	}

	return &Match{
		Artist: artist,
		Title:  music.Title,
		Link:   acrSpotifyLink(music.ExternalMetadata),
	}, nil
}

// sign computes the request signature: base64 HMAC-SHA1 over the
// newline-joined method, URI, access key, data type, signature version and
// timestamp, keyed with the access secret.
func (c *ACRClient) sign(timestamp string) string {
	toSign := strings.Join([]string{
		http.MethodPost,
		"/v1/identify",
		c.accessKey,
		"audio",
		"1",
		timestamp,
	}, "\n")
	mac := hmac.New(sha1.New, []byte(c.accessSecret))
	mac.Write([]byte(toSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// acrSpotifyLink builds an open.spotify.com URL from the optional nested
// external metadata. Missing or malformed metadata degrades to "".
func acrSpotifyLink(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var meta struct {
		Spotify struct {
			Track struct {
				ID string `json:"id"`
			} `json:"track"`
		} `json:"spotify"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	if meta.Spotify.Track.ID == "" {
		return ""
	}
	return "https://open.spotify.com/track/" + meta.Spotify.Track.ID
}

func acrEndpoint(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/") + "/v1/identify"
	}
	return "https://" + host + "/v1/identify"
}
