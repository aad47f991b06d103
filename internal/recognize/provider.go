package recognize

import "context"

// Provider is the interface for audio recognition backends.
type Provider interface {
	// Recognize submits the audio file at audioPath to the recognition
	// service and returns the decoded match. A (nil, nil) return means the
	// service answered cleanly but found no match; an error means the call
	// itself failed (transport, timeout, non-2xx, undecodable body).
	Recognize(ctx context.Context, audioPath string) (*Match, error)
	Name() string // "audd", "acrcloud"
}

// Match is the common recognition result from any provider. Fields are
// passed through as decoded; completeness rules (artist and title both
// required) are enforced by the pipeline, not here.
type Match struct {
	Artist string
	Title  string
	Link   string // optional external link, "" when unavailable
}
