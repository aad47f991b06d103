package identify

import "time"

// Segment is one fixed-length slice of the source recording, produced in
// strictly increasing index order with no gaps. The final segment may be
// shorter than the window. Segment files are ephemeral: classified once,
// then removed.
type Segment struct {
	Index int           // zero-based position in the source
	Start time.Duration // Index × window length
	Path  string        // segment audio file on disk
}

// OutcomeKind tags the classification result for one segment.
type OutcomeKind int

const (
	Unmatched OutcomeKind = iota
	Matched
	CallFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case CallFailed:
		return "call_failed"
	default:
		return "unmatched"
	}
}

// Outcome is the recognition result for exactly one segment. Every
// classified segment index has exactly one outcome; call failures are
// recorded rather than dropped so reduction sees the full index sequence.
type Outcome struct {
	Index  int
	Kind   OutcomeKind
	Artist string
	Title  string
	Link   string
	Reason string // set for CallFailed
}

// MatchedOutcome records a successful recognition for a segment.
func MatchedOutcome(index int, artist, title, link string) Outcome {
	return Outcome{Index: index, Kind: Matched, Artist: artist, Title: title, Link: link}
}

// UnmatchedOutcome records a clean no-match for a segment.
func UnmatchedOutcome(index int) Outcome {
	return Outcome{Index: index, Kind: Unmatched}
}

// FailedOutcome records a recognition call failure for a segment.
func FailedOutcome(index int, reason string) Outcome {
	return Outcome{Index: index, Kind: CallFailed, Reason: reason}
}

// TrackEntry is one line of the final tracklist.
type TrackEntry struct {
	Time  string `json:"time"`
	Title string `json:"title"`
	Link  string `json:"link,omitempty"`
}
