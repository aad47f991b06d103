package identify

import (
	"fmt"
	"time"
)

// NoMatchesTitle is the sentinel tracklist title for a run that completed
// without a single match.
const NoMatchesTitle = "No matches found"

// Reduce folds ordered per-segment outcomes into the final tracklist.
// Unmatched and failed segments are skipped without resetting the dedup
// state. Consecutive repeats of the same matched title collapse into one
// entry stamped with the time of first occurrence; a title that recurs
// after an interruption is emitted again. A scan that emits nothing
// returns the single-entry sentinel instead of an empty list.
func Reduce(outcomes []Outcome, window time.Duration) []TrackEntry {
	entries := make([]TrackEntry, 0, len(outcomes))
	lastTitle := ""
	for _, o := range outcomes {
		if o.Kind != Matched {
			continue
		}
		title := o.Artist + " – " + o.Title
		if title == lastTitle {
			continue
		}
		entries = append(entries, TrackEntry{
			Time:  FormatTimestamp(o.Index, window),
			Title: title,
			Link:  o.Link,
		})
		lastTitle = title
	}
	if len(entries) == 0 {
		return []TrackEntry{{Time: "00:00", Title: NoMatchesTitle}}
	}
	return entries
}

// FormatTimestamp renders the start time of the segment at index as
// zero-padded MM:SS. Minutes may exceed 59; there is no hours field.
func FormatTimestamp(index int, window time.Duration) string {
	total := index * int(window/time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
