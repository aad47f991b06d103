package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/identify"
)

// IdentifyRunner runs an identification job against a remote recording.
type IdentifyRunner interface {
	IdentifyURL(ctx context.Context, jobID, url string) ([]identify.TrackEntry, error)
}

const (
	maxIdentifyBody = 16 << 10
	// Shortest locator worth sending to the fetcher, e.g. "http://a.b".
	minURLLength = 10
	maxJobIDLen  = 64
)

type identifyRequest struct {
	URL   string `json:"url"`
	JobID string `json:"job_id"`
}

// HandleIdentify accepts {"url": ..., "job_id": ...?}, runs the pipeline
// synchronously, and responds with the tracklist JSON array. The job ID
// (client-supplied or generated) is returned in X-Job-ID so clients can
// follow progress on the events stream while waiting.
func HandleIdentify(runner IdentifyRunner, recognizerReady bool, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIdentifyBody)

		var req identifyRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid JSON body")
			return
		}

		raw := strings.TrimSpace(req.URL)
		if raw == "" {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "url is required")
			return
		}
		if len(raw) < minURLLength {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "url is too short")
			return
		}
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter, "url must be an absolute http(s) URL")
			return
		}

		jobID := strings.TrimSpace(req.JobID)
		if jobID == "" {
			jobID = uuid.NewString()
		} else if !validJobID(jobID) {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidParameter,
				"job_id must be at most 64 characters of letters, digits, '.', '_' or '-'")
			return
		}

		if !recognizerReady {
			WriteErrorWithCode(w, http.StatusUnprocessableEntity, ErrNotConfigured, "no recognition provider credentials configured")
			return
		}

		w.Header().Set("X-Job-ID", jobID)

		entries, err := runner.IdentifyURL(r.Context(), jobID, raw)
		if err != nil {
			writeIdentifyError(w, r, log, jobID, err)
			return
		}
		WriteJSON(w, http.StatusOK, entries)
	}
}

func writeIdentifyError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, jobID string, err error) {
	if r.Context().Err() != nil {
		// Client went away, nothing useful left to write.
		log.Debug().Str("job_id", jobID).Msg("identify request canceled")
		return
	}

	var serr *identify.StageError
	if errors.As(err, &serr) {
		status := http.StatusInternalServerError
		code := ErrInternal
		switch serr.Stage {
		case identify.StageFetch:
			status = http.StatusBadGateway
			code = ErrFetchFailed
		case identify.StageSplit:
			code = ErrSplitFailed
		}
		WriteJSON(w, status, ErrorResponse{
			Error: serr.Err.Error(),
			Code:  code,
			Stage: string(serr.Stage),
		})
		return
	}

	log.Error().Err(err).Str("job_id", jobID).Msg("identification failed")
	WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "identification failed")
}

// validJobID bounds client-supplied job IDs to characters safe for response
// headers and event payloads.
func validJobID(s string) bool {
	if len(s) > maxJobIDLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
