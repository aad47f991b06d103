package api

import (
	"net/http"

	mixid "github.com/mixid/mixid-engine"
)

// HandleRoot serves a small service banner so a bare GET / answers
// something more useful than a 404.
func HandleRoot(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"service": "mixid-engine",
			"version": version,
			"message": `POST /api/v1/identify with {"url": "..."} to identify a set`,
		})
	}
}

// HandleOpenAPI serves the embedded API description.
func HandleOpenAPI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(mixid.OpenAPISpec)
	}
}
