package web

import (
	"fmt"
	"net/http"
	"path"
	"strings"
)

const csvContentType = "text/csv"

// handleImport returns a presigned PUT URL for uploading name into the
// upload namespace. The body is the URL as a JSON string.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondError(w, r, errNameRequired, http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		respondError(w, r, fmt.Errorf("%w: %s", errNotCSV, name), http.StatusBadRequest)
		return
	}

	key := uploadKey(s.opts.UploadPrefix, name)
	url, err := s.presigner.PresignPut(r.Context(), s.opts.Bucket, key, csvContentType, s.opts.PresignTTL)
	if err != nil {
		respondError(w, r, fmt.Errorf("presign %s: %w", key, err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, url)
}

func (s *Server) handleImportPreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// uploadKey places name under prefix. Cleaning against a rooted path keeps
// names like "../x.csv" inside the prefix.
func uploadKey(prefix, name string) string {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	return strings.Trim(prefix, "/") + "/" + clean
}
