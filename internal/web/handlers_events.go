package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/JonMunkholm/catalog-import/internal/logging"
)

// maxEventSize caps the notification body. S3 events are a few KB.
const maxEventSize = 1 << 20

// s3Event is the subset of an S3 event notification the parser needs.
type s3Event struct {
	Records []s3EventRecord `json:"Records"`
}

type s3EventRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

type eventResponse struct {
	Parsed  []*core.ParseResult `json:"parsed"`
	Ignored []string            `json:"ignored,omitempty"`
}

// handleS3Event parses every object named by an S3 event notification.
// Records are handled in order and the first failure stops the request, so
// the sender retries the whole event. On such a retry the records that
// already went through are gone from the upload prefix, so in a multi-record
// event a missing source is reported as ignored rather than failing again.
func (s *Server) handleS3Event(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventSize)

	var event s3Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, r, fmt.Errorf("decode event: %w", err), http.StatusBadRequest)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		if errors.Is(err, core.ErrTooManyParses) {
			w.Header().Set("Retry-After", "30")
		}
		respondError(w, r, err, parseStatus(err))
		return
	}
	defer s.limiter.Release()

	logger := logging.FromContext(r.Context())
	resp := eventResponse{Parsed: []*core.ParseResult{}}

	for _, rec := range event.Records {
		key, err := decodeObjectKey(rec.S3.Object.Key)
		if err != nil {
			respondError(w, r, fmt.Errorf("decode key %q: %w", rec.S3.Object.Key, err), http.StatusBadRequest)
			return
		}
		bucket := rec.S3.Bucket.Name
		if bucket == "" {
			bucket = s.opts.Bucket
		}

		if !s.parser.InUploadNamespace(key) {
			logger.Info("event ignored outside upload prefix", "bucket", bucket, "key", key, "event", rec.EventName)
			resp.Ignored = append(resp.Ignored, key)
			continue
		}

		result, err := s.parser.Parse(r.Context(), core.ObjectRef{Bucket: bucket, Key: key})
		if err != nil && len(event.Records) > 1 && errors.Is(err, core.ErrSourceUnavailable) {
			logger.Warn("event record source missing", "bucket", bucket, "key", key, "error", err)
			resp.Ignored = append(resp.Ignored, key)
			continue
		}
		if err != nil {
			respondError(w, r, err, parseStatus(err))
			return
		}
		resp.Parsed = append(resp.Parsed, result)
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// decodeObjectKey undoes the form encoding S3 applies to keys in event
// notifications, where a space arrives as '+'.
func decodeObjectKey(key string) (string, error) {
	return url.PathUnescape(strings.ReplaceAll(key, "+", " "))
}
