package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/JonMunkholm/catalog-import/internal/logging"
	"github.com/JonMunkholm/catalog-import/internal/objectstore"
	"github.com/jszwec/csvutil"
)

// ContextCheckInterval is how often (in rows) the parser checks for cancellation.
var ContextCheckInterval = 100

// ParsePhase is the state of one parse invocation.
type ParsePhase string

const (
	PhaseStart      ParsePhase = "start"
	PhaseStreaming  ParsePhase = "streaming"
	PhaseRelocating ParsePhase = "relocating"
	PhaseDone       ParsePhase = "done"
)

// RejectedRow records a data row that failed validation.
type RejectedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ParseResult summarizes one parse invocation. It is returned alongside an
// error too, with Phase showing how far the invocation got.
type ParseResult struct {
	Bucket       string        `json:"bucket"`
	Key          string        `json:"key"`
	ProcessedKey string        `json:"processed_key,omitempty"`
	Phase        ParsePhase    `json:"phase"`
	Rows         int           `json:"rows"`
	Accepted     int           `json:"accepted"`
	Rejected     []RejectedRow `json:"rejected,omitempty"`
	BytesRead    int64         `json:"bytes_read"`
	Progress     int           `json:"progress_pct"`
	Duration     time.Duration `json:"duration"`
}

// csvRow is the decode target for one data row. Extra columns are ignored.
type csvRow struct {
	Title       string `csv:"title"`
	Description string `csv:"description"`
	Price       string `csv:"price"`
	Count       string `csv:"count"`
}

// FileParser turns an uploaded CSV object into queued units of work.
type FileParser struct {
	objects         ObjectStore
	queue           UnitProducer
	uploadPrefix    string
	processedPrefix string
}

// NewFileParser creates a parser for objects under uploadPrefix. Parsed
// objects are moved under processedPrefix with the same base name.
func NewFileParser(objects ObjectStore, queue UnitProducer, uploadPrefix, processedPrefix string) *FileParser {
	return &FileParser{
		objects:         objects,
		queue:           queue,
		uploadPrefix:    strings.Trim(uploadPrefix, "/"),
		processedPrefix: strings.Trim(processedPrefix, "/"),
	}
}

// InUploadNamespace reports whether key lives under the upload prefix.
func (p *FileParser) InUploadNamespace(key string) bool {
	return strings.HasPrefix(key, p.uploadPrefix+"/")
}

// Parse streams the object, enqueues one unit per valid row and relocates the
// object into the processed namespace.
//
// Invalid rows are logged and skipped. Any other error aborts the invocation
// and leaves the object where it is, so a retriggered event parses it again.
func (p *FileParser) Parse(ctx context.Context, ref ObjectRef) (*ParseResult, error) {
	start := time.Now()
	result := &ParseResult{
		Bucket: ref.Bucket,
		Key:    ref.Key,
		Phase:  PhaseStart,
	}
	defer func() { result.Duration = time.Since(start) }()

	logger := logging.WithFields(ctx, "bucket", ref.Bucket, "key", ref.Key)

	if !p.InUploadNamespace(ref.Key) {
		return result, fmt.Errorf("%w: %s", ErrOutsideUploadPrefix, ref.Key)
	}

	body, size, err := p.objects.Open(ctx, ref.Bucket, ref.Key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			logger.Error("source object missing", "error", err)
			return result, fmt.Errorf("%w: %s/%s: %w", ErrSourceUnavailable, ref.Bucket, ref.Key, err)
		}
		return result, fmt.Errorf("open %s/%s: %w", ref.Bucket, ref.Key, err)
	}
	defer body.Close()

	logger.Info("parse started", "size", size)
	result.Phase = PhaseStreaming

	reader := WrapForStreaming(body, size)
	err = p.stream(ctx, reader, result, logger)
	result.BytesRead = reader.BytesRead
	result.Progress = reader.Progress()
	if err != nil {
		logger.Error("parse aborted",
			"phase", result.Phase,
			"rows", result.Rows,
			"accepted", result.Accepted,
			"bytes_read", result.BytesRead,
			"progress_pct", result.Progress,
			"error", err,
		)
		return result, err
	}

	result.Phase = PhaseRelocating
	dst := ProcessedKey(ref.Key, p.uploadPrefix, p.processedPrefix)
	if err := Relocate(ctx, p.objects, ref.Bucket, ref.Key, dst); err != nil {
		logger.Error("relocate failed", "processed_key", dst, "error", err)
		return result, err
	}
	result.ProcessedKey = dst
	result.Phase = PhaseDone

	logger.Info("parse completed",
		"rows", result.Rows,
		"accepted", result.Accepted,
		"rejected", len(result.Rejected),
		"processed_key", dst,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// stream decodes rows one at a time and enqueues each valid one.
func (p *FileParser) stream(ctx context.Context, r io.Reader, result *ParseResult, logger *slog.Logger) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty file", ErrMalformedFile)
		}
		return fmt.Errorf("%w: read header: %w", ErrMalformedFile, err)
	}

	columns := make([]string, len(header))
	present := make(map[string]bool, len(header))
	for i, h := range header {
		columns[i] = NormalizeHeader(h)
		present[columns[i]] = true
	}
	if !present[ColumnTitle] && !present[ColumnDescription] && !present[ColumnPrice] {
		return fmt.Errorf("%w: header has none of title, description, price", ErrMalformedFile)
	}

	dec, err := csvutil.NewDecoder(cr, columns...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFile, err)
	}

	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("parse cancelled after %d rows: %w", result.Rows, err)
			}
		}

		var row csvRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			return nil
		}
		line, _ := cr.FieldPos(0)

		if errors.Is(err, csvutil.ErrFieldCount) {
			result.Rows++
			p.rejectRow(result, logger, line, fmt.Sprintf("row has %d columns, expected %d", len(dec.Record()), len(columns)))
			continue
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return fmt.Errorf("%w: %w", ErrMalformedFile, err)
			}
			return fmt.Errorf("decode line %d: %w", line, err)
		}

		if isEmptyRecord(dec.Record()) {
			continue
		}
		result.Rows++

		item, err := ValidateRow(rawRowFrom(row, present))
		if err != nil {
			reason, _ := IsRejection(err)
			p.rejectRow(result, logger, line, reason)
			continue
		}

		body, err := EncodeUnit(item)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := p.queue.Send(ctx, body); err != nil {
			return fmt.Errorf("%w at line %d: %w", ErrEnqueue, line, err)
		}
		result.Accepted++
	}
}

func (p *FileParser) rejectRow(result *ParseResult, logger *slog.Logger, line int, reason string) {
	result.Rejected = append(result.Rejected, RejectedRow{Line: line, Reason: reason})
	logger.Warn("row rejected", "line", line, "reason", reason)
}

// rawRowFrom keeps only the columns the header actually declared, so an
// absent column stays distinguishable from an empty cell.
func rawRowFrom(row csvRow, present map[string]bool) RawRow {
	raw := make(RawRow, 4)
	if present[ColumnTitle] {
		raw[ColumnTitle] = row.Title
	}
	if present[ColumnDescription] {
		raw[ColumnDescription] = row.Description
	}
	if present[ColumnPrice] {
		raw[ColumnPrice] = row.Price
	}
	if present[ColumnCount] {
		raw[ColumnCount] = row.Count
	}
	return raw
}

func isEmptyRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ProcessedKey maps an upload key to its processed-namespace key. The upload
// prefix is replaced by the processed prefix and the base name is kept.
func ProcessedKey(key, uploadPrefix, processedPrefix string) string {
	uploadPrefix = strings.Trim(uploadPrefix, "/")
	processedPrefix = strings.Trim(processedPrefix, "/")

	if rest, ok := strings.CutPrefix(key, uploadPrefix+"/"); ok {
		return processedPrefix + "/" + rest
	}
	return processedPrefix + "/" + path.Base(key)
}
