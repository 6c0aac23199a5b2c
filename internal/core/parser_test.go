package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/JonMunkholm/catalog-import/internal/objectstore"
	"github.com/JonMunkholm/catalog-import/internal/queue"
)

const testBucket = "catalog"

func newTestParser(t *testing.T) (*FileParser, *objectstore.Memory, *queue.Memory) {
	t.Helper()
	objects := objectstore.NewMemory()
	q := queue.NewMemory(time.Millisecond)
	return NewFileParser(objects, q, "uploaded", "parsed"), objects, q
}

func drain(t *testing.T, q *queue.Memory) []Item {
	t.Helper()
	msgs, err := q.Receive(context.Background(), 1000)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	items := make([]Item, 0, len(msgs))
	for _, m := range msgs {
		item, err := DecodeUnit(m.Body)
		if err != nil {
			t.Fatalf("queued body %s does not decode: %v", m.Body, err)
		}
		items = append(items, item)
	}
	return items
}

// failingProducer accepts limit sends and fails afterwards.
type failingProducer struct {
	limit int
	sent  int
}

func (f *failingProducer) Send(context.Context, []byte) (string, error) {
	if f.sent >= f.limit {
		return "", errors.New("queue unavailable")
	}
	f.sent++
	return "id", nil
}

func TestParse_EnqueuesValidRowsAndRelocates(t *testing.T) {
	p, objects, q := newTestParser(t)
	csv := strings.Join([]string{
		"title,description,price,count",
		"Widget,A widget,9.99,3",
		",no title,5,1",
		"Gadget,y,-1,2",
		"Lamp,Desk lamp,$25.00,",
		"Mug,Ceramic,4.50,7",
	}, "\n")
	objects.Put(testBucket, "uploaded/catalog.csv", []byte(csv))

	res, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "uploaded/catalog.csv"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if res.Rows != 5 || res.Accepted != 3 || len(res.Rejected) != 2 {
		t.Errorf("rows=%d accepted=%d rejected=%d, want 5/3/2", res.Rows, res.Accepted, len(res.Rejected))
	}
	if res.Phase != PhaseDone {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseDone)
	}
	if res.ProcessedKey != "parsed/catalog.csv" {
		t.Errorf("processed key = %q", res.ProcessedKey)
	}

	wantRejected := []RejectedRow{
		{Line: 3, Reason: ReasonTitleRequired},
		{Line: 4, Reason: ReasonPriceNotPositive},
	}
	for i, want := range wantRejected {
		if res.Rejected[i] != want {
			t.Errorf("rejected[%d] = %+v, want %+v", i, res.Rejected[i], want)
		}
	}

	items := drain(t, q)
	if len(items) != 3 {
		t.Fatalf("queued %d units, want 3", len(items))
	}
	assertItem(t, items[0], Item{Title: "Widget", Description: "A widget", Price: 9.99, Count: intPtr(3)})
	assertItem(t, items[1], Item{Title: "Lamp", Description: "Desk lamp", Price: 25})
	assertItem(t, items[2], Item{Title: "Mug", Description: "Ceramic", Price: 4.5, Count: intPtr(7)})

	if _, ok := objects.Get(testBucket, "uploaded/catalog.csv"); ok {
		t.Error("source object still in upload namespace")
	}
	if data, ok := objects.Get(testBucket, "parsed/catalog.csv"); !ok || string(data) != csv {
		t.Error("processed copy missing or altered")
	}
}

func TestParse_HeaderVariants(t *testing.T) {
	p, objects, q := newTestParser(t)
	csv := "\xEF\xBB\xBF Title ,PRICE,Description,sku\r\nWidget,1.5,A widget,W-1\r\n"
	objects.Put(testBucket, "uploaded/excel.csv", []byte(csv))

	res, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "uploaded/excel.csv"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", res.Accepted)
	}
	assertItem(t, drain(t, q)[0], Item{Title: "Widget", Description: "A widget", Price: 1.5})
}

func TestParse_SkipsEmptyAndShortRows(t *testing.T) {
	p, objects, q := newTestParser(t)
	csv := "title,description,price\n,,\nWidget,only two\nMug,Ceramic,2\n"
	objects.Put(testBucket, "uploaded/gaps.csv", []byte(csv))

	res, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "uploaded/gaps.csv"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Rows != 2 || res.Accepted != 1 {
		t.Errorf("rows=%d accepted=%d, want 2/1", res.Rows, res.Accepted)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Line != 3 {
		t.Errorf("rejected = %+v, want one row on line 3", res.Rejected)
	}
	if got := len(drain(t, q)); got != 1 {
		t.Errorf("queued %d, want 1", got)
	}
}

func TestParse_SourceUnavailable(t *testing.T) {
	p, objects, _ := newTestParser(t)

	res, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "uploaded/missing.csv"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Parse() error = %v, want ErrSourceUnavailable", err)
	}
	if res.Phase != PhaseStart {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseStart)
	}
	if keys := objects.Keys(testBucket); len(keys) != 0 {
		t.Errorf("unexpected objects %v", keys)
	}
}

func TestParse_OutsideUploadPrefix(t *testing.T) {
	p, objects, q := newTestParser(t)
	objects.Put(testBucket, "parsed/catalog.csv", []byte("title,description,price\nA,B,1\n"))

	_, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "parsed/catalog.csv"})
	if !errors.Is(err, ErrOutsideUploadPrefix) {
		t.Fatalf("Parse() error = %v, want ErrOutsideUploadPrefix", err)
	}
	if q.Len() != 0 {
		t.Error("nothing should be queued")
	}
}

func TestParse_MalformedFile(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"no known columns", "name,cost\nA,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, objects, _ := newTestParser(t)
			objects.Put(testBucket, "uploaded/bad.csv", []byte(tt.body))

			_, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "uploaded/bad.csv"})
			if !errors.Is(err, ErrMalformedFile) {
				t.Fatalf("Parse() error = %v, want ErrMalformedFile", err)
			}
			if _, ok := objects.Get(testBucket, "uploaded/bad.csv"); !ok {
				t.Error("malformed file must stay in place")
			}
		})
	}
}

func TestParse_EnqueueFailureLeavesSource(t *testing.T) {
	objects := objectstore.NewMemory()
	producer := &failingProducer{limit: 2}
	p := NewFileParser(objects, producer, "uploaded", "parsed")
	csv := "title,description,price\nA,a,1\nB,b,2\nC,c,3\nD,d,4\n"
	objects.Put(testBucket, "uploaded/big.csv", []byte(csv))

	res, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "uploaded/big.csv"})
	if !errors.Is(err, ErrEnqueue) {
		t.Fatalf("Parse() error = %v, want ErrEnqueue", err)
	}
	if !strings.Contains(err.Error(), "line 4") {
		t.Errorf("error %q should name line 4", err)
	}
	if res.Phase != PhaseStreaming || res.Accepted != 2 {
		t.Errorf("phase=%s accepted=%d, want streaming/2", res.Phase, res.Accepted)
	}
	if _, ok := objects.Get(testBucket, "uploaded/big.csv"); !ok {
		t.Error("source must stay in the upload namespace")
	}
	if _, ok := objects.Get(testBucket, "parsed/big.csv"); ok {
		t.Error("no processed copy expected")
	}
}

// truncatedStore serves the first n bytes of each object and then fails the
// read, like a connection dropped mid-download. Size reports the full object.
type truncatedStore struct {
	*objectstore.Memory
	n   int
	ops []string
}

func (s *truncatedStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	data, ok := s.Get(bucket, key)
	if !ok {
		return nil, 0, objectstore.ErrNotFound
	}
	body := io.MultiReader(bytes.NewReader(data[:s.n]), iotest.ErrReader(errors.New("connection reset by peer")))
	return io.NopCloser(body), int64(len(data)), nil
}

func (s *truncatedStore) Copy(ctx context.Context, bucket, src, dst string) error {
	s.ops = append(s.ops, "copy")
	return s.Memory.Copy(ctx, bucket, src, dst)
}

func (s *truncatedStore) Delete(ctx context.Context, bucket, key string) error {
	s.ops = append(s.ops, "delete")
	return s.Memory.Delete(ctx, bucket, key)
}

func TestParse_ReadErrorMidStreamLeavesSource(t *testing.T) {
	head := "title,description,price\nA,a,1\nB,b,2\nC,c,3\n"
	csv := head + "D,d,4\nE,e,5\nF,f,6\n"
	objects := &truncatedStore{Memory: objectstore.NewMemory(), n: len(head)}
	objects.Put(testBucket, "uploaded/cut.csv", []byte(csv))
	q := queue.NewMemory(time.Millisecond)
	p := NewFileParser(objects, q, "uploaded", "parsed")

	res, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "uploaded/cut.csv"})
	if err == nil || !strings.Contains(err.Error(), "connection reset by peer") {
		t.Fatalf("Parse() error = %v, want the read error", err)
	}
	if res.Phase != PhaseStreaming {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseStreaming)
	}
	if res.Accepted == 0 || q.Len() != res.Accepted {
		t.Errorf("accepted=%d queued=%d, want rows before the failure queued", res.Accepted, q.Len())
	}
	if res.Progress <= 0 || res.Progress >= 100 {
		t.Errorf("progress = %d, want partial", res.Progress)
	}
	if len(objects.ops) != 0 {
		t.Errorf("relocation attempted: %v", objects.ops)
	}
	if data, ok := objects.Get(testBucket, "uploaded/cut.csv"); !ok || string(data) != csv {
		t.Error("source must stay in the upload namespace unchanged")
	}
	if _, ok := objects.Get(testBucket, "parsed/cut.csv"); ok {
		t.Error("no processed copy expected")
	}
}

func TestParse_Cancelled(t *testing.T) {
	p, objects, _ := newTestParser(t)
	objects.Put(testBucket, "uploaded/x.csv", []byte("title,description,price\nA,a,1\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Parse(ctx, ObjectRef{Bucket: testBucket, Key: "uploaded/x.csv"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Parse() error = %v, want context.Canceled", err)
	}
	if _, ok := objects.Get(testBucket, "uploaded/x.csv"); !ok {
		t.Error("source must stay in place")
	}
}

func TestParse_RelocateFailure(t *testing.T) {
	p, objects, q := newTestParser(t)
	objects.Put(testBucket, "uploaded/x.csv", []byte("title,description,price\nA,a,1\n"))
	objects.Fail = func(op, _, _ string) error {
		if op == "delete" {
			return errors.New("access denied")
		}
		return nil
	}

	res, err := p.Parse(context.Background(), ObjectRef{Bucket: testBucket, Key: "uploaded/x.csv"})
	if !errors.Is(err, ErrRelocate) {
		t.Fatalf("Parse() error = %v, want ErrRelocate", err)
	}
	if res.Phase != PhaseRelocating {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseRelocating)
	}
	if q.Len() != 1 {
		t.Errorf("queued %d, want 1", q.Len())
	}
}

func TestProcessedKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"uploaded/catalog.csv", "parsed/catalog.csv"},
		{"uploaded/2024/01/catalog.csv", "parsed/2024/01/catalog.csv"},
		{"elsewhere/catalog.csv", "parsed/catalog.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := ProcessedKey(tt.key, "uploaded/", "/parsed"); got != tt.want {
				t.Errorf("ProcessedKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
