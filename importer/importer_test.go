package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	json "github.com/goccy/go-json"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/rs/zerolog"
)

// fakeBucket is an in-memory S3 bucket that also streams objects line by line.
type fakeBucket struct {
	objects  map[string]string
	copyErr  error
	copies   []*s3.CopyObjectInput
	deletes  []string
	streamed []string
}

func newFakeBucket(objects map[string]string) *fakeBucket {
	return &fakeBucket{objects: objects}
}

func (f *fakeBucket) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*params.Key]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeBucket) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copies = append(f.copies, params)
	if f.copyErr != nil {
		return nil, f.copyErr
	}
	src, err := url.PathUnescape(*params.CopySource)
	if err != nil {
		return nil, err
	}
	key := strings.TrimPrefix(src, *params.Bucket+"/")
	body, ok := f.objects[key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	f.objects[*params.Key] = body
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeBucket) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, *params.Key)
	delete(f.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeBucket) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	f.streamed = append(f.streamed, key)
	body, ok := f.objects[key]
	if !ok {
		return fmt.Errorf("key not found: %s", key)
	}
	scanner := bufio.NewScanner(strings.NewReader(body))
	var pos int64
	for scanner.Scan() {
		if err := fn(scanner.Bytes(), pos); err != nil {
			return err
		}
		pos += int64(len(scanner.Bytes())) + 1
	}
	return scanner.Err()
}

type fakeQueue struct {
	bodies []string
	// failRows makes sends of these row indexes fail
	failRows map[int]bool
}

func (q *fakeQueue) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	var msg catalog.RowMessage
	if err := json.Unmarshal([]byte(*params.MessageBody), &msg); err != nil {
		return nil, err
	}
	if q.failRows[msg.Row] {
		return nil, errors.New("queue unavailable")
	}
	q.bodies = append(q.bodies, *params.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func (q *fakeQueue) messages(t *testing.T) []catalog.RowMessage {
	t.Helper()
	msgs := make([]catalog.RowMessage, len(q.bodies))
	for i, b := range q.bodies {
		if err := json.Unmarshal([]byte(b), &msgs[i]); err != nil {
			t.Fatalf("decode message %d: %v", i, err)
		}
	}
	return msgs
}

func newTestImporter(bucket *fakeBucket, queue *fakeQueue, archive bool) *Importer {
	imp := New(bucket, bucket, queue, Options{
		UploadPrefix: "uploaded/",
		ParsedPrefix: "parsed/",
		QueueURL:     "https://sqs.eu-west-1.amazonaws.com/123456789012/catalogItemsQueue",
		Archive:      archive,
		Classifier:   catalog.NewClassifier(100),
	}, zerolog.New(io.Discard))
	imp.newID = func() string { return "run-1" }
	return imp
}

const threeRows = "title,description,price,count\n" +
	"Laptop,\"15\"\" screen, 16GB\",1200,3\n" +
	"Cable,USB-C,9.99,40\n" +
	"Monitor,27 inch,100,2\n"

func TestImportThreeRows(t *testing.T) {
	bucket := newFakeBucket(map[string]string{"uploaded/products.csv": threeRows})
	queue := &fakeQueue{}
	imp := newTestImporter(bucket, queue, false)

	report, err := imp.Import(context.Background(), "import-bucket", "uploaded/products.csv")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	msgs := queue.messages(t)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Row != i || m.ImportID != "run-1" || m.Source != "uploaded/products.csv" {
			t.Errorf("message %d: unexpected envelope %+v", i, m)
		}
		if m.End != (i == 2) {
			t.Errorf("message %d: end=%v", i, m.End)
		}
	}

	last := msgs[2]
	if last.Enqueued != 3 || msgs[0].Enqueued != 0 {
		t.Errorf("only the end marker carries the enqueued count, got %d and %d", msgs[0].Enqueued, last.Enqueued)
	}
	if last.TierTotals.Sum() != 3 || last.TierTotals.Premium != 2 || last.TierTotals.Discount != 1 {
		t.Errorf("unexpected final totals %+v", last.TierTotals)
	}
	if msgs[0].Product.Description != `15" screen, 16GB` || msgs[0].Product.Count != 3 {
		t.Errorf("unexpected first product %+v", msgs[0].Product)
	}
	if msgs[1].TierTotals.Premium != 1 || msgs[1].TierTotals.Discount != 1 {
		t.Errorf("running totals must include the current row, got %+v", msgs[1].TierTotals)
	}

	if report.Rows != 3 || report.Sent != 3 || !report.Complete() {
		t.Errorf("unexpected report %+v", report)
	}
	if len(bucket.streamed) != 1 {
		t.Errorf("expected a single read of the object, got %d", len(bucket.streamed))
	}
}

func TestImportQuotedLineBreak(t *testing.T) {
	body := "title,description,price,count\n" +
		"Lamp,\"Warm light\nwith dimmer\",35,4\n" +
		"Sofa,Grey,899,2\n"
	bucket := newFakeBucket(map[string]string{"uploaded/a.csv": body})
	queue := &fakeQueue{}
	imp := newTestImporter(bucket, queue, false)

	if _, err := imp.Import(context.Background(), "import-bucket", "uploaded/a.csv"); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	msgs := queue.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Product.Description != "Warm light\nwith dimmer" || msgs[0].Row != 0 {
		t.Errorf("unexpected first message %+v", msgs[0])
	}
	if msgs[1].Product.Title != "Sofa" || msgs[1].Row != 1 || !msgs[1].End {
		t.Errorf("unexpected last message %+v", msgs[1])
	}
}

func TestImportUnterminatedQuoteFails(t *testing.T) {
	bucket := newFakeBucket(map[string]string{"uploaded/a.csv": "title,price\n\"Lamp,10\nSofa,899\n"})
	queue := &fakeQueue{}
	imp := newTestImporter(bucket, queue, false)

	if _, err := imp.Import(context.Background(), "import-bucket", "uploaded/a.csv"); !errors.Is(err, ErrMalformedRow) {
		t.Errorf("expected ErrMalformedRow, got %v", err)
	}
	if len(queue.bodies) != 0 {
		t.Errorf("expected no messages, got %d", len(queue.bodies))
	}
}

func TestImportArchivesObject(t *testing.T) {
	bucket := newFakeBucket(map[string]string{"uploaded/my products.csv": threeRows})
	queue := &fakeQueue{}
	imp := newTestImporter(bucket, queue, true)

	err := imp.Handle(context.Background(), events.S3Event{Records: []events.S3EventRecord{{
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: "import-bucket"},
			Object: events.S3Object{Key: "uploaded/my+products.csv"},
		},
	}}})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if _, ok := bucket.objects["parsed/my products.csv"]; !ok {
		t.Error("expected object to be copied to parsed/")
	}
	if _, ok := bucket.objects["uploaded/my products.csv"]; ok {
		t.Error("expected uploaded object to be deleted")
	}
	if got := *bucket.copies[0].CopySource; got != "import-bucket%2Fuploaded%2Fmy%20products.csv" {
		t.Errorf("unexpected copy source %s", got)
	}
}

func TestImportArchiveFailureIsNotFatal(t *testing.T) {
	bucket := newFakeBucket(map[string]string{"uploaded/a.csv": threeRows})
	bucket.copyErr = &s3types.ObjectNotInActiveTierError{}
	imp := newTestImporter(bucket, &fakeQueue{}, true)

	if _, err := imp.Import(context.Background(), "import-bucket", "uploaded/a.csv"); err != nil {
		t.Fatalf("archive failures must not fail the import: %v", err)
	}
	if len(bucket.deletes) != 0 {
		t.Error("original must be kept when the copy fails")
	}
}

func TestArchiveWaitHonoursDeadline(t *testing.T) {
	imp := newTestImporter(newFakeBucket(nil), &fakeQueue{}, true)

	if got := imp.archiveWait(context.Background()); got != DefaultArchiveWait {
		t.Errorf("expected %v without a deadline, got %v", DefaultArchiveWait, got)
	}

	long, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if got := imp.archiveWait(long); got != DefaultArchiveWait {
		t.Errorf("expected %v with a distant deadline, got %v", DefaultArchiveWait, got)
	}

	short, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if got := imp.archiveWait(short); got <= 0 || got > 500*time.Millisecond {
		t.Errorf("expected at most a quarter of the remaining time, got %v", got)
	}
}

func TestImportSkipsArchiveAtDeadline(t *testing.T) {
	bucket := newFakeBucket(map[string]string{"uploaded/a.csv": threeRows})
	queue := &fakeQueue{}
	imp := newTestImporter(bucket, queue, true)

	// The fakes ignore ctx, so only the archive step sees the spent deadline.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if _, err := imp.Import(ctx, "import-bucket", "uploaded/a.csv"); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if len(bucket.copies) != 0 || len(bucket.deletes) != 0 {
		t.Errorf("expected no archive attempt, got %d copies and %d deletes", len(bucket.copies), len(bucket.deletes))
	}
}

func TestImportSendFailuresAreCounted(t *testing.T) {
	bucket := newFakeBucket(map[string]string{"uploaded/a.csv": threeRows})
	queue := &fakeQueue{failRows: map[int]bool{1: true}}
	imp := newTestImporter(bucket, queue, false)

	report, err := imp.Import(context.Background(), "import-bucket", "uploaded/a.csv")
	if err != nil {
		t.Fatalf("send failures must not fail the import: %v", err)
	}
	if report.Sent != 2 || report.SendFailures != 1 || report.Complete() {
		t.Errorf("unexpected report %+v", report)
	}
	msgs := queue.messages(t)
	if len(msgs) != 2 || !msgs[1].End {
		t.Fatalf("expected the end marker to follow the failed row, got %+v", msgs)
	}
	if msgs[1].Enqueued != 2 || msgs[1].TierTotals.Sum() != 3 {
		t.Errorf("end marker must count only enqueued rows and tally all parsed ones, got enqueued %d totals %+v", msgs[1].Enqueued, msgs[1].TierTotals)
	}
}

func TestImportRejectsInvalidInput(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		body    string
		wantErr error
	}{
		{"outside upload prefix", "parsed/a.csv", threeRows, ErrInvalidKey},
		{"prefix only", "uploaded/", threeRows, ErrInvalidKey},
		{"bad escape", "uploaded/%zz.csv", threeRows, ErrInvalidKey},
		{"missing object", "uploaded/missing.csv", "", ErrObjectNotFound},
		{"bad price", "uploaded/a.csv", "title,price\nLamp,cheap\n", ErrMalformedRow},
		{"missing price column", "uploaded/a.csv", "title,description\nLamp,desk\n", ErrMissingColumn},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			objects := map[string]string{}
			if tc.body != "" {
				objects["uploaded/a.csv"] = tc.body
				objects["parsed/a.csv"] = tc.body
			}
			imp := newTestImporter(newFakeBucket(objects), &fakeQueue{}, false)

			_, err := imp.Import(context.Background(), "import-bucket", tc.key)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestImportHeaderOnly(t *testing.T) {
	bucket := newFakeBucket(map[string]string{"uploaded/a.csv": "title,description,price,count\n"})
	queue := &fakeQueue{}
	imp := newTestImporter(bucket, queue, false)

	report, err := imp.Import(context.Background(), "import-bucket", "uploaded/a.csv")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.Rows != 0 || len(queue.bodies) != 0 {
		t.Errorf("expected no messages, got %d", len(queue.bodies))
	}
}

func TestFileName(t *testing.T) {
	imp := newTestImporter(newFakeBucket(nil), &fakeQueue{}, false)

	testCases := []struct {
		raw      string
		wantKey  string
		wantName string
	}{
		{"uploaded/products.csv", "uploaded/products.csv", "products.csv"},
		{"Uploaded/products.csv", "Uploaded/products.csv", "products.csv"},
		{"uploaded/spring+sale%282024%29.csv", "uploaded/spring sale(2024).csv", "spring sale(2024).csv"},
		{"uploaded/nested/dir.csv", "uploaded/nested/dir.csv", "nested/dir.csv"},
	}
	for _, tc := range testCases {
		key, name, err := imp.FileName(tc.raw)
		if err != nil {
			t.Errorf("FileName(%q) failed: %v", tc.raw, err)
			continue
		}
		if key != tc.wantKey || name != tc.wantName {
			t.Errorf("FileName(%q) = %q, %q; want %q, %q", tc.raw, key, name, tc.wantKey, tc.wantName)
		}
	}
}
