// Package importer turns a CSV file uploaded to S3 into one queue message
// per product row.
//
// The object is read once, line by line. Each row is held back until the
// next one has been parsed, so the final row can be sent with End set
// without knowing the row count in advance.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gurre/ddb-catalog/aws"
	"github.com/gurre/ddb-catalog/catalog"
	"github.com/gurre/ddb-catalog/metrics"
	"github.com/gurre/s3streamer"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidKey is returned for objects outside the upload prefix.
	ErrInvalidKey = errors.New("invalid object key")
	// ErrObjectNotFound is returned when the uploaded object is gone.
	ErrObjectNotFound = errors.New("object not found")
)

// DefaultArchiveWait bounds how long archiving waits for S3 to reflect a
// copy or delete. Each wait is further limited to a quarter of the time
// left before the invocation deadline.
const DefaultArchiveWait = 2 * time.Second

// Options configure an Importer.
type Options struct {
	UploadPrefix string
	ParsedPrefix string
	QueueURL     string
	// Archive moves imported files from UploadPrefix to ParsedPrefix.
	Archive     bool
	ArchiveWait time.Duration
	Classifier  catalog.Classifier
}

// Importer handles S3 object-created events for uploaded CSV files.
type Importer struct {
	s3         aws.S3Client
	streamer   s3streamer.Streamer
	sqs        aws.SQSClient
	opts       Options
	keyPattern *regexp.Regexp
	newID      func() string
	log        zerolog.Logger
}

// New creates an Importer.
func New(s3Client aws.S3Client, streamer s3streamer.Streamer, sqsClient aws.SQSClient, opts Options, logger zerolog.Logger) *Importer {
	if opts.ArchiveWait <= 0 {
		opts.ArchiveWait = DefaultArchiveWait
	}
	return &Importer{
		s3:         s3Client,
		streamer:   streamer,
		sqs:        sqsClient,
		opts:       opts,
		keyPattern: regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(opts.UploadPrefix) + `(.+)$`),
		newID:      uuid.NewString,
		log:        logger,
	}
}

// Handle imports every object in the event. The first failure fails the
// invocation.
func (i *Importer) Handle(ctx context.Context, event events.S3Event) error {
	for _, record := range event.Records {
		if _, err := i.Import(ctx, record.S3.Bucket.Name, record.S3.Object.Key); err != nil {
			return err
		}
	}
	return nil
}

// FileName decodes an event object key and returns the decoded key and the
// file name below the upload prefix.
func (i *Importer) FileName(rawKey string) (key, name string, err error) {
	key, err = url.QueryUnescape(rawKey)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrInvalidKey, rawKey, err)
	}
	m := i.keyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, m[1], nil
}

// Import streams one uploaded object into the queue and returns the run's
// summary. Failed sends are logged and counted but do not stop the import;
// a missing object or an undecodable row does.
func (i *Importer) Import(ctx context.Context, bucket, rawKey string) (metrics.Report, error) {
	key, name, err := i.FileName(rawKey)
	if err != nil {
		i.log.Error().Err(err).Str("bucket", bucket).Msg("rejected object")
		return metrics.Report{}, err
	}

	importID := i.newID()
	log := i.log.With().Str("bucket", bucket).Str("source", key).Str("importId", importID).Logger()

	if err := i.checkExists(ctx, bucket, key); err != nil {
		log.Error().Err(err).Msg("cannot read uploaded object")
		return metrics.Report{}, err
	}

	m := metrics.NewMetrics()
	var (
		parser  rowParser
		totals  catalog.TierTotals
		pending *catalog.RowMessage
		row     int
		lineNo  int
		sent    int
	)

	err = i.streamer.Stream(ctx, bucket, key, 0, func(line []byte, _ int64) error {
		lineNo++
		product, ok, err := parser.parseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			return nil
		}

		tier := i.opts.Classifier.Classify(product.Price)
		totals.Add(tier)
		m.RecordRow(tier == catalog.TierPremium)

		msg := catalog.RowMessage{
			ImportID:   importID,
			Source:     key,
			Row:        row,
			Product:    product,
			TierTotals: totals,
		}
		row++

		if pending != nil && i.send(ctx, log, *pending, m) {
			sent++
		}
		pending = &msg
		return nil
	})
	if err == nil {
		err = parser.finish()
	}
	if err != nil {
		log.Error().Err(err).Msg("import failed")
		return m.GenerateReport(key), fmt.Errorf("failed to import s3://%s/%s: %w", bucket, key, err)
	}

	if pending != nil {
		pending.End = true
		pending.Enqueued = sent + 1
		i.send(ctx, log, *pending, m)
	} else {
		log.Warn().Msg("file has no product rows")
	}

	if i.opts.Archive {
		i.archive(ctx, log, bucket, key, name)
	}

	report := m.GenerateReport(key)
	if !report.Complete() {
		log.Warn().Object("report", report).Msg("import finished with unsent rows")
	} else {
		log.Info().Object("report", report).Msg("import finished")
	}
	return report, nil
}

func (i *Importer) checkExists(ctx context.Context, bucket, key string) error {
	_, err := i.s3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err == nil {
		return nil
	}
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
	}
	return fmt.Errorf("failed to head s3://%s/%s: %w", bucket, key, err)
}

// send reports whether the queue accepted msg. Failures are logged and
// counted only.
func (i *Importer) send(ctx context.Context, log zerolog.Logger, msg catalog.RowMessage, m *metrics.Metrics) bool {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Int("row", msg.Row).Msg("failed to encode row message")
		m.RecordSendFailure()
		return false
	}

	bodyStr := string(body)
	if _, err := i.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &i.opts.QueueURL,
		MessageBody: &bodyStr,
	}); err != nil {
		log.Error().Err(err).Int("row", msg.Row).Bool("end", msg.End).Msg("failed to send row message")
		m.RecordSendFailure()
		return false
	}
	m.RecordSent()
	return true
}
