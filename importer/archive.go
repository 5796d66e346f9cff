package importer

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// archive copies the imported object below the parsed prefix and removes
// the original. Every failure is logged and ends the attempt; the import
// itself has already succeeded.
func (i *Importer) archive(ctx context.Context, log zerolog.Logger, bucket, key, name string) {
	dst := i.opts.ParsedPrefix + name
	log = log.With().Str("archiveKey", dst).Logger()

	wait := i.archiveWait(ctx)
	if wait <= 0 {
		log.Warn().Msg("no time left before the deadline, not archived")
		return
	}

	_, err := i.s3.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &bucket,
		CopySource: strPtr(url.PathEscape(bucket + "/" + key)),
		Key:        &dst,
	})
	if err != nil {
		var tierErr *s3types.ObjectNotInActiveTierError
		if errors.As(err, &tierErr) {
			log.Error().Err(err).Msg("object is not in the active tier, not archived")
			return
		}
		ev := log.Error().Err(err)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			ev = ev.Str("code", apiErr.ErrorCode())
		}
		ev.Msg("failed to copy object to archive")
		return
	}

	exists := s3.NewObjectExistsWaiter(i.s3, func(o *s3.ObjectExistsWaiterOptions) {
		o.MinDelay = 200 * time.Millisecond
		o.MaxDelay = 2 * time.Second
	})
	if err := exists.Wait(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &dst}, wait); err != nil {
		log.Error().Err(err).Msg("archived copy did not appear, keeping original")
		return
	}

	if _, err := i.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key}); err != nil {
		log.Error().Err(err).Msg("failed to delete uploaded object")
		return
	}

	gone := s3.NewObjectNotExistsWaiter(i.s3, func(o *s3.ObjectNotExistsWaiterOptions) {
		o.MinDelay = 200 * time.Millisecond
		o.MaxDelay = 2 * time.Second
	})
	if err := gone.Wait(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key}, wait); err != nil {
		log.Warn().Err(err).Msg("uploaded object still visible after delete")
		return
	}

	log.Info().Msg("archived uploaded object")
}

// archiveWait returns the limit for each of the two S3 waits. Both waits
// together must end before ctx's deadline, leaving the rest for the reply.
func (i *Importer) archiveWait(ctx context.Context) time.Duration {
	wait := i.opts.ArchiveWait
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline) / 4; left < wait {
			wait = left
		}
	}
	return wait
}

func strPtr(s string) *string {
	return &s
}
