// Package upload issues presigned S3 PUT URLs for catalog CSV files.
package upload

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/ddb-catalog/apigw"
	"github.com/gurre/ddb-catalog/aws"
	"github.com/rs/zerolog"
)

// DefaultName is used when the request has no name parameter.
const DefaultName = "file"

// NameParameter is the query string parameter carrying the file name.
const NameParameter = "name"

// Handler answers GET /import with a presigned upload URL.
type Handler struct {
	presigner aws.S3Presigner
	bucket    string
	prefix    string
	expiry    time.Duration
	cors      apigw.CORS
	log       zerolog.Logger
}

// Options configure a Handler.
type Options struct {
	Bucket string
	Prefix string
	Expiry time.Duration
	Origin string
}

// NewHandler creates a Handler signing uploads into opts.Bucket.
func NewHandler(presigner aws.S3Presigner, opts Options, logger zerolog.Logger) *Handler {
	return &Handler{
		presigner: presigner,
		bucket:    opts.Bucket,
		prefix:    opts.Prefix,
		expiry:    opts.Expiry,
		cors:      apigw.NewCORS(opts.Origin, http.MethodGet),
		log:       logger,
	}
}

// Key returns the object key an upload of name is stored under.
func (h *Handler) Key(name string) string {
	if name == "" {
		name = DefaultName
	}
	return h.prefix + name
}

// Handle signs a PUT for the requested file name and returns the URL as the
// plain-text body.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	key := h.Key(req.QueryStringParameters[NameParameter])
	log := h.log.With().Str("key", key).Logger()

	signed, err := h.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &h.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(h.expiry))
	if err != nil {
		log.Error().Err(err).Msg("presign upload failed")
		return h.cors.Null(http.StatusInternalServerError), nil
	}

	log.Info().Dur("expiry", h.expiry).Msg("presigned upload")
	return h.cors.Text(http.StatusOK, signed.URL), nil
}
