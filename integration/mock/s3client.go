package mock

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is an in-memory implementation of aws.S3Client and
// aws.S3Presigner. It also streams objects line by line like
// s3streamer.Streamer.
type S3Client struct {
	mu sync.Mutex
	// Maps bucket/key to object content
	Files map[string][]byte
	// Maps bucket/key to ETags
	ETags map[string]*string
	// Presigned records every signed upload key.
	Presigned []string
}

// NewS3Client creates an empty mock S3 client.
func NewS3Client() *S3Client {
	return &S3Client{
		Files: make(map[string][]byte),
		ETags: make(map[string]*string),
	}
}

// Put stores content as an upload would.
func (m *S3Client) Put(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(bucket+"/"+key, content)
}

// Keys returns every stored bucket/key, sorted.
func (m *S3Client) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.Files))
	for k := range m.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *S3Client) put(bucketKey string, content []byte) {
	m.Files[bucketKey] = content
	m.ETags[bucketKey] = aws.String(fmt.Sprintf("\"%x\"", len(content)))
}

func (m *S3Client) lookup(bucket, key *string) (string, []byte, bool) {
	bucketKey := fmt.Sprintf("%s/%s", aws.ToString(bucket), aws.ToString(key))
	content, ok := m.Files[bucketKey]
	return bucketKey, content, ok
}

// HeadObject returns types.NotFound for missing objects, as S3 does.
func (m *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucketKey, content, ok := m.lookup(params.Bucket, params.Key)
	if !ok {
		return nil, &types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadObjectOutput{
		ETag:          m.ETags[bucketKey],
		ContentLength: aws.Int64(int64(len(content))),
	}, nil
}

// CopyObject copies within the mock. CopySource is the URL-escaped
// bucket/key of the source.
func (m *S3Client) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, err := url.PathUnescape(aws.ToString(params.CopySource))
	if err != nil {
		return nil, fmt.Errorf("invalid copy source: %w", err)
	}
	content, ok := m.Files[strings.TrimPrefix(source, "/")]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist: " + source)}
	}
	dst := fmt.Sprintf("%s/%s", aws.ToString(params.Bucket), aws.ToString(params.Key))
	m.put(dst, append([]byte(nil), content...))
	return &s3.CopyObjectOutput{}, nil
}

// DeleteObject removes an object. Deleting a missing key succeeds.
func (m *S3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucketKey, _, _ := m.lookup(params.Bucket, params.Key)
	delete(m.Files, bucketKey)
	delete(m.ETags, bucketKey)
	return &s3.DeleteObjectOutput{}, nil
}

// PresignPutObject returns a fake signed URL for the upload.
func (m *S3Client) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	m.mu.Lock()
	m.Presigned = append(m.Presigned, aws.ToString(params.Key))
	m.mu.Unlock()

	u := url.URL{
		Scheme:   "https",
		Host:     aws.ToString(params.Bucket) + ".s3.local",
		Path:     "/" + aws.ToString(params.Key),
		RawQuery: url.Values{"X-Amz-Expires": {fmt.Sprint(int64(opts.Expires / time.Second))}}.Encode(),
	}
	return &v4.PresignedHTTPRequest{URL: u.String(), Method: http.MethodPut}, nil
}
