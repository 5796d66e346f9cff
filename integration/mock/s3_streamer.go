package mock

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
)

// Stream provides a simplified implementation of s3streamer.Streamer for
// testing. Lines are passed without their newline; offset counts bytes
// from the start of the object.
func (m *S3Client) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	m.mu.Lock()
	content, ok := m.Files[fmt.Sprintf("%s/%s", bucket, key)]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("mock S3: key not found: %s/%s", bucket, key)
	}
	if offset > int64(len(content)) {
		return fmt.Errorf("mock S3: offset %d beyond object size %d", offset, len(content))
	}

	scanner := bufio.NewScanner(bytes.NewReader(content[offset:]))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	pos := offset
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if err := fn(line, pos); err != nil {
			return err
		}
		pos += int64(len(line)) + 1
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning lines: %w", err)
	}
	return nil
}
