// Package gcs reads ledger objects from and writes reports to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
)

const scheme = "gs://"

// Client wraps a storage client shared by all reads and writes of a run.
type Client struct {
	client *storage.Client
}

// NewClient creates a storage client using Application Default Credentials.
func NewClient(ctx context.Context) (*Client, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs.NewClient: create storage client: %w", err)
	}
	return &Client{client: c}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Fetch downloads the object bytes for a gs:// URI.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, apperr.NewMissingInput("object", uri)
		}
		return nil, fmt.Errorf("gcs.Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("gcs.Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Upload writes data to the object named by a gs:// URI, replacing any previous version.
func (c *Client) Upload(ctx context.Context, uri string, data []byte, contentType string) error {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs.Upload: writing %s: %w", uri, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs.Upload: finalize %s: %w", uri, err)
	}
	return nil
}

// IsURI reports whether s names a GCS object.
func IsURI(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, scheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// ObjectName returns the base name of the object in a GCS URI.
// e.g., "gs://bucket/reports/anomalies.csv" → "anomalies.csv"
func ObjectName(uri string) string {
	trimmed := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
