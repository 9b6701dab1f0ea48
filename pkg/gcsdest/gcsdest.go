// Package gcsdest extracts GRP archive members into Google Cloud Storage.
package gcsdest

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	storage "cloud.google.com/go/storage"
	cloudopt "google.golang.org/api/option"

	"github.com/ThomasHabets/grpar/pkg/grp"
)

const scheme = "gs://"

// IsURL returns true if s names a GCS location rather than a local path.
func IsURL(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// Parse splits gs://bucket/some/prefix into bucket and prefix.
// The prefix has no leading or trailing slashes.
func Parse(s string) (string, string, error) {
	if !IsURL(s) {
		return "", "", fmt.Errorf("%q is not a gs:// URL", s)
	}
	rest := strings.TrimPrefix(s, scheme)
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%q has no bucket name", s)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// Bucket is a grp.Destination writing objects under a prefix in a bucket.
type Bucket struct {
	// Used for every request, since grp.Destination methods take no context.
	ctx    context.Context
	client *storage.Client
	bucket string
	prefix string
}

var _ grp.Destination = (*Bucket)(nil)

// New connects to GCS. If credentials is empty, default credentials are used.
func New(ctx context.Context, url, credentials string) (*Bucket, error) {
	var opts []cloudopt.ClientOption
	if credentials != "" {
		opts = append(opts, cloudopt.WithCredentialsFile(credentials))
	}
	return newBucket(ctx, url, opts...)
}

func newBucket(ctx context.Context, url string, opts ...cloudopt.ClientOption) (*Bucket, error) {
	bucket, prefix, err := Parse(url)
	if err != nil {
		return nil, err
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %v", err)
	}
	return &Bucket{
		ctx:    ctx,
		client: c,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Close closes the storage client.
func (b *Bucket) Close() error {
	return b.client.Close()
}

func (b *Bucket) String() string {
	return scheme + path.Join(b.bucket, b.prefix)
}

func (b *Bucket) Validate() error {
	if _, err := b.client.Bucket(b.bucket).Attrs(b.ctx); err != nil {
		return fmt.Errorf("%w %q: %w", grp.ErrInvalidDestinationDirectory, b.String(), err)
	}
	return nil
}

// Join returns the object name for an archive member.
func (b *Bucket) Join(name string) string {
	return path.Join(b.prefix, name)
}

// Create starts an upload to the named object. The object is only
// written once Close returns nil.
func (b *Bucket) Create(object string) (io.WriteCloser, error) {
	if object == "" {
		return nil, fmt.Errorf("empty object name")
	}
	return b.client.Bucket(b.bucket).Object(object).NewWriter(b.ctx), nil
}
