package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig locates the bucket that holds pipeline artifacts
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Region    string `yaml:"region" json:"region"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	Bucket    string `yaml:"bucket" json:"bucket"`
}

func (c MinIOConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// MinIO stores objects at <bucket>/<pipeline>/<key>
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinIOClient(cfg MinIOConfig) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// NewMinIO connects, makes sure the bucket exists and scopes keys to the
// pipeline name
func NewMinIO(ctx context.Context, cfg MinIOConfig, pipeline string) (*MinIO, error) {
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure artifacts bucket: %w", err)
	}
	return NewMinIOWithClient(client, cfg.Bucket, pipeline)
}

func NewMinIOWithClient(client *minio.Client, bucket, pipeline string) (*MinIO, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if pipeline == "" || strings.Contains(pipeline, "/") {
		return nil, fmt.Errorf("invalid pipeline name %q", pipeline)
	}
	return &MinIO{client: client, bucket: bucket, prefix: pipeline}, nil
}

// Location renders the s3:// URI of a key
func (s *MinIO) Location(key string) string {
	return "s3://" + s.bucket + "/" + path.Join(s.prefix, key)
}

// Put replaces any existing object under the same key
func (s *MinIO) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("minio store not initialized")
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	objectKey := path.Join(s.prefix, key)
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("put %s: %w", s.Location(key), err)
	}
	return s.Location(key), nil
}

// Open accepts an s3://bucket/key URI or a key relative to the bucket
func (s *MinIO) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("minio store not initialized")
	}
	bucket, key, err := s.parseLocation(location)
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing object here rather than on first read
	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	return obj, nil
}

func (s *MinIO) parseLocation(location string) (bucket, key string, err error) {
	if rest, ok := strings.CutPrefix(location, "s3://"); ok {
		b, k, found := strings.Cut(rest, "/")
		if !found || b == "" || k == "" {
			return "", "", fmt.Errorf("invalid object location %q", location)
		}
		return b, k, nil
	}
	if location == "" || strings.Contains(location, "://") {
		return "", "", fmt.Errorf("invalid object location %q", location)
	}
	return s.bucket, strings.TrimPrefix(location, "/"), nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
