// Package storage provides access to audio objects stored in MinIO.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	zlog "github.com/rs/zerolog/log"
)

// Config represents object storage configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	URLExpiry time.Duration // Lifetime of presigned URLs
}

// Client presigns object URLs.
type Client struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// New creates a storage client. No request is made until the client is used.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("storage endpoint and bucket are required")
	}

	// A fixed region avoids a bucket location lookup on every presign
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create MinIO client")
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &Client{
		client: client,
		bucket: cfg.Bucket,
		expiry: expiry,
	}, nil
}

// CheckBucket verifies that the bucket exists.
func (c *Client) CheckBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrapf(err, "failed to check bucket %s", c.bucket)
	}
	if !exists {
		return errors.Newf("bucket %s does not exist", c.bucket)
	}
	zlog.Info().Msgf("storage: bucket available: %s", c.bucket)
	return nil
}

// PresignedURL returns a time-limited GET URL for the object key.
func (c *Client) PresignedURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", errors.New("object key is required")
	}

	u, err := c.client.PresignedGetObject(ctx, c.bucket, key, c.expiry, nil)
	if err != nil {
		return "", errors.Wrapf(err, "failed to presign %s", key)
	}
	return u.String(), nil
}
