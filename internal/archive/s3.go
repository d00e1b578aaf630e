// Package archive copies completed simulation results to an S3-compatible
// object store for long-term retention beyond the local database window.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// Client wraps an S3-compatible bucket (AWS S3, Cloudflare R2, MinIO).
type Client struct {
	s3       *s3.Client
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// Config holds the object store connection settings. Endpoint may be empty
// for plain AWS S3.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// NewClient builds an S3 client with static credentials and an optional
// custom endpoint.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &Client{
		s3:       s3Client,
		uploader: manager.NewUploader(s3Client),
		bucket:   cfg.Bucket,
		log:      log.With().Str("component", "archive").Logger(),
	}, nil
}

// Upload stores an object under key.
func (c *Client) Upload(ctx context.Context, key string, payload []byte) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// List returns objects under a key prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]types.Object, error) {
	out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return out.Contents, nil
}

// Delete removes an object by key.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// resultSource is what the archiver needs from the result store.
type resultSource interface {
	GetRaw(ref string) ([]byte, error)
}

// Archiver uploads each completed job's encoded result to the bucket. Keys
// are date-partitioned so rotation by prefix stays cheap.
type Archiver struct {
	client  *Client
	results resultSource
	log     zerolog.Logger
}

// NewArchiver creates an archiver over the given client and result source.
func NewArchiver(client *Client, results resultSource, log zerolog.Logger) *Archiver {
	return &Archiver{
		client:  client,
		results: results,
		log:     log.With().Str("component", "archiver").Logger(),
	}
}

// ArchiveResult uploads the stored result blob for a reference. The blob is
// archived as-is, so a restore round-trips byte for byte.
func (a *Archiver) ArchiveResult(ctx context.Context, ref string) error {
	payload, err := a.results.GetRaw(ref)
	if err != nil {
		return fmt.Errorf("failed to read result %s for archive: %w", ref, err)
	}

	key := fmt.Sprintf("results/%s/%s.msgpack", time.Now().UTC().Format("2006-01-02"), ref)
	if err := a.client.Upload(ctx, key, payload); err != nil {
		return err
	}

	a.log.Debug().
		Str("ref", ref).
		Str("key", key).
		Int("bytes", len(payload)).
		Msg("Archived simulation result")
	return nil
}
