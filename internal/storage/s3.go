package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Client wraps the AWS S3 client with the transfer manager for large
// scans and result archival.
type S3Client struct {
	client     *s3.Client
	downloader *manager.Downloader
	uploader   *manager.Uploader
	bucketName string
}

// ObjectInfo represents metadata about a stored input document
type ObjectInfo struct {
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	OriginalName string            `json:"original_name,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Size         int64             `json:"size"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewS3Client creates a new S3 client. bucketName is the default bucket for
// HeadBucket and PutJSON; Download takes the bucket from the ref.
func NewS3Client(ctx context.Context, bucketName, region string) (*S3Client, error) {
	var opts []func(*awscfg.LoadOptions) error
	if region != "" {
		opts = append(opts, awscfg.WithRegion(region))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg)
	return &S3Client{
		client:     cli,
		downloader: manager.NewDownloader(cli),
		uploader:   manager.NewUploader(cli),
		bucketName: bucketName,
	}, nil
}

// Bucket returns the default bucket name.
func (s *S3Client) Bucket() string { return s.bucketName }

// ParseURL splits s3://bucket/key.
func ParseURL(ref string) (bucket, key string, err error) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if !strings.HasPrefix(ref, "s3://") || slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

// Download writes the object to w with concurrent ranged GETs and returns
// its metadata. The uploader's original filename, when present in the
// x-amz-meta-name header, is reported as OriginalName.
func (s *S3Client) Download(ctx context.Context, bucket, key string, w io.WriterAt) (*ObjectInfo, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat s3 object: %w", err)
	}

	info := &ObjectInfo{Bucket: bucket, Key: key, Metadata: make(map[string]string)}
	if head.ContentType != nil {
		info.ContentType = *head.ContentType
	}
	for k, v := range head.Metadata {
		info.Metadata[strings.ToLower(k)] = v
	}
	if name, ok := info.Metadata["name"]; ok {
		info.OriginalName = name
		log.Debug().Str("source", "metadata[name]").Str("filename", name).Msg("found original filename from S3 metadata")
	}

	n, err := s.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	info.Size = n

	log.Info().
		Str("bucket", bucket).
		Str("key", key).
		Str("original_name", info.OriginalName).
		Int64("size", n).
		Msg("downloaded s3 object")
	return info, nil
}

// PutJSON archives v as JSON under key in the default bucket.
func (s *S3Client) PutJSON(ctx context.Context, key string, v any) error {
	if s.bucketName == "" {
		return fmt.Errorf("no bucket configured")
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	log.Debug().Str("bucket", s.bucketName).Str("key", key).Int("bytes", len(body)).Msg("archived json to s3")
	return nil
}

// HeadBucket verifies the default bucket is reachable with the current credentials.
func (s *S3Client) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}
