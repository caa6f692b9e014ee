package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/anchorite-labs/anchorite/pkg/merkle"
)

// BatchArchive writes immutable batch snapshots to S3 for offline audit.
// The archive is append-only by convention: batches never change once
// built, so a key is written at most once.
type BatchArchive struct {
	client *s3.Client
	bucket string
	prefix string
}

// BatchArchiveConfig holds configuration for BatchArchive.
type BatchArchiveConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string // optional key prefix
}

// NewBatchArchive creates an S3-backed batch archive.
func NewBatchArchive(ctx context.Context, cfg BatchArchiveConfig) (*BatchArchive, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("store: load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	}

	return &BatchArchive{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (a *BatchArchive) key(batchID string) string {
	return a.prefix + "batches/" + batchID + ".json"
}

// Archive uploads the batch snapshot. Idempotent: an existing object for
// the same batch id is left untouched.
func (a *BatchArchive) Archive(ctx context.Context, b *merkle.Batch) error {
	key := a.key(b.BatchID)

	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}

	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("store: marshal batch: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("store: s3 put failed: %w", err)
	}
	return nil
}

// Fetch retrieves an archived batch by id.
func (a *BatchArchive) Fetch(ctx context.Context, batchID string) (*merkle.Batch, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(batchID)),
	})
	if err != nil {
		return nil, fmt.Errorf("store: s3 get failed for %s: %w", batchID, err)
	}
	defer func() { _ = result.Body.Close() }()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("store: read archived batch: %w", err)
	}

	var b merkle.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("store: decode archived batch: %w", err)
	}
	return &b, nil
}
