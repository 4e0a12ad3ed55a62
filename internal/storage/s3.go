package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/AgenticFinLab/FinMycelium/internal/config"
)

// DocumentStore reads and writes source document text in an S3-compatible
// bucket. Documents are stored as plain text under documents/<id>.txt.
type DocumentStore struct {
	client *s3.Client
	bucket string
}

func NewDocumentStore(ctx context.Context, cfg config.StorageConfig) (*DocumentStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithBaseEndpoint(cfg.Endpoint),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure S3 client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePath
	})
	return &DocumentStore{client: client, bucket: cfg.Bucket}, nil
}

// Key returns the object key for a document ID.
func Key(documentID string) string {
	return fmt.Sprintf("documents/%s.txt", documentID)
}

// DocumentID recovers the document ID from an object key. Keys outside the
// documents/ prefix map to themselves so callers can pass raw IDs too.
func DocumentID(key string) string {
	id := strings.TrimPrefix(key, "documents/")
	return strings.TrimSuffix(id, ".txt")
}

// GetDocument fetches the text of one document by object key.
func (s *DocumentStore) GetDocument(ctx context.Context, key string) (string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get document from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return "", fmt.Errorf("failed to read document contents: %w", err)
	}
	return buf.String(), nil
}

// PutDocument uploads document text and returns its object key.
func (s *DocumentStore) PutDocument(ctx context.Context, documentID string, text string) (string, error) {
	key := Key(documentID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(text),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document to S3: %w", err)
	}
	return key, nil
}

// DeleteDocument removes a document object.
func (s *DocumentStore) DeleteDocument(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document from S3: %w", err)
	}
	return nil
}
