package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/sealed-config/interfaces"
)

// S3Config holds the connection settings of an S3 backend.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional, for S3-compatible services
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Backend stores node records as JSON objects in Amazon S3 or a compatible
// service, one object per node at <prefix>/<node>.json.
type S3Backend struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string

	// mu serializes read-modify-write cycles issued by this process.
	mu sync.Mutex
}

// NewS3Backend creates a new S3 storage backend.
// Static credentials are used when AccessKey and SecretKey are set; otherwise
// the default AWS credential chain applies.
func NewS3Backend(cfg S3Config, log *slog.Logger) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: missing S3 bucket", interfaces.ErrInvalidLocationURI)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	uri := fmt.Sprintf("s3://%s/%s?region=%s", cfg.Bucket, cfg.Prefix, cfg.Region)
	if cfg.AccessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", cfg.AccessKey, cfg.Bucket, cfg.Prefix, cfg.Region)
	}
	if cfg.Endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", cfg.Endpoint)
	}

	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(cfg.PathStyle)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	} else {
		log.Warn("No S3 credentials provided, falling back to the default credential chain")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Backend{
		client:      s3.New(sess),
		bucketName:  cfg.Bucket,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// LoadField reads a field from the node's record object.
// Returns ErrFieldNotFound if the object or the field doesn't exist.
func (b *S3Backend) LoadField(ctx context.Context, node interfaces.NodeIdentity, fieldPath interfaces.FieldPath) ([]byte, error) {
	if err := validateAddress(node, fieldPath); err != nil {
		return nil, err
	}

	start := time.Now()
	record, err := b.getRecord(ctx, node)
	if err != nil {
		b.log.Error("Failed to get record from S3",
			slog.String("node", node.String()),
			slog.String("bucket", b.bucketName),
			slog.String("key", b.objectKey(node)),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, err
	}

	value, err := loadRecordField(record, fieldPath)
	if err != nil {
		return nil, err
	}

	b.log.Debug("Loaded field from S3",
		slog.String("node", node.String()),
		slog.String("path", fieldPath.String()),
		slog.String("bucket", b.bucketName),
		slog.Int("size", len(value)),
		slog.Duration("duration", time.Since(start)))

	return value, nil
}

// SaveField writes a field to the node's record object, creating it if needed.
func (b *S3Backend) SaveField(ctx context.Context, node interfaces.NodeIdentity, fieldPath interfaces.FieldPath, raw []byte) error {
	if err := validateAddress(node, fieldPath); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	record, err := b.getRecord(ctx, node)
	if err != nil {
		return err
	}

	updated, err := saveRecordField(record, fieldPath, raw)
	if err != nil {
		return err
	}

	key := b.objectKey(node)
	_, err = b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(updated),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload record to S3: %w", err)
	}

	b.log.Debug("Stored field in S3",
		slog.String("node", node.String()),
		slog.String("path", fieldPath.String()),
		slog.String("bucket", b.bucketName),
		slog.String("key", key))

	return nil
}

// Available checks if the S3 backend is accessible by attempting to head the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

// getRecord returns the node's record, or nil if the object doesn't exist.
func (b *S3Backend) getRecord(ctx context.Context, node interfaces.NodeIdentity) ([]byte, error) {
	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(node)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get record from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read record body: %w", err)
	}
	return data, nil
}

func (b *S3Backend) objectKey(node interfaces.NodeIdentity) string {
	name := node.String() + ".json"
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
