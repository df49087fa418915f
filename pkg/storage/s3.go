package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/platinummonkey/agora/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// S3Config configures the object storage backend
type S3Config struct {
	Endpoint     string `env:"ENDPOINT"`
	Region       string `env:"REGION" envDefault:"us-east-1"`
	Bucket       string `env:"BUCKET"`
	AccessKey    string `env:"ACCESS_KEY"`
	SecretKey    string `env:"SECRET_KEY"`
	UsePathStyle bool   `env:"USE_PATH_STYLE"`
	CreateBucket bool   `env:"CREATE_BUCKET"`
}

// s3API is the subset of the S3 client the backend uses
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Backend implements Gateway on an S3 compatible bucket. Folders are key
// prefixes; an empty object named "folder/" marks a folder with no files.
type S3Backend struct {
	client s3API
	bucket string
}

// NewS3Backend creates an S3 backend from configuration
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// static credentials for MinIO or explicit keys; otherwise the default chain
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if cfg.CreateBucket {
		if err := createBucketIfNotExists(ctx, client, cfg.Bucket); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
		}
	}

	return newS3Backend(client, cfg.Bucket), nil
}

func newS3Backend(client s3API, bucket string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket}
}

func (b *S3Backend) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, "pkg/storage", "S3."+op,
		attribute.String("s3.operation", op),
		attribute.String("s3.bucket", b.bucket),
		attribute.String("s3.key", key),
	)
}

func folderPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

// List implements Gateway.List
func (b *S3Backend) List(ctx context.Context, p string) (entries []Entry, err error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	ctx, span := b.startSpan(ctx, "List", key)
	defer func() { observability.EndSpan(span, err) }()

	prefix := folderPrefix(key)
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	entries = []Entry{}
	found := key == ""
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, failed("s3", "list", key, err)
		}
		for _, cp := range page.CommonPrefixes {
			found = true
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, Entry{Name: name, Path: joinPath(key, name), IsDir: true})
		}
		for _, obj := range page.Contents {
			found = true
			objKey := aws.ToString(obj.Key)
			if objKey == prefix {
				continue
			}
			name := strings.TrimPrefix(objKey, prefix)
			entries = append(entries, Entry{
				Name:    name,
				Path:    objKey,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}
	if !found {
		return nil, failed("s3", "list", key, os.ErrNotExist)
	}

	span.SetAttributes(attribute.Int("s3.entries", len(entries)))
	SortEntries(entries)
	return entries, nil
}

// Upload implements Gateway.Upload
func (b *S3Backend) Upload(ctx context.Context, p string, r io.Reader) (err error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	ctx, span := b.startSpan(ctx, "PutObject", key)
	defer func() { observability.EndSpan(span, err) }()

	if err := b.checkParents(ctx, key); err != nil {
		return failed("s3", "upload", key, err)
	}
	isFolder, err := b.hasChildren(ctx, key)
	if err != nil {
		return failed("s3", "upload", key, err)
	}
	if isFolder {
		return failed("s3", "upload", key, errIsFolder)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return failed("s3", "upload", key, err)
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	hash := sha256.Sum256(data)
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
		},
	})
	if err != nil {
		return failed("s3", "upload", key, err)
	}
	return nil
}

// Download implements Gateway.Download
func (b *S3Backend) Download(ctx context.Context, p string) (rc io.ReadCloser, err error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return nil, err
	}
	ctx, span := b.startSpan(ctx, "GetObject", key)
	defer func() { observability.EndSpan(span, err) }()

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, failed("s3", "download", key, err)
	}
	if out.ContentLength != nil {
		span.SetAttributes(attribute.Int64("content.size", *out.ContentLength))
	}
	return out.Body, nil
}

// Delete implements Gateway.Delete. A folder is deleted with every object under it.
func (b *S3Backend) Delete(ctx context.Context, p string) (err error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	ctx, span := b.startSpan(ctx, "Delete", key)
	defer func() { observability.EndSpan(span, err) }()

	var keys []string
	exists, err := b.objectExists(ctx, key)
	if err != nil {
		return failed("s3", "delete", key, err)
	}
	if exists {
		keys = append(keys, key)
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(folderPrefix(key)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return failed("s3", "delete", key, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	if len(keys) == 0 {
		return failed("s3", "delete", key, os.ErrNotExist)
	}

	span.SetAttributes(attribute.Int("s3.objects", len(keys)))
	for _, k := range keys {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(k),
		})
		if err != nil {
			return failed("s3", "delete", k, err)
		}
	}
	return nil
}

// CreateFolder implements Gateway.CreateFolder
func (b *S3Backend) CreateFolder(ctx context.Context, p string) (err error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	ctx, span := b.startSpan(ctx, "CreateFolder", key)
	defer func() { observability.EndSpan(span, err) }()

	if err := b.checkParents(ctx, key); err != nil {
		return failed("s3", "create_folder", key, err)
	}
	isFile, err := b.objectExists(ctx, key)
	if err != nil {
		return failed("s3", "create_folder", key, err)
	}
	if isFile {
		return failed("s3", "create_folder", key, errNotFolder)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(folderPrefix(key)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return failed("s3", "create_folder", key, err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable
func (b *S3Backend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func (b *S3Backend) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFoundError(err) {
		return false, nil
	}
	return false, err
}

// checkParents fails with errNotFolder when an object is stored at any folder above key
func (b *S3Backend) checkParents(ctx context.Context, key string) error {
	for _, parent := range parentPaths(key) {
		isFile, err := b.objectExists(ctx, parent)
		if err != nil {
			return err
		}
		if isFile {
			return fmt.Errorf("%w: %s", errNotFolder, parent)
		}
	}
	return nil
}

// hasChildren reports whether any object lives under key as a folder
func (b *S3Backend) hasChildren(ctx context.Context, key string) (bool, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(folderPrefix(key)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

func createBucketIfNotExists(ctx context.Context, client s3API, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !isBucketAlreadyExistsError(err) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

func isBucketAlreadyExistsError(err error) bool {
	var exists *types.BucketAlreadyExists
	var owned *types.BucketAlreadyOwnedByYou
	return errors.As(err, &exists) || errors.As(err, &owned)
}
