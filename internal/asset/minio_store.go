package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"bookmarket/internal/listing"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config locates the bucket that holds listing images.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base for locators. Defaults to the endpoint URL.
	PublicURL string
}

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioStore stores images in an S3-compatible bucket under
// <category>/<uuid><ext> and returns anonymous-readable URLs.
type MinioStore struct {
	client  objectPutter
	bucket  string
	baseURL string
	newName func() string
	log     *zap.Logger
}

// NewMinioStore connects to the object store and makes sure the bucket exists
// and allows anonymous reads.
func NewMinioStore(ctx context.Context, cfg Config, log *zap.Logger) (*MinioStore, error) {
	const op = "asset.NewMinioStore"

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: create client for %s: %w", op, cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: check bucket %s: %w", op, cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: make bucket %s: %w", op, cfg.Bucket, err)
		}
		log.Info("bucket created", zap.String("bucket", cfg.Bucket))
	}
	if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
		return nil, fmt.Errorf("%s: set bucket policy: %w", op, err)
	}

	baseURL := cfg.PublicURL
	if baseURL == "" {
		baseURL = client.EndpointURL().String()
	}
	return newStore(client, cfg.Bucket, baseURL, log), nil
}

func newStore(client objectPutter, bucket, baseURL string, log *zap.Logger) *MinioStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MinioStore{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		newName: uuid.NewString,
		log:     log.Named("asset"),
	}
}

// Store uploads data under a freshly generated name. The caller's filename
// only contributes its extension.
func (s *MinioStore) Store(ctx context.Context, category listing.Category, filename string, data []byte) (string, error) {
	mt := mimetype.Detect(data)
	key := objectKey(category, s.newName(), filename, mt)

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mt.String(),
	})
	if err != nil {
		s.log.Error("put object failed", zap.String("bucket", s.bucket), zap.String("key", key), zap.Error(err))
		return "", &listing.UploadError{Category: category, Err: err}
	}

	s.log.Debug("object stored",
		zap.String("key", info.Key),
		zap.Int64("size", info.Size),
		zap.String("content_type", mt.String()),
	)
	return s.Locator(key), nil
}

// Locator returns the public URL of an object key.
func (s *MinioStore) Locator(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key)
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// objectKey builds <category>/<name><ext>. The extension comes from the
// original filename when it looks sane, otherwise from the sniffed type.
func objectKey(category listing.Category, name, filename string, mt *mimetype.MIME) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !extPattern.MatchString(ext) {
		ext = mt.Extension()
	}
	return string(category) + "/" + name + ext
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"AWS": ["*"]},
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`, bucket)
}
