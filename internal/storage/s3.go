package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const (
	noSuchKey = "NoSuchKey"

	// minPartSize is used when the upload length is unknown.
	minPartSize = 5 << 20

	filenameKey = "filename"
)

// S3Options configures an S3Store.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// S3Store keeps blobs in an S3-compatible bucket, one object per blob.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store connects to the MinIO/S3 endpoint and makes sure the bucket exists.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Endpoint == "" || opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("%w: missing one or more of MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY", ErrUnavailable)
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create MinIO client: %w", ErrUnavailable, err)
	}

	s := &S3Store{client: client, bucket: opts.Bucket}
	if err := s.createBucket(ctx, opts.Region); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	log.WithFields(log.Fields{"prefix": "storage", "endpoint": opts.Endpoint, "bucket": opts.Bucket}).
		Info("connected to MinIO")
	return s, nil
}

func (s *S3Store) createBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
}

func (s *S3Store) Upload(ctx context.Context, r io.Reader, filename, contentType string, metadata map[string]string) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrUnavailable
	}

	id := uuid.NewString()
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: encodeMetadata(filename, metadata),
	}
	size := sizeOf(r)
	if size < 0 {
		opts.PartSize = minPartSize
	}

	if _, err := s.client.PutObject(ctx, s.bucket, id, r, size, opts); err != nil {
		return "", fmt.Errorf("%w: put %s: %w", ErrWrite, filename, err)
	}
	return id, nil
}

func (s *S3Store) Download(ctx context.Context, id string) (*Download, error) {
	if s == nil || s.client == nil {
		return nil, ErrUnavailable
	}

	info, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", ErrUnavailable, id, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrUnavailable, id, err)
	}

	filename, meta := decodeMetadata(info.UserMetadata)
	return NewDownload(BlobInfo{
		ID:          id,
		Filename:    filename,
		ContentType: info.ContentType,
		Size:        info.Size,
		Metadata:    meta,
		UploadedAt:  info.LastModified,
	}, obj), nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.client == nil {
		return ErrUnavailable
	}
	err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("%w: remove %s: %w", ErrDelete, id, err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, id string) (bool, error) {
	if s == nil || s.client == nil {
		return false, ErrUnavailable
	}
	_, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %w", ErrUnavailable, id, err)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == noSuchKey
}

// encodeMetadata escapes values so non-ASCII filenames survive as HTTP headers.
func encodeMetadata(filename string, metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[strings.ToLower(k)] = url.QueryEscape(v)
	}
	out[filenameKey] = url.QueryEscape(filename)
	return out
}

// decodeMetadata reverses encodeMetadata. MinIO hands user metadata back
// with canonicalised header casing.
func decodeMetadata(in map[string]string) (string, map[string]string) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if unescaped, err := url.QueryUnescape(v); err == nil {
			v = unescaped
		}
		out[strings.ToLower(k)] = v
	}
	filename := out[filenameKey]
	delete(out, filenameKey)
	return filename, out
}
