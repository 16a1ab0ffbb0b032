package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("storage: object not found")
	ErrAccessDenied      = errors.New("storage: access denied")
	ErrUploadFailed      = errors.New("storage: upload failed")
	ErrDownloadFailed    = errors.New("storage: download failed")
	ErrDeleteFailed      = errors.New("storage: delete failed")
	ErrPresignFailed     = errors.New("storage: presign failed")
	ErrNotInitialized    = errors.New("storage: bucket is not initialized")
	ErrHealthcheckFailed = errors.New("storage: healthcheck failed")
)

// Object describes a stored object.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Bucket is the service other modules use.
type Bucket interface {
	// Put uploads r. An empty key generates one from a UUID and the content type.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Object, error)

	// Get returns the object body; the caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	// URL returns a presigned GET URL valid for expiry, or the configured default
	// when expiry is zero.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// PublicURL returns the unsigned URL of a publicly readable object.
	PublicURL(key string) string
}

type s3Bucket struct {
	client    *s3.Client
	presigner *s3.PresignClient
	options   *Options
}

func newBucket(o *Options) *s3Bucket {
	client := s3.New(s3.Options{}, func(so *s3.Options) {
		so.Region = o.Region
		so.Credentials = credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")
		so.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = o.PathStyle
		}
	})
	return &s3Bucket{client: client, presigner: s3.NewPresignClient(client), options: o}
}

func (b *s3Bucket) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Object, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if key == "" {
		key = generateKey(contentType)
	}
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Join(ErrUploadFailed, err)
		}
		body, size = bytes.NewReader(data), int64(len(data))
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.options.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, wrapError(err, ErrUploadFailed)
	}
	return &Object{Key: key, ContentType: contentType, Size: size}, nil
}

func (b *s3Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.options.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapError(err, ErrDownloadFailed)
	}
	return out.Body, nil
}

func (b *s3Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.options.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrapError(err, ErrDeleteFailed)
	}
	return nil
}

func (b *s3Bucket) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = b.options.URLExpiry
	}
	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.options.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", wrapError(err, ErrPresignFailed)
	}
	return req.URL, nil
}

func (b *s3Bucket) PublicURL(key string) string {
	o := b.options
	switch {
	case o.PublicURL != "":
		return strings.TrimSuffix(o.PublicURL, "/") + "/" + key
	case o.Endpoint != "" && o.PathStyle:
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(o.Endpoint, "/"), o.Bucket, key)
	case o.Endpoint != "":
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(o.Endpoint, "/"), key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", o.Bucket, o.Region, key)
	}
}

func (b *s3Bucket) healthcheck(ctx context.Context) error {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.options.Bucket)}); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

func generateKey(contentType string) string {
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = exts[0]
	}
	return uuid.NewString() + ext
}

func wrapError(err, fallback error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
