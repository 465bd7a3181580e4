package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	minMultipartSize = 12 << 20
	// S3 can delete at most 1000 objects in one request
	maxDeleteBatch = 1000
)

// Bucket stores objects in an S3 compatible bucket. Used for both AWS and R2
type Bucket struct {
	C        *s3.Client
	Name     *string
	uploader *manager.Uploader
}

func NewS3(ctx context.Context) (*Bucket, error) {
	return newBucket(ctx,
		viper.GetString("aws.access_key"),
		viper.GetString("aws.secret_access_key"),
		viper.GetString("aws.bucket"),
		func(o *s3.Options) {
			o.Region = viper.GetString("aws.region")
		},
	)
}

func NewR2(ctx context.Context) (*Bucket, error) {
	return newBucket(ctx,
		viper.GetString("cloudflare.access_key_id"),
		viper.GetString("cloudflare.secret_access_key"),
		viper.GetString("cloudflare.bucket"),
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", viper.GetString("cloudflare.account_id")))
			o.Region = "auto"
		},
	)
}

func newBucket(ctx context.Context, accessKey, secretKey, name string, opts func(*s3.Options)) (*Bucket, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config, %w", err)
	}

	client := s3.NewFromConfig(cfg, opts)
	b := NewBucket(client, name)

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: b.Name,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("bucket '%s' does not exist", name)
		}

		return nil, fmt.Errorf("failed to check if bucket exists, %w", err)
	}

	return b, nil
}

// NewBucket wraps an already configured client
func NewBucket(c *s3.Client, name string) *Bucket {
	return &Bucket{
		C:    c,
		Name: aws.String(name),
		uploader: manager.NewUploader(c, func(u *manager.Uploader) {
			u.Concurrency = 5
			u.PartSize = 6 << 20
		}),
	}
}

func (b *Bucket) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      b.Name,
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	}

	if size > minMultipartSize {
		if _, err := b.uploader.Upload(ctx, in); err != nil {
			return fmt.Errorf("failed to upload object, %w", err)
		}
		return nil
	}

	in.ContentLength = aws.Int64(size)
	if _, err := b.C.PutObject(ctx, in); err != nil {
		return fmt.Errorf("failed to put object, %w", err)
	}

	return nil
}

func (b *Bucket) Open(ctx context.Context, key string) (*Object, error) {
	out, err := b.C.GetObject(ctx, &s3.GetObjectInput{
		Bucket: b.Name,
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to get object, %w", err)
	}

	return &Object{
		Body:        out.Body,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (b *Bucket) Delete(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := b.C.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: b.Name,
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects, %w", err)
		}

		for _, e := range out.Errors {
			zap.L().Warn("Failed to delete object",
				zap.String("code", aws.ToString(e.Code)),
				zap.String("message", aws.ToString(e.Message)),
			)
		}
	}

	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey", "NoSuchBucket":
		return true
	}

	return false
}
