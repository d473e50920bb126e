package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"updater/internal/config"
	"updater/internal/updater"
)

// s3GetAPI is the subset of the S3 client used for downloads.
type s3GetAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// s3UploadAPI is the subset of the upload manager used for uploads.
type s3UploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Source serves s3://bucket/key URLs. Uploads go through the multipart
// upload manager so large files do not need to be buffered.
type S3Source struct {
	client   s3GetAPI
	uploader s3UploadAPI
}

// NewS3Source creates an S3Source from the s3 section of the config.
func NewS3Source(ctx context.Context, cfg config.S3Config) (*S3Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Source(client, manager.NewUploader(client)), nil
}

func newS3Source(client s3GetAPI, uploader s3UploadAPI) *S3Source {
	return &S3Source{client: client, uploader: uploader}
}

// Get streams the object at rawURL to w.
func (s *S3Source) Get(ctx context.Context, rawURL string, w io.Writer) error {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return fmt.Errorf("%w: %s", updater.ErrNotFound, rawURL)
		}
		return fmt.Errorf("getting s3 object %s: %w", rawURL, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading s3 object %s: %w", rawURL, err)
	}
	return nil
}

// Put uploads size bytes from r to rawURL.
func (s *S3Source) Put(ctx context.Context, rawURL string, r io.Reader, size int64) error {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return err
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("uploading s3 object %s: %w", rawURL, err)
	}
	return nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %s", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 url without key: %s", rawURL)
	}
	return u.Host, key, nil
}

var _ updater.SiteSource = (*S3Source)(nil)
