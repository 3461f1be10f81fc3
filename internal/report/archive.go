package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		_, err := c.PutObject(ctx, in)
		return err
	}

	presignGetObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return s3.NewPresignClient(c).PresignGetObject(ctx, in, optFns...)
	}
)

// LinkExpiry is how long an archived report's download link stays valid.
const LinkExpiry = 15 * time.Minute

// Archiver stores a rendered report and returns its key and a download link.
type Archiver interface {
	Archive(ctx context.Context, pdf []byte) (key, url string, err error)
}

// S3Config locates the bucket reports are archived in.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// S3Archiver archives reports to an S3-compatible bucket.
type S3Archiver struct {
	cfg S3Config
	now func() time.Time
}

func NewS3Archiver(cfg S3Config) *S3Archiver {
	return &S3Archiver{cfg: cfg, now: time.Now}
}

// StorageKey returns a fresh object key under reports/<y>/<m>/<d>/.
func StorageKey(d time.Time) string {
	return fmt.Sprintf("reports/%d/%d/%d/%v.pdf", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (a *S3Archiver) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.cfg.AccessKey,
			a.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if a.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Archive uploads pdf and returns its key and a presigned GET URL.
func (a *S3Archiver) Archive(ctx context.Context, pdf []byte) (string, string, error) {
	c, err := a.client(ctx)
	if err != nil {
		return "", "", fmt.Errorf("loading s3 config: %w", err)
	}

	bucket := a.cfg.Bucket
	key := StorageKey(a.now())

	err = putObject(c, ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(pdf),
		ContentType:   aws.String("application/pdf"),
		ContentLength: aws.Int64(int64(len(pdf))),
	})
	if err != nil {
		return "", "", fmt.Errorf("uploading report: %w", err)
	}

	req, err := presignGetObject(c, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(LinkExpiry))
	if err != nil {
		return key, "", fmt.Errorf("presigning report link: %w", err)
	}

	return key, req.URL, nil
}
