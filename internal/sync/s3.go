package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates the backup object.
type S3Config struct {
	Bucket string
	Key    string
	Region string
	// Endpoint selects an S3-compatible service (MinIO and similar) and
	// switches to path-style addressing.
	Endpoint string
}

// objectPutter is the subset of *s3.Client the destination uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads the layouts export as a single object, replacing
// the previous backup.
type S3Destination struct {
	client objectPutter
	cfg    S3Config
}

// NewS3Destination loads AWS credentials from the default chain.
func NewS3Destination(ctx context.Context, cfg S3Config) (*S3Destination, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 destination: bucket is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("s3 destination: key is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Destination{client: s3.NewFromConfig(awsCfg, s3opts...), cfg: cfg}, nil
}

func (d *S3Destination) Name() string {
	return "s3://" + d.cfg.Bucket + "/" + d.cfg.Key
}

// Write uploads data. The line count is stored as object metadata so a
// backup can be sized without downloading it.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	lines := bytes.Count(data, []byte{'\n'})
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.cfg.Bucket),
		Key:         aws.String(d.cfg.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
		Metadata:    map[string]string{"export-lines": strconv.Itoa(lines)},
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", d.Name(), err)
	}
	return nil
}
