// Package publish uploads finished derived products to object storage.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/i474232898/prism-archive/internal/climate"
	"github.com/i474232898/prism-archive/internal/raster"
)

// putter is the part of *s3.Client the publisher uses.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher copies a product's raster, header and manifest to a bucket.
type S3Publisher struct {
	client putter
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Publisher builds a publisher from the default AWS credential chain.
func NewS3Publisher(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*S3Publisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Publisher(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

func newS3Publisher(client putter, bucket, prefix string, logger *zap.Logger) *S3Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Publisher{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// ObjectKey returns the bucket key of a product file.
func (p *S3Publisher) ObjectKey(prod climate.DerivedProduct, file string) string {
	return path.Join(p.prefix, prod.Tile, strconv.Itoa(prod.Date.Year()), filepath.Base(file))
}

// Publish uploads the product files. Objects with the same key are overwritten.
func (p *S3Publisher) Publish(ctx context.Context, prod climate.DerivedProduct) error {
	files := []string{prod.Path, raster.HeaderPath(prod.Path), climate.ManifestPath(prod.Path)}
	for _, file := range files {
		if err := p.upload(ctx, prod, file); err != nil {
			return err
		}
	}
	p.logger.Info("product published",
		zap.String("bucket", p.bucket),
		zap.String("key", p.ObjectKey(prod, prod.Path)))
	return nil
}

func (p *S3Publisher) upload(ctx context.Context, prod climate.DerivedProduct, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	key := p.ObjectKey(prod, file)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", p.bucket, key, err)
	}
	return nil
}
