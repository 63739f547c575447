package imagepkg

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Getter is the part of *s3.Client the fetcher needs.
type S3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads s3://bucket/key sources. Objects come through the SDK
// rather than a browser request, so they are never tainted.
type S3Fetcher struct {
	client S3Getter
}

func NewS3Fetcher(client S3Getter) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// NewDefaultS3Fetcher builds a client from the default AWS config chain.
func NewDefaultS3Fetcher(ctx context.Context) (*S3Fetcher, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Fetcher(s3.NewFromConfig(cfg)), nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, uri string) (*Fetched, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", uri, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object %s: %w", uri, err)
	}
	return &Fetched{Data: data}, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q", uri)
	}
	return u.Host, key, nil
}
