package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/youruser/animelens/internal/util"
)

// Downloader delivers a finished file somewhere the user can pick it up and
// returns where it went.
type Downloader interface {
	Save(ctx context.Context, res *Result) (string, error)
}

// DirSink keeps a copy of every download in a local directory. Files are
// prefixed with a timestamp so repeated posters don't overwrite each other.
type DirSink struct {
	Dir string
	Now func() time.Time
}

func NewDirSink(dir string) (*DirSink, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirSink{Dir: dir, Now: time.Now}, nil
}

func (d *DirSink) Save(ctx context.Context, res *Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := d.Now().UTC().Format("20060102-150405.000") + "-" + res.Filename
	p := filepath.Join(d.Dir, name)
	if err := util.WriteFileAtomic(p, res.Data); err != nil {
		return "", fmt.Errorf("save %s: %w", res.Filename, err)
	}
	return p, nil
}

// S3Putter is the part of *s3.Client the sink needs.
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads downloads under s3://bucket/prefix.
type S3Sink struct {
	client S3Putter
	bucket string
	prefix string
	Now    func() time.Time
}

func NewS3Sink(client S3Putter, uri string) (*S3Sink, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok || rest == "" {
		return nil, fmt.Errorf("invalid s3 output %q", uri)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("invalid s3 output %q", uri)
	}
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), Now: time.Now}, nil
}

// NewDefaultS3Sink builds a client from the default AWS config chain.
func NewDefaultS3Sink(ctx context.Context, uri string) (*S3Sink, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Sink(s3.NewFromConfig(cfg), uri)
}

func (s *S3Sink) Save(ctx context.Context, res *Result) (string, error) {
	key := path.Join(s.prefix, s.Now().UTC().Format("20060102-150405.000")+"-"+res.Filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(res.Data),
		ContentType: aws.String(res.MediaType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// NewDownloader picks a sink for OUTPUT_DIR: s3:// URIs go to S3, anything
// else is a local directory. An empty target disables saving.
func NewDownloader(ctx context.Context, target string) (Downloader, error) {
	switch {
	case target == "":
		return nil, nil
	case strings.HasPrefix(target, "s3://"):
		return NewDefaultS3Sink(ctx, target)
	default:
		return NewDirSink(target)
	}
}
