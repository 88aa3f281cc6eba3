// Package mirror copies finished article bundles to S3-compatible object
// storage.
package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"xarchiver/pkg/config"
	"xarchiver/pkg/logger"
)

// ObjectPutter is the slice of the S3 API the mirror uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads article folders under a bucket prefix
type S3 struct {
	client ObjectPutter
	bucket string
	prefix string
	logger logger.Logger
}

// NewS3 creates a mirror from the default AWS credential chain with cfg
// overrides
func NewS3(ctx context.Context, cfg config.MirrorConfig, log logger.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("mirror bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewWithClient creates a mirror around an existing client
func NewWithClient(client ObjectPutter, bucket, prefix string, log logger.Logger) *S3 {
	if log == nil {
		log = logger.GetLogger()
	}
	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: log,
	}
}

// Key returns the object key for a file inside folder
func (m *S3) Key(folder, rel string) string {
	return path.Join(m.prefix, folder, filepath.ToSlash(rel))
}

// Upload copies every regular file under articleDir to
// <prefix>/<folder>/<relative path>. Temp files are skipped.
func (m *S3) Upload(ctx context.Context, articleDir, folder string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(articleDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(articleDir, p)
		if err != nil {
			return err
		}
		if err := m.put(ctx, p, m.Key(folder, rel)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("failed to mirror %s: %w", folder, err)
	}

	m.logger.DebugWithFields("Mirrored article", map[string]interface{}{
		"bucket": m.bucket,
		"folder": folder,
		"files":  uploaded,
	})
	return uploaded, nil
}

func (m *S3) put(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		in.ContentType = aws.String(ct)
	}

	if _, err := m.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
