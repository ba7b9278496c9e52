// Package s3 provides an S3-compatible sandbox storage backend with metrics.
// Prefixes are emulated with empty "dir/" marker objects so that empty
// directories survive.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/metrics"
	"github.com/fruitsalade/mixtape/internal/retry"
	"github.com/fruitsalade/mixtape/internal/storage"
)

// DeleteObjects accepts at most this many keys per call.
const deleteBatch = 1000

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Backend implements storage.Backend using S3/MinIO.
type Backend struct {
	client *s3.Client
	bucket string
	retry  retry.Policy
}

var _ storage.Backend = (*Backend)(nil)

// New creates a new S3 backend and makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	b := &Backend{
		client: client,
		bucket: cfg.Bucket,
		retry:  retry.DefaultPolicy(),
	}

	if err := b.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.Error(err))
	}
	return b, nil
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	return b.do(ctx, "ensure_bucket", func(ctx context.Context) error {
		if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)}); err == nil {
			return nil
		}
		if _, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}); err != nil {
			return fmt.Errorf("bucket %s does not exist and cannot create: %w", b.bucket, err)
		}
		logging.Info("created S3 bucket", zap.String("bucket", b.bucket))
		return nil
	})
}

// do runs one logical operation with retries on throttling and server
// errors, and records it.
func (b *Backend) do(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := retry.Do(ctx, b.retry, func(ctx context.Context) error {
		return classify(fn(ctx))
	})
	metrics.RecordStorageOperation("s3", op, time.Since(start), err == nil || errors.Is(err, fs.ErrNotExist))
	return err
}

type statusCoder interface {
	HTTPStatusCode() int
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.HTTPStatusCode(); {
		case code == 404:
			return fmt.Errorf("%w: %w", fs.ErrNotExist, err)
		case code == 429 || code >= 500:
			return retry.Transient(err)
		}
	}
	return err
}

// GetObject retrieves an object from S3.
func (b *Backend) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	var out *s3.GetObjectOutput
	err := b.do(ctx, "get_object", func(ctx context.Context) error {
		var err error
		out, err = b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("get object %s: %w", key, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// PutObject uploads content to S3. Bodies that cannot seek are spooled to a
// temp file first so that a retried attempt can resend them.
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		spool, n, err := spoolToTemp(body)
		if err != nil {
			return fmt.Errorf("put object %s: %w", key, err)
		}
		defer func() {
			spool.Close()
			os.Remove(spool.Name())
		}()
		rs, size = spool, n
	}

	err := b.do(ctx, "put_object", func(ctx context.Context) error {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return err
		}
		in := &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
			Body:   rs,
		}
		if size >= 0 {
			in.ContentLength = aws.Int64(size)
		}
		_, err := b.client.PutObject(ctx, in)
		return err
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	logging.Debug("S3 put object", zap.String("key", key), zap.Int64("size", size))
	return nil
}

func spoolToTemp(r io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp("", "mixtape-s3-*")
	if err != nil {
		return nil, 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, err
	}
	return f, n, nil
}

// DeleteObject removes an object from S3.
func (b *Backend) DeleteObject(ctx context.Context, key string) error {
	err := b.do(ctx, "delete_object", func(ctx context.Context) error {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	logging.Debug("S3 delete object", zap.String("key", key))
	return nil
}

// ObjectExists checks if an object exists in S3.
func (b *Backend) ObjectExists(ctx context.Context, key string) (bool, error) {
	err := b.do(ctx, "head_object", func(ctx context.Context) error {
		_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("head object %s: %w", key, err)
	}
	return true, nil
}

// List returns the objects and common prefixes directly under prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := b.do(ctx, "list", func(ctx context.Context) error {
			var err error
			page, err = p.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			out = append(out, storage.ObjectInfo{Key: aws.ToString(cp.Prefix), IsPrefix: true})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue // the prefix's own marker
			}
			out = append(out, storage.ObjectInfo{Key: key, Size: aws.ToInt64(obj.Size)})
		}
	}
	return out, nil
}

// MakePrefix writes the empty marker object for prefix.
func (b *Backend) MakePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	err := b.do(ctx, "make_prefix", func(ctx context.Context) error {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(prefix),
			Body:          emptyBody{},
			ContentLength: aws.Int64(0),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("make prefix %s: %w", prefix, err)
	}
	return nil
}

// DeletePrefix removes every object whose key starts with prefix.
func (b *Backend) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("refusing to delete backend root")
	}

	var ids []types.ObjectIdentifier
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list %s for delete: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	for len(ids) > 0 {
		n := min(len(ids), deleteBatch)
		chunk := ids[:n]
		ids = ids[n:]
		err := b.do(ctx, "delete_prefix", func(ctx context.Context) error {
			_, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(b.bucket),
				Delete: &types.Delete{Objects: chunk, Quiet: aws.Bool(true)},
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("delete prefix %s: %w", prefix, err)
		}
	}
	return nil
}

// PrefixExists reports whether any key, marker included, starts with prefix.
func (b *Backend) PrefixExists(ctx context.Context, prefix string) (bool, error) {
	if prefix == "" {
		return true, nil
	}
	var found bool
	err := b.do(ctx, "prefix_exists", func(ctx context.Context) error {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(b.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(1),
		})
		if err != nil {
			return err
		}
		found = len(out.Contents) > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("prefix exists %s: %w", prefix, err)
	}
	return found, nil
}

// Type returns "s3".
func (b *Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends.
func (b *Backend) Close() error { return nil }

type emptyBody struct{}

func (emptyBody) Read([]byte) (int, error)       { return 0, io.EOF }
func (emptyBody) Seek(int64, int) (int64, error) { return 0, nil }
