// Package artifacts reads CI report artifacts from object storage.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/singleflight"

	"github.com/openctemio/ingest/internal/config"
	"github.com/openctemio/ingest/pkg/logger"
)

// Store fetches report artifacts from S3-compatible storage. Blobs are
// memoized for the lifetime of the store so the grouped-scan flow can read
// the same artifact from several stages without refetching it.
type Store struct {
	logger *logger.Logger

	mu         sync.Mutex
	cfg        config.S3Config
	cfgHash    string
	client     *s3.Client
	blobs      map[string][]byte
	inflight   singleflight.Group
}

// NewStore creates an artifact store.
func NewStore(cfg config.S3Config, log *logger.Logger) *Store {
	return &Store{
		logger: log,
		cfg:    cfg,
		blobs:  make(map[string][]byte),
	}
}

// SetConfig swaps the storage settings. The cached client is keyed on the
// config fingerprint, so the next fetch after a real change rebuilds it.
func (s *Store) SetConfig(cfg config.S3Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// clientFor returns an S3 client for the current config, rebuilding it only
// when the config fingerprint changed since the last build.
func (s *Store) clientFor(ctx context.Context) (*s3.Client, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := s.cfg.Hash()
	if s.client != nil && s.cfgHash == hash {
		return s.client, s.cfg.Bucket, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(s.cfg.Region))
	if s.cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKey, s.cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
			o.UsePathStyle = s.cfg.ForcePathStyle
		})
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	s.cfgHash = hash
	s.logger.Debug("artifact store client rebuilt", "bucket", s.cfg.Bucket, "region", s.cfg.Region)

	return s.client, s.cfg.Bucket, nil
}

// Fetch returns the artifact blob at key, decompressed when stored gzipped.
// Concurrent fetches of the same key collapse into one request.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	if data, ok := s.blobs[key]; ok {
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()

	v, err, _ := s.inflight.Do(key, func() (any, error) {
		data, err := s.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.blobs[key] = data
		s.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Store) fetch(ctx context.Context, key string) ([]byte, error) {
	client, bucket, err := s.clientFor(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artifact %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", key, err)
	}

	return decompress(key, aws.ToString(resp.ContentEncoding), data)
}

// Put stores an artifact blob, gzip-compressing it on the way in.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	client, bucket, err := s.clientFor(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("failed to compress artifact %s: %w", key, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress artifact %s: %w", key, err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to put artifact %s: %w", key, err)
	}

	return nil
}

// List returns artifact keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	client, bucket, err := s.clientFor(ctx)
	if err != nil {
		return nil, err
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, "/") {
				keys = append(keys, key)
			}
		}
	}

	return keys, nil
}

// ClearPrefix drops memoized blobs under prefix, typically after a pipeline's
// report group has been fully stored.
func (s *Store) ClearPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			delete(s.blobs, key)
		}
	}
}

// decompress gunzips the blob when either the key or the content encoding
// says it is gzipped.
func decompress(key, contentEncoding string, data []byte) ([]byte, error) {
	if contentEncoding != "gzip" && !strings.HasSuffix(key, ".gz") {
		return data, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip artifact %s: %w", key, err)
	}
	defer gz.Close()

	out, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress artifact %s: %w", key, err)
	}
	return out, nil
}
