package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/convertflow/pkg/config"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

const (
	pingTimeout    = 5 * time.Second
	defaultTimeout = 60 * time.Second
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("gcs object not found")

type Client struct {
	svc          *storage.Service
	inputBucket  string
	outputBucket string
	timeout      time.Duration
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Object is a listed object.
type Object struct {
	Key         string
	Size        uint64
	ContentType string
	Metadata    map[string]string
}

// NewClient builds a JSON API storage client for the configured input and output buckets.
func NewClient(ctx context.Context, cfg config.StorageConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	var opts []option.ClientOption
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	if gcp.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(gcp.ProjectID))
	}

	client, err := NewClientWithOptions(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"input_bucket":  cfg.InputBucket,
			"output_bucket": cfg.OutputBucket,
		}), "gcs client initialized")
	}

	return client, nil
}

// NewClientWithOptions builds a client without a health check.
func NewClientWithOptions(ctx context.Context, cfg config.StorageConfig, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.InputBucket) == "" {
		return nil, errors.New("gcs input bucket is required")
	}
	if strings.TrimSpace(cfg.OutputBucket) == "" {
		return nil, errors.New("gcs output bucket is required")
	}

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		svc:          svc,
		inputBucket:  cfg.InputBucket,
		outputBucket: cfg.OutputBucket,
		timeout:      timeout,
	}, nil
}

func (c *Client) InputBucket() string {
	if c == nil {
		return ""
	}
	return c.inputBucket
}

func (c *Client) OutputBucket() string {
	if c == nil {
		return ""
	}
	return c.outputBucket
}

func (c *Client) Close() error {
	return nil
}

// Ping checks both buckets are reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errors.New("gcs client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	for _, bucket := range []string{c.inputBucket, c.outputBucket} {
		if _, err := c.svc.Buckets.Get(bucket).Context(ctx).Do(); err != nil {
			return fmt.Errorf("gcs bucket %q check failed: %w", bucket, err)
		}
	}
	return nil
}

// Get opens an object for reading. The caller must close the reader.
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	resp, err := c.svc.Objects.Get(bucket, key).Context(ctx).Download()
	if err != nil {
		cancel()
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("get gs://%s/%s: %w", bucket, key, err)
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// List returns every object under prefix.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out []Object
	err := c.svc.Objects.List(bucket).Prefix(prefix).Pages(ctx, func(page *storage.Objects) error {
		for _, item := range page.Items {
			out = append(out, Object{
				Key:         item.Name,
				Size:        item.Size,
				ContentType: item.ContentType,
				Metadata:    item.Metadata,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
	}
	return out, nil
}

// Exists reports whether an object is present.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.svc.Objects.Get(bucket, key).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat gs://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// Put uploads body with the given custom metadata.
func (c *Client) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	obj := &storage.Object{
		Name:        key,
		ContentType: contentType,
		Metadata:    metadata,
	}
	if _, err := c.svc.Objects.Insert(bucket, obj).Media(body, googleapi.ContentType(contentType)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("put gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Delete removes an object. A missing object is not an error.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.svc.Objects.Delete(bucket, key).Context(ctx).Do(); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeleteBatch removes every key, continuing past failures. The returned error
// combines every individual failure.
func (c *Client) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	var errs error
	for _, key := range keys {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		errs = multierr.Append(errs, c.Delete(ctx, bucket, key))
	}
	return errs
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
