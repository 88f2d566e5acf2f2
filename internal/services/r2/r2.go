// Package r2 uploads rendered media to Cloudflare R2 through its
// S3-compatible API and returns the object's public URL.
package r2

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"nator/internal/logging"
	"nator/internal/providers"
	"nator/internal/services"
	"nator/internal/textutil"
)

const (
	// Name is the registry name of this provider.
	Name = "r2"

	keyPrefix = "reels/"
	region    = "auto"
)

// Config holds the bucket credentials. Endpoint defaults to the account's
// R2 endpoint.
type Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string
	Endpoint        string
}

// Missing returns the names of required settings that are empty. The
// account id is only needed to derive the default endpoint.
func (c Config) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.AccountID) == "" && strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "r2.account_id")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"r2.access_key_id", c.AccessKeyID},
		{"r2.secret_access_key", c.SecretAccessKey},
		{"r2.bucket", c.Bucket},
		{"r2.public_base_url", c.PublicBaseURL},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// Uploader puts objects into a single bucket.
type Uploader struct {
	cfg    Config
	client *s3.Client
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes the uploader.
type Option func(*options)

type options struct {
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// WithHTTPClient overrides the SDK transport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithClock overrides the clock used for object keys.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New validates cfg and builds an S3 client pointed at R2.
func New(cfg Config, opts ...Option) (*Uploader, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, "uploading", "r2", "missing "+strings.Join(missing, ", "), nil)
	}
	o := options{now: time.Now, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", strings.TrimSpace(cfg.AccountID))
	}
	s3Opts := s3.Options{
		Region:                     region,
		BaseEndpoint:               aws.String(endpoint),
		Credentials:                credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle:               true,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if o.httpClient != nil {
		s3Opts.HTTPClient = o.httpClient
	}
	return &Uploader{
		cfg:    cfg,
		client: s3.New(s3Opts),
		now:    o.now,
		logger: o.logger,
	}, nil
}

// ObjectKey returns the key used for path at time now.
func ObjectKey(path string, now time.Time) string {
	return fmt.Sprintf("%s%d-%s", keyPrefix, now.UnixMilli(), textutil.SanitizeObjectName(filepath.Base(path)))
}

// PublicURL joins the public base URL and key.
func (u *Uploader) PublicURL(key string) string {
	return strings.TrimRight(strings.TrimSpace(u.cfg.PublicBaseURL), "/") + "/" + key
}

// Upload stores path under reels/ and returns its public URL. R2 public
// URLs do not expire.
func (u *Uploader) Upload(ctx context.Context, path string) (providers.Upload, error) {
	file, err := os.Open(path)
	if err != nil {
		return providers.Upload{}, services.Wrap(services.ErrNotFound, "uploading", "r2", "open "+path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return providers.Upload{}, fmt.Errorf("stat %s: %w", path, err)
	}

	key := ObjectKey(path, u.now())
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(path)),
	})
	if err != nil {
		return providers.Upload{}, services.Wrap(services.ErrExternalTool, "uploading", "r2", "put object "+key, err)
	}
	u.logger.Info("uploaded object",
		logging.String("bucket", u.cfg.Bucket),
		logging.String("key", key),
		logging.Int64("bytes", info.Size()),
	)
	return providers.Upload{URL: u.PublicURL(key)}, nil
}

// HealthCheck verifies the bucket is reachable with the configured keys.
func (u *Uploader) HealthCheck(ctx context.Context) providers.Health {
	name := "storage/" + Name
	if _, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.cfg.Bucket)}); err != nil {
		return providers.Unhealthy(name, err.Error())
	}
	return providers.Healthy(name)
}

func contentType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		return "video/mp4"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Register adds the r2 uploader to reg.
func Register(reg *providers.Registry) {
	reg.RegisterUploader(Name, func(ctx context.Context, env providers.Env) (providers.Uploader, error) {
		var cfg Config
		if env.Config != nil {
			r := env.Config.R2
			cfg = Config{
				AccountID:       r.AccountID,
				AccessKeyID:     r.AccessKeyID,
				SecretAccessKey: r.SecretAccessKey,
				Bucket:          r.Bucket,
				PublicBaseURL:   r.PublicBaseURL,
			}
		}
		for key, dst := range map[string]*string{
			"r2.account_id":        &cfg.AccountID,
			"r2.access_key_id":     &cfg.AccessKeyID,
			"r2.secret_access_key": &cfg.SecretAccessKey,
			"r2.bucket":            &cfg.Bucket,
			"r2.public_base_url":   &cfg.PublicBaseURL,
		} {
			value, err := env.Setting(ctx, key, *dst)
			if err != nil {
				return nil, err
			}
			*dst = value
		}
		uploader, err := New(cfg, WithLogger(env.Logger))
		if err != nil {
			return nil, err
		}
		return uploader, nil
	})
}

var _ providers.Uploader = (*Uploader)(nil)
