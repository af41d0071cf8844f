// Package secret loads the process-wide JWT signing key. The key is read
// exactly once at startup and is immutable afterwards; rotation requires a
// restart with a new secret.
package secret

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/avolkov/authgate/internal/common"
	"github.com/avolkov/authgate/internal/server/config"
)

// Provider yields the signing key. Load failures surface as
// common.ErrSecretUnavailable and are fatal at startup.
type Provider interface {
	Load(ctx context.Context) ([]byte, error)
}

// FromConfig selects a Provider based on Config.SecretSource.
func FromConfig(cfg *config.Config) (Provider, error) {
	switch cfg.SecretSource {
	case "file":
		return &FileProvider{Path: cfg.SecretFile}, nil
	case "env":
		return &EnvProvider{Name: cfg.SecretEnvVar}, nil
	case "s3":
		return &S3Provider{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			ObjectKey:    cfg.S3SecretObjectKey,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown secret source %q", common.ErrSecretUnavailable, cfg.SecretSource)
	}
}

// FileProvider reads the key from a local file, trimming trailing whitespace.
type FileProvider struct {
	Path string
}

func (p *FileProvider) Load(ctx context.Context) ([]byte, error) {
	b, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", common.ErrSecretUnavailable, p.Path, err)
	}
	return normalize(b)
}

// EnvProvider reads the key from an environment variable.
type EnvProvider struct {
	Name string
}

func (p *EnvProvider) Load(ctx context.Context) ([]byte, error) {
	v, ok := os.LookupEnv(p.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not set", common.ErrSecretUnavailable, p.Name)
	}
	return normalize([]byte(v))
}

// Seams for testing the S3 path without network access.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}
)

// S3Provider fetches the key object from an S3-compatible bucket (MinIO in
// development) using static credentials.
type S3Provider struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
	ObjectKey    string
}

func (p *S3Provider) Load(ctx context.Context) ([]byte, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(p.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.User,
			p.Password,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%w: aws config: %v", common.ErrSecretUnavailable, err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(p.BaseEndpoint)
	})

	out, err := getObject(client, ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.Bucket),
		Key:    aws.String(p.ObjectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching s3://%s/%s: %v", common.ErrSecretUnavailable, p.Bucket, p.ObjectKey, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading object body: %v", common.ErrSecretUnavailable, err)
	}
	return normalize(b)
}

func normalize(b []byte) ([]byte, error) {
	key := strings.TrimRight(string(b), "\r\n\t ")
	if key == "" {
		return nil, fmt.Errorf("%w: secret is empty", common.ErrSecretUnavailable)
	}
	return []byte(key), nil
}
