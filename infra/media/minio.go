package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioConfig configures an S3-compatible host.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base URL objects are served from. Defaults to the
	// endpoint itself.
	PublicURL string
}

// Minio stores images in an S3-compatible bucket. It serves originals only;
// AI transformations return ErrTransformUnsupported.
type Minio struct {
	client    objectPutter
	bucket    string
	publicURL string
	newName   func() string
}

var _ Host = (*Minio)(nil)

// NewMinio connects to the configured endpoint.
func NewMinio(cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return newMinio(client, cfg.Bucket, base), nil
}

func newMinio(client objectPutter, bucket, publicURL string) *Minio {
	return &Minio{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		newName:   uuid.NewString,
	}
}

func (m *Minio) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (Asset, error) {
	if opts.RemoveBackground {
		return Asset{}, ErrTransformUnsupported
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := opts.Size
	if size <= 0 {
		size = -1
	}

	name := m.newName() + path.Ext(opts.Filename)
	if _, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return Asset{}, fmt.Errorf("minio put %s: %w", name, err)
	}
	return Asset{
		PublicID:  name,
		SecureURL: m.publicURL + "/" + m.bucket + "/" + name,
	}, nil
}

func (m *Minio) ObjectRemovalURL(string, string) (string, error) {
	return "", ErrTransformUnsupported
}
