package media

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const (
	backgroundRemovalTransformation = "e_background_removal"
	objectRemovalPrefix             = "e_gen_remove:prompt_"
)

type cloudinaryUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// Cloudinary hosts images on Cloudinary and uses its AI effects for
// background and object removal.
type Cloudinary struct {
	upload   cloudinaryUploader
	imageURL func(publicID, transformation string) (string, error)
}

var _ Host = (*Cloudinary)(nil)

// NewCloudinary creates a host from account credentials.
func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true

	return &Cloudinary{
		upload: &cld.Upload,
		imageURL: func(publicID, transformation string) (string, error) {
			img, err := cld.Image(publicID)
			if err != nil {
				return "", err
			}
			img.Transformation = transformation
			return img.String()
		},
	}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (Asset, error) {
	params := uploader.UploadParams{ResourceType: "image"}
	if opts.RemoveBackground {
		params.Transformation = backgroundRemovalTransformation
	}

	res, err := c.upload.Upload(ctx, r, params)
	if err != nil {
		return Asset{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res == nil {
		return Asset{}, fmt.Errorf("cloudinary upload: empty result")
	}
	if res.Error.Message != "" {
		return Asset{}, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return Asset{PublicID: res.PublicID, SecureURL: res.SecureURL}, nil
}

// ObjectRemovalURL escapes object into the prompt of a generative-remove
// effect. Separators that would start another parameter or transformation
// are refused.
func (c *Cloudinary) ObjectRemovalURL(publicID, object string) (string, error) {
	if strings.ContainsAny(object, ",/:;%") {
		return "", fmt.Errorf("%w: %q", ErrInvalidObject, object)
	}
	u, err := c.imageURL(publicID, objectRemovalPrefix+url.PathEscape(object))
	if err != nil {
		return "", fmt.Errorf("cloudinary url: %w", err)
	}
	return u, nil
}
