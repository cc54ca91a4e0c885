// Package creations runs the AI tools: it validates input, enforces the
// free-plan quota, calls one provider pipeline, stores the result and records
// usage.
package creations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aisaas/backend/infra/gemini"
	"github.com/aisaas/backend/infra/huggingface"
	"github.com/aisaas/backend/infra/media"
	"github.com/aisaas/backend/internal/app/core/service"
	"github.com/aisaas/backend/internal/app/domain/creation"
	"github.com/aisaas/backend/internal/app/metrics"
	"github.com/aisaas/backend/internal/app/storage"
	svcerrors "github.com/aisaas/backend/internal/errors"
	"github.com/aisaas/backend/internal/logging"
	"github.com/aisaas/backend/internal/usage"
)

// Fixed prompts stored for tools whose input is a file.
const (
	PromptRemoveBackground = "Remove background from image"
	PromptReviewResume     = "Review the uploaded resume"

	blogTitleMaxTokens = 100
	maxObjectLength    = 100
)

// objectPattern admits words joined by spaces, hyphens or apostrophes.
var objectPattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} '-]*$`)

const (
	msgArticleInput    = "Bad Request: 'prompt' and 'length' are required."
	msgPromptRequired  = "A prompt is required."
	msgImageRequired   = "An image file is required."
	msgImageType       = "Unsupported file format. Please upload an image."
	msgObjectRequired  = "Please describe the object to remove."
	msgObjectInvalid   = "The object description contains unsupported characters."
	msgResumeRequired  = "A resume file is required."
	msgResumeType      = "Only PDF resumes are supported."
	msgPremiumOnly     = "This feature is only available for premium subscriptions."
	msgParseFailed     = "Failed to parse content from AI response."
	msgAIRequestFailed = "Error from AI service: request failed"
	msgImagePipeline   = "An unexpected error occurred during the image generation process."
	msgImageProcess    = "An unexpected error occurred while processing the image."
	msgTransformNA     = "Image transformations are not available on the configured media backend."
	msgUsageFailed     = "Failed to update usage."
)

const (
	providerGemini      = "gemini"
	providerHuggingFace = "huggingface"
	providerMedia       = "media"
)

// TextGenerator produces text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}

// ImageGenerator produces image bytes from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// DocumentReviewer reviews an inline document.
type DocumentReviewer interface {
	Review(ctx context.Context, prompt string, document []byte, mimeType string) (string, error)
}

// Meter enforces and records free-plan usage.
type Meter interface {
	Check(acct usage.Account) error
	Record(ctx context.Context, acct usage.Account) error
}

// Limits bound upload sizes.
type Limits struct {
	MaxImageBytes  int64
	MaxResumeBytes int64
}

// Upload is a file received from the client.
type Upload struct {
	Filename string
	Data     []byte
}

// Dependencies groups what the service calls out to.
type Dependencies struct {
	Store    storage.CreationStore
	Text     TextGenerator
	Images   ImageGenerator
	Media    media.Host
	Reviewer DocumentReviewer
	Meter    Meter
	Metrics  *metrics.Metrics
}

// Service implements the AI tools.
type Service struct {
	deps   Dependencies
	limits Limits
	log    *logging.Logger
}

// New constructs a creations service.
func New(deps Dependencies, limits Limits, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("creations")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("aisaas")
	}
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = 10 << 20
	}
	if limits.MaxResumeBytes <= 0 {
		limits.MaxResumeBytes = 5 << 20
	}
	return &Service{deps: deps, limits: limits, log: log}
}

// Descriptor advertises the service.
func (s *Service) Descriptor() service.Descriptor {
	return service.Descriptor{
		Name:   "creations",
		Domain: "ai",
		Layer:  service.LayerPlatform,
	}.WithCapabilities("article", "blog-title", "image", "remove-background", "remove-object", "resume-review")
}

// Limits returns the configured upload limits.
func (s *Service) Limits() Limits {
	return s.limits
}

// GenerateArticle writes an article of roughly length tokens about prompt.
func (s *Service) GenerateArticle(ctx context.Context, acct usage.Account, prompt string, length int) (creation.Creation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" || length <= 0 {
		return creation.Creation{}, svcerrors.BadRequest(msgArticleInput)
	}
	if err := s.checkQuota(acct); err != nil {
		return creation.Creation{}, err
	}

	text := fmt.Sprintf("Write an article about the following topic: \"%s\". The article should be approximately %d tokens long.", prompt, length)
	content, err := s.generateText(ctx, text, length)
	if err != nil {
		return creation.Creation{}, err
	}
	return s.persist(ctx, acct, creation.Creation{
		UserID: acct.UserID, Prompt: prompt, Content: content, Type: creation.TypeArticle,
	})
}

// GenerateBlogTitle suggests blog titles for prompt.
func (s *Service) GenerateBlogTitle(ctx context.Context, acct usage.Account, prompt string) (creation.Creation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return creation.Creation{}, svcerrors.BadRequest(msgPromptRequired)
	}
	if err := s.checkQuota(acct); err != nil {
		return creation.Creation{}, err
	}

	text := fmt.Sprintf("Generate a catchy blog title for the following topic: \"%s\". Reply with the title only.", prompt)
	content, err := s.generateText(ctx, text, blogTitleMaxTokens)
	if err != nil {
		return creation.Creation{}, err
	}
	return s.persist(ctx, acct, creation.Creation{
		UserID: acct.UserID, Prompt: prompt, Content: content, Type: creation.TypeBlogTitle,
	})
}

// GenerateImage renders prompt, hosts the image and stores its URL.
func (s *Service) GenerateImage(ctx context.Context, acct usage.Account, prompt string, publish bool) (creation.Creation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return creation.Creation{}, svcerrors.BadRequest(msgPromptRequired)
	}
	if err := s.checkQuota(acct); err != nil {
		return creation.Creation{}, err
	}

	start := time.Now()
	img, err := s.deps.Images.Generate(ctx, prompt)
	s.deps.Metrics.RecordProviderCall(providerHuggingFace, err, time.Since(start))
	if err != nil {
		var se *huggingface.StatusError
		if errors.As(err, &se) {
			return creation.Creation{}, svcerrors.Upstream(se.StatusCode, fmt.Sprintf("Hugging Face API Error: %d", se.StatusCode), err).
				WithDetails("details", se.Body)
		}
		return creation.Creation{}, svcerrors.Internal(msgImagePipeline, err)
	}

	contentType, ext := media.Sniff(img)
	asset, err := s.upload(ctx, img, media.UploadOptions{Filename: "generated" + ext, ContentType: contentType})
	if err != nil {
		return creation.Creation{}, s.mediaError(err, msgImagePipeline)
	}
	if asset.SecureURL == "" {
		return creation.Creation{}, svcerrors.Internal(msgImagePipeline, errors.New("upload returned no url"))
	}

	return s.persist(ctx, acct, creation.Creation{
		UserID: acct.UserID, Prompt: prompt, Content: asset.SecureURL, Type: creation.TypeImage, Publish: publish,
	})
}

// RemoveBackground uploads file with background removal applied.
func (s *Service) RemoveBackground(ctx context.Context, acct usage.Account, file Upload) (creation.Creation, error) {
	contentType, err := s.validateImage(file)
	if err != nil {
		return creation.Creation{}, err
	}
	if err := s.checkQuota(acct); err != nil {
		return creation.Creation{}, err
	}

	asset, err := s.upload(ctx, file.Data, media.UploadOptions{
		Filename: file.Filename, ContentType: contentType, RemoveBackground: true,
	})
	if err != nil {
		return creation.Creation{}, s.mediaError(err, msgImageProcess)
	}

	return s.persist(ctx, acct, creation.Creation{
		UserID: acct.UserID, Prompt: PromptRemoveBackground, Content: asset.SecureURL, Type: creation.TypeImage,
	})
}

// RemoveObject uploads file and stores a URL that erases object from it.
func (s *Service) RemoveObject(ctx context.Context, acct usage.Account, file Upload, object string) (creation.Creation, error) {
	contentType, err := s.validateImage(file)
	if err != nil {
		return creation.Creation{}, err
	}
	object = strings.Join(strings.Fields(object), " ")
	if object == "" {
		return creation.Creation{}, svcerrors.BadRequest(msgObjectRequired)
	}
	if len(object) > maxObjectLength || !objectPattern.MatchString(object) {
		return creation.Creation{}, svcerrors.BadRequest(msgObjectInvalid)
	}
	if err := s.checkQuota(acct); err != nil {
		return creation.Creation{}, err
	}

	asset, err := s.upload(ctx, file.Data, media.UploadOptions{Filename: file.Filename, ContentType: contentType})
	if err != nil {
		return creation.Creation{}, s.mediaError(err, msgImageProcess)
	}
	imageURL, err := s.deps.Media.ObjectRemovalURL(asset.PublicID, object)
	if err != nil {
		return creation.Creation{}, s.mediaError(err, msgImageProcess)
	}

	return s.persist(ctx, acct, creation.Creation{
		UserID: acct.UserID, Prompt: fmt.Sprintf("Removed %s from image", object), Content: imageURL, Type: creation.TypeImage,
	})
}

// ReviewResume asks the model for feedback on a PDF resume. Premium only.
func (s *Service) ReviewResume(ctx context.Context, acct usage.Account, file Upload) (creation.Creation, error) {
	if !acct.Premium() {
		s.deps.Metrics.RecordQuotaRejection("premium_only")
		return creation.Creation{}, svcerrors.Forbidden(msgPremiumOnly)
	}
	if len(file.Data) == 0 {
		return creation.Creation{}, svcerrors.BadRequest(msgResumeRequired)
	}
	if int64(len(file.Data)) > s.limits.MaxResumeBytes {
		return creation.Creation{}, TooLarge("Resume", s.limits.MaxResumeBytes)
	}
	if !media.IsPDF(file.Data) {
		return creation.Creation{}, svcerrors.BadRequest(msgResumeType)
	}

	prompt := "Review the attached resume and provide constructive feedback on its strengths, weaknesses and areas for improvement."
	start := time.Now()
	content, err := s.deps.Reviewer.Review(ctx, prompt, file.Data, "application/pdf")
	s.deps.Metrics.RecordProviderCall(providerGemini, err, time.Since(start))
	if err != nil {
		return creation.Creation{}, s.geminiError(err)
	}

	return s.persist(ctx, acct, creation.Creation{
		UserID: acct.UserID, Prompt: PromptReviewResume, Content: content, Type: creation.TypeResumeReview,
	})
}

// TooLarge reports an upload of kind above limit bytes.
func TooLarge(kind string, limit int64) error {
	return svcerrors.PayloadTooLarge(fmt.Sprintf("%s file size exceeds allowed size (%dmb)", kind, limit>>20))
}

// ListUserCreations returns the caller's creations, newest first.
func (s *Service) ListUserCreations(ctx context.Context, userID string) ([]creation.Creation, error) {
	list, err := s.deps.Store.ListUserCreations(ctx, userID)
	if err != nil {
		return nil, svcerrors.Internal("Failed to load creations.", err)
	}
	return list, nil
}

// ListPublishedCreations returns every published creation, newest first.
func (s *Service) ListPublishedCreations(ctx context.Context) ([]creation.Creation, error) {
	list, err := s.deps.Store.ListPublishedCreations(ctx)
	if err != nil {
		return nil, svcerrors.Internal("Failed to load creations.", err)
	}
	return list, nil
}

func (s *Service) checkQuota(acct usage.Account) error {
	if err := s.deps.Meter.Check(acct); err != nil {
		s.deps.Metrics.RecordQuotaRejection("free_limit")
		return err
	}
	return nil
}

func (s *Service) generateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	start := time.Now()
	content, err := s.deps.Text.Generate(ctx, prompt, maxTokens)
	s.deps.Metrics.RecordProviderCall(providerGemini, err, time.Since(start))
	if err != nil {
		return "", s.geminiError(err)
	}
	return content, nil
}

func (s *Service) geminiError(err error) error {
	var apiErr *gemini.APIError
	switch {
	case errors.As(err, &apiErr):
		return svcerrors.Upstream(apiErr.StatusCode, "Error from AI service: "+apiErr.Message, err)
	case errors.Is(err, gemini.ErrEmptyContent):
		return svcerrors.Internal(msgParseFailed, err)
	default:
		return svcerrors.Internal(msgAIRequestFailed, err)
	}
}

func (s *Service) validateImage(file Upload) (string, error) {
	if len(file.Data) == 0 {
		return "", svcerrors.BadRequest(msgImageRequired)
	}
	if int64(len(file.Data)) > s.limits.MaxImageBytes {
		return "", TooLarge("Image", s.limits.MaxImageBytes)
	}
	if !media.IsImage(file.Data) {
		return "", svcerrors.BadRequest(msgImageType)
	}
	contentType, _ := media.Sniff(file.Data)
	return contentType, nil
}

func (s *Service) upload(ctx context.Context, data []byte, opts media.UploadOptions) (media.Asset, error) {
	opts.Size = int64(len(data))
	start := time.Now()
	asset, err := s.deps.Media.Upload(ctx, bytes.NewReader(data), opts)
	s.deps.Metrics.RecordProviderCall(providerMedia, err, time.Since(start))
	return asset, err
}

func (s *Service) mediaError(err error, message string) error {
	if errors.Is(err, media.ErrTransformUnsupported) {
		return svcerrors.NotImplemented(msgTransformNA, err)
	}
	return svcerrors.Internal(message, err)
}

// persist stores c and then counts it against the caller's quota. A failure
// to record usage is reported even though the row was written.
func (s *Service) persist(ctx context.Context, acct usage.Account, c creation.Creation) (creation.Creation, error) {
	stored, err := s.deps.Store.CreateCreation(ctx, c)
	if err != nil {
		msg := "Failed to save creation."
		if c.Type == creation.TypeImage {
			msg = msgImagePipeline
		}
		return creation.Creation{}, svcerrors.Internal(msg, err)
	}
	s.deps.Metrics.RecordCreation(string(stored.Type))

	if err := s.deps.Meter.Record(ctx, acct); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("creation_id", stored.ID).Error("Failed to record usage")
		return stored, svcerrors.Internal(msgUsageFailed, err)
	}

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"creation_id": stored.ID,
		"type":        stored.Type,
	}).Info("Creation stored")
	return stored, nil
}
