// Package httpapi exposes the creations service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aisaas/backend/internal/app/domain/creation"
	"github.com/aisaas/backend/internal/app/metrics"
	"github.com/aisaas/backend/internal/app/services/creations"
	svcerrors "github.com/aisaas/backend/internal/errors"
	"github.com/aisaas/backend/internal/httputil"
	"github.com/aisaas/backend/internal/logging"
	"github.com/aisaas/backend/internal/middleware"
	"github.com/aisaas/backend/internal/usage"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 1 << 20

// Options configures the router.
type Options struct {
	Verifier    middleware.SessionVerifier
	Usage       middleware.UsageLoader
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	// Health reports whether backing stores are reachable.
	Health func(ctx context.Context) error
}

type handler struct {
	svc    *creations.Service
	health func(ctx context.Context) error
	log    *logging.Logger
}

// NewRouter returns the full HTTP surface: public probes plus the /api/ai and
// /api/user groups behind session verification.
func NewRouter(svc *creations.Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logging.NewDefault("httpapi")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New("aisaas")
	}
	h := &handler{svc: svc, health: opts.Health, log: opts.Logger}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware(opts.Metrics))

	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	auth := middleware.NewAuthMiddleware(opts.Verifier, opts.Logger)

	ai := r.PathPrefix("/api/ai").Subrouter()
	ai.Use(auth.Handler)
	if opts.RateLimiter != nil {
		ai.Use(opts.RateLimiter.Handler)
	}
	ai.Use(middleware.NewUsageMiddleware(opts.Usage, opts.Logger).Handler)
	ai.HandleFunc("/generate-article", h.generateArticle).Methods(http.MethodPost)
	ai.HandleFunc("/generate-blog-title", h.generateBlogTitle).Methods(http.MethodPost)
	ai.HandleFunc("/generate-image", h.generateImage).Methods(http.MethodPost)
	ai.HandleFunc("/remove-img-background", h.removeBackground).Methods(http.MethodPost)
	ai.HandleFunc("/remove-img-object", h.removeObject).Methods(http.MethodPost)
	ai.HandleFunc("/review-resume", h.reviewResume).Methods(http.MethodPost)
	ai.HandleFunc("/get-user-creations", h.userCreations).Methods(http.MethodGet)

	user := r.PathPrefix("/api/user").Subrouter()
	user.Use(auth.Handler)
	if opts.RateLimiter != nil {
		user.Use(opts.RateLimiter.Handler)
	}
	user.HandleFunc("/get-user-creations", h.userCreations).Methods(http.MethodGet)
	user.HandleFunc("/get-publish-creations", h.publishedCreations).Methods(http.MethodGet, http.MethodPost)
	// Older clients still post to the misspelled path.
	user.HandleFunc("/get-publish-craetions", h.publishedCreations).Methods(http.MethodPost)

	cors := middleware.NewCORSMiddleware(opts.CORSOrigins)
	tracing := middleware.NewTracingMiddleware(opts.Logger)
	return tracing.Handler(middleware.Recover(opts.Logger)(cors.Handler(r)))
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "API is running")
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.log.WithContext(ctx).WithError(err).Warn("Health check failed")
			httputil.WriteErrorResponse(w, r, http.StatusServiceUnavailable, "unhealthy", nil)
			return
		}
	}
	httputil.WriteSuccess(w, httputil.Envelope{Message: "ok"})
}

func (h *handler) generateArticle(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt string `json:"prompt"`
		Length int    `json:"length"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, svcerrors.BadRequest("Bad Request: 'prompt' and 'length' are required."))
		return
	}
	c, err := h.svc.GenerateArticle(r.Context(), account(r), payload.Prompt, payload.Length)
	h.writeCreation(w, r, c, err)
}

func (h *handler) generateBlogTitle(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, svcerrors.BadRequest(err.Error()))
		return
	}
	c, err := h.svc.GenerateBlogTitle(r.Context(), account(r), payload.Prompt)
	h.writeCreation(w, r, c, err)
}

func (h *handler) generateImage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt   string `json:"prompt"`
		Publish  *bool  `json:"publish"`
		IsPublic *bool  `json:"ispublic"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, svcerrors.BadRequest(err.Error()))
		return
	}
	publish := false
	switch {
	case payload.Publish != nil:
		publish = *payload.Publish
	case payload.IsPublic != nil:
		publish = *payload.IsPublic
	}
	c, err := h.svc.GenerateImage(r.Context(), account(r), payload.Prompt, publish)
	h.writeCreation(w, r, c, err)
}

func (h *handler) removeBackground(w http.ResponseWriter, r *http.Request) {
	limit := h.svc.Limits().MaxImageBytes
	file, err := readUpload(w, r, "image", "Image", limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c, err := h.svc.RemoveBackground(r.Context(), account(r), file)
	h.writeCreation(w, r, c, err)
}

func (h *handler) removeObject(w http.ResponseWriter, r *http.Request) {
	limit := h.svc.Limits().MaxImageBytes
	file, err := readUpload(w, r, "image", "Image", limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c, err := h.svc.RemoveObject(r.Context(), account(r), file, r.FormValue("object"))
	h.writeCreation(w, r, c, err)
}

func (h *handler) reviewResume(w http.ResponseWriter, r *http.Request) {
	limit := h.svc.Limits().MaxResumeBytes
	file, err := readUpload(w, r, "resume", "Resume", limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c, err := h.svc.ReviewResume(r.Context(), account(r), file)
	h.writeCreation(w, r, c, err)
}

func (h *handler) userCreations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListUserCreations(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, httputil.Envelope{Creations: list})
}

func (h *handler) publishedCreations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPublishedCreations(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, httputil.Envelope{Creations: list})
}

func (h *handler) writeCreation(w http.ResponseWriter, r *http.Request, c creation.Creation, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	env := httputil.Envelope{Content: c.Content}
	if c.Type == creation.TypeImage {
		env.ImageURL = c.Content
	}
	httputil.WriteSuccess(w, env)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	entry := h.log.WithContext(r.Context()).WithError(err)
	if svcerrors.HTTPStatus(err) >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	httputil.WriteError(w, r, err)
}

func account(r *http.Request) usage.Account {
	acct, _ := middleware.AccountFrom(r.Context())
	return acct
}

// readUpload reads one multipart file. The returned data is capped one byte
// past limit so the service can report the size violation itself.
func readUpload(w http.ResponseWriter, r *http.Request, field, kind string, limit int64) (creations.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*limit+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return creations.Upload{}, creations.TooLarge(kind, limit)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return creations.Upload{}, svcerrors.BadRequest("Expected a multipart/form-data request.")
		}
		return creations.Upload{}, svcerrors.BadRequest("Could not read the uploaded form.")
	}

	f, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return creations.Upload{}, nil
		}
		return creations.Upload{}, svcerrors.BadRequest("Could not read the uploaded file.")
	}
	defer closeFile(f)

	data, _, err := httputil.ReadAllWithLimit(f, limit+1)
	if err != nil {
		return creations.Upload{}, svcerrors.Internal("Could not read the uploaded file.", err)
	}
	return creations.Upload{Filename: hdr.Filename, Data: data}, nil
}

func closeFile(f multipart.File) {
	_ = f.Close()
}
