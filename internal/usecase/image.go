package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voxcanvas/internal/classify"
	"voxcanvas/internal/deadline"
	"voxcanvas/internal/domain"
	"voxcanvas/internal/observability"
	"voxcanvas/internal/ports"
)

// ErrSuperseded is returned when a newer request was issued before this one
// settled. The older outcome is discarded.
var ErrSuperseded = errors.New("image request superseded by a newer request")

// ErrNoImage is returned when there is nothing to download.
var ErrNoImage = errors.New("no generated image")

// ImageController generates images and keeps the single displayed result.
type ImageController struct {
	generator ports.ImageGenerator
	handles   ports.HandleStore
	fetcher   ports.RemoteFetcher
	events    ports.EventSink
	metrics   *observability.Metrics
	logger    zerolog.Logger
	timeout   time.Duration

	mu      sync.Mutex
	issued  uint64
	current domain.ImageResult
	closed  bool
}

func NewImageController(
	generator ports.ImageGenerator,
	handles ports.HandleStore,
	fetcher ports.RemoteFetcher,
	events ports.EventSink,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	timeout time.Duration,
) *ImageController {
	if timeout <= 0 {
		timeout = deadline.DefaultTimeout
	}
	return &ImageController{
		generator: generator,
		handles:   handles,
		fetcher:   fetcher,
		events:    events,
		metrics:   metrics,
		logger:    observability.WithComponent(logger, "image"),
		timeout:   timeout,
	}
}

// Generate requests an image for prompt and installs the outcome, either a
// displayable reference or a failure message, into the single result slot.
// The returned result is the one this call produced; err classifies a failure.
func (c *ImageController) Generate(ctx context.Context, prompt string) (domain.ImageResult, error) {
	started := time.Now()
	token := c.issue()
	logger := observability.WithCorrelationID(c.logger, "")

	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return c.fail(token, domain.ErrEmptyPrompt, "", observability.StatusEmptyPrompt, started)
	}

	payload, err := deadline.Call(ctx, c.timeout, func(callCtx context.Context) (domain.ImagePayload, error) {
		return c.generator.GenerateImage(callCtx, trimmed)
	})
	if err != nil {
		status := observability.StatusError
		if errors.Is(err, deadline.ErrExpired) {
			status = observability.StatusTimeout
			err = domain.ErrGenerationTimeout
		}
		logger.Warn().Err(err).Msg("image generation failed")
		return c.fail(token, err, "", status, started)
	}

	classified, err := classify.Response(payload.ContentType, payload.Body)
	if err != nil {
		logger.Warn().Err(err).Str("content_type", payload.ContentType).Msg("unusable image response")
		return c.fail(token, err, "", observability.StatusError, started)
	}

	result := domain.ImageResult{
		Reference: classified.Reference,
		Kind:      domain.ReferenceKindEmbeddable,
		MimeType:  classified.MimeType,
	}
	if classified.Kind == classify.KindBinary {
		if len(classified.Data) == 0 {
			logger.Warn().Str("content_type", payload.ContentType).Msg("image response has no body")
			return c.fail(token, domain.ErrEmptyImagePayload, string(classified.Kind), observability.StatusEmpty, started)
		}
		handle, err := c.handles.Mint(classified.Data, classified.MimeType)
		if err != nil {
			logger.Error().Err(err).Msg("failed to mint image handle")
			return c.fail(token, fmt.Errorf("failed to store image: %w", err), string(classified.Kind), observability.StatusError, started)
		}
		result.Reference = handle
		result.Kind = domain.ReferenceKindHandle
	}

	if !c.install(token, result) {
		if result.Revocable() {
			c.handles.Revoke(result.Reference)
		}
		c.metrics.RecordImageGeneration(string(classified.Kind), observability.StatusStale, time.Since(started))
		logger.Info().Msg("discarded stale image result")
		return result, ErrSuperseded
	}

	c.metrics.RecordImageGeneration(string(classified.Kind), observability.StatusSuccess, time.Since(started))
	logger.Info().
		Str("branch", string(classified.Kind)).
		Str("mime", result.MimeType).
		Dur("elapsed", time.Since(started)).
		Msg("image installed")
	return result, nil
}

// Current returns the result in the slot.
func (c *ImageController) Current() domain.ImageResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close invalidates any outstanding handle. Results settling afterwards are
// discarded.
func (c *ImageController) Close() {
	c.mu.Lock()
	previous := c.current
	c.current = domain.ImageResult{}
	c.closed = true
	if previous.Revocable() {
		c.handles.Revoke(previous.Reference)
	}
	c.mu.Unlock()
}

// Download returns a file name and the bytes of the displayed image.
func (c *ImageController) Download(ctx context.Context) (string, []byte, error) {
	result := c.Current()
	if result.Reference == "" {
		return "", nil, ErrNoImage
	}

	switch {
	case result.Kind == domain.ReferenceKindHandle:
		data, mimeType, err := c.handles.Bytes(result.Reference)
		if err != nil {
			return "", nil, fmt.Errorf("image no longer available: %w", err)
		}
		return classify.DownloadName(firstNonEmpty(result.MimeType, mimeType)), data, nil
	case strings.HasPrefix(result.Reference, "data:"):
		mimeType, data, err := classify.DecodeDataURI(result.Reference)
		if err != nil {
			return "", nil, err
		}
		return classify.DownloadName(firstNonEmpty(result.MimeType, mimeType)), data, nil
	default:
		out, err := deadline.Call(ctx, c.timeout, func(callCtx context.Context) (fetched, error) {
			data, contentType, err := c.fetcher.Fetch(callCtx, result.Reference)
			return fetched{data: data, contentType: contentType}, err
		})
		if err != nil {
			if errors.Is(err, deadline.ErrExpired) {
				return "", nil, errors.New("image download timed out")
			}
			return "", nil, err
		}
		return classify.DownloadName(classify.BinaryMime(out.contentType)), out.data, nil
	}
}

type fetched struct {
	data        []byte
	contentType string
}

func (c *ImageController) issue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

// install replaces the slot when token is the latest issued. The previous
// handle is revoked in the same critical section as the replacement, and the
// change is emitted before the lock is released so the view sees slot
// updates in order.
func (c *ImageController) install(token uint64, result domain.ImageResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || token != c.issued {
		return false
	}
	previous := c.current
	if previous.Revocable() && previous.Reference != result.Reference {
		c.handles.Revoke(previous.Reference)
	}
	c.current = result
	c.events.ImageResultChanged(result)
	return true
}

func (c *ImageController) fail(token uint64, err error, branch string, status string, started time.Time) (domain.ImageResult, error) {
	result := domain.ImageResult{Error: err.Error()}
	if !c.install(token, result) {
		c.metrics.RecordImageGeneration(branch, observability.StatusStale, time.Since(started))
		return result, ErrSuperseded
	}
	c.metrics.RecordImageGeneration(branch, status, time.Since(started))
	c.events.PipelineError(domain.ErrorCodeImage, err.Error())
	return result, err
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
