// Package backend talks to the AI backend's HTTP API.
//
// The client issues exactly one attempt per call. Deadlines are enforced by
// the caller through the request context.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voxcanvas/internal/domain"
)

const (
	DefaultBaseURL = "http://localhost:8080"

	transcribePath = "/api/v1/audio/transcribe"
	chatPath       = "/api/v1/chat/message"
	imagePath      = "/api/v1/image/generate"

	audioPartName = "audioFile"
	queryPartName = "query"
	filesPartName = "files"

	maxResponseBytes = 32 << 20
	userAgent        = "voxcanvas/1.0"
)

// Config controls the backend client.
type Config struct {
	BaseURL string
}

// Client implements the transcriber, image generator, chat sender and remote
// fetcher ports over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend base URL %q: scheme must be http or https", base)
	}

	return &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With().Str("component", "backend").Logger(),
	}, nil
}

// Transcribe uploads a clip as the multipart part "audioFile" and returns the
// plain-text transcript.
func (c *Client) Transcribe(ctx context.Context, clip domain.Clip) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writeFilePart(writer, audioPartName, clip.Filename, clip.MimeType, clip.Data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(transcribePath, nil), &buf, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", &domain.TranscriptionFailedError{Status: resp.status, Body: string(resp.body)}
	}
	return string(resp.body), nil
}

// GenerateImage requests an image for prompt. The response encoding is left
// for the caller to classify.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (domain.ImagePayload, error) {
	query := url.Values{}
	query.Set("prompt", prompt)

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(imagePath, query), nil, "")
	if err != nil {
		return domain.ImagePayload{}, err
	}
	if !resp.ok() {
		return domain.ImagePayload{}, &domain.GenerationFailedError{
			Status: resp.status,
			Reason: resp.reason,
			Body:   string(resp.body),
		}
	}
	return domain.ImagePayload{ContentType: resp.contentType, Body: resp.body}, nil
}

// SendMessage posts a chat query with attachments and returns the reply text.
func (c *Client) SendMessage(ctx context.Context, query string, attachments []domain.Attachment) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField(queryPartName, query); err != nil {
		return "", fmt.Errorf("failed to write query part: %w", err)
	}
	for _, attachment := range attachments {
		if err := writeFilePart(writer, filesPartName, attachment.Name, attachment.MimeType, attachment.Data); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(chatPath, nil), &buf, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", &domain.ChatFailedError{Status: resp.status, Body: string(resp.body)}
	}
	return string(resp.body), nil
}

// Fetch downloads a remote image referenced by URL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", fmt.Errorf("cannot fetch %q: not an http(s) URL", rawURL)
	}

	resp, err := c.do(ctx, http.MethodGet, parsed.String(), nil, "")
	if err != nil {
		return nil, "", err
	}
	if !resp.ok() {
		return nil, "", fmt.Errorf("fetch failed: %d %s", resp.status, resp.reason)
	}
	return resp.body, resp.contentType, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type response struct {
	status      int
	reason      string
	contentType string
	body        []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (c *Client) do(ctx context.Context, method string, target string, body io.Reader, contentType string) (response, error) {
	requestID := uuid.New().String()
	logger := c.logger.With().Str("request_id", requestID).Str("method", method).Str("url", target).Logger()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return response{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return response{}, ctxErr
		}
		logger.Debug().Err(err).Msg("request failed")
		return response{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return response{}, ctxErr
		}
		return response{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > maxResponseBytes {
		return response{}, errors.New("response body exceeds size limit")
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(started)).
		Msg("request settled")

	return response{
		status:      resp.StatusCode,
		reason:      reasonPhrase(resp),
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

func writeFilePart(writer *multipart.Writer, field string, filename string, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create form file %s: %w", field, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write form file %s: %w", field, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
