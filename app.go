package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voxcanvas/internal/blobstore"
	"voxcanvas/internal/bootstrap"
	"voxcanvas/internal/config"
	"voxcanvas/internal/domain"
	"voxcanvas/internal/observability"
	"voxcanvas/internal/state"
	"voxcanvas/internal/usecase"
)

const (
	eventRecording  = "voxcanvas:recording"
	eventTranscript = "voxcanvas:transcript"
	eventImage      = "voxcanvas:image"
	eventMessage    = "voxcanvas:message"
	eventPrompt     = "voxcanvas:prompt"
	eventError      = "voxcanvas:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	recorder    *usecase.RecordingController
	images      *usecase.ImageController
	chat        *usecase.ChatController
	prompt      *state.PromptBuffer
	blobs       *blobstore.Store
	cfg         config.Config
	logger      zerolog.Logger
	stopMetrics context.CancelFunc
	bootErr     error
}

// ChatAttachment is a file picked in the view. Data arrives base64 encoded.
type ChatAttachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

func NewApp() *App {
	return &App{logger: zerolog.Nop()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.PromptChanged)
	if err != nil {
		a.bootErr = err
		a.PipelineError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.logger = observability.WithComponent(services.Logger, "app")
	a.recorder = services.Recorder
	a.images = services.Images
	a.chat = services.Chat
	a.prompt = services.Prompt
	a.blobs = services.Blobs

	if a.cfg.MetricsEnabled {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		go func() {
			if err := services.Metrics.Serve(metricsCtx, a.cfg.MetricsAddr, a.logger); err != nil {
				a.logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	a.RecordingStateChanged(domain.RecordingStateIdle, domain.RecordingReasonMicCold)
}

// shutdown revokes outstanding handles and lets in-flight uploads settle.
func (a *App) shutdown(_ context.Context) {
	if a.images != nil {
		a.images.Close()
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.blobs != nil {
		if n := a.blobs.RevokeAll(); n > 0 {
			a.logger.Debug().Int("handles", n).Msg("revoked remaining handles")
		}
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
}

// StartRecording acquires the microphone. Device failures surface as events.
func (a *App) StartRecording() (domain.RecordingStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.RecordingStatus{}, err
	}
	a.recorder.Start(a.ctx)
	return a.recorder.Status(), nil
}

// StopRecording releases the microphone and uploads the clip in the background.
func (a *App) StopRecording() (domain.RecordingStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.RecordingStatus{}, err
	}
	a.recorder.Stop()
	return a.recorder.Status(), nil
}

// GetRecordingStatus returns the current recording status.
func (a *App) GetRecordingStatus() domain.RecordingStatus {
	if a.recorder == nil {
		return domain.RecordingStatus{State: domain.RecordingStateIdle}
	}
	return a.recorder.Status()
}

// SetPrompt replaces the prompt text with what the user typed.
func (a *App) SetPrompt(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.prompt.Set(text)
	return nil
}

func (a *App) GetPrompt() string {
	if a.prompt == nil {
		return ""
	}
	return a.prompt.Text()
}

// GenerateImage requests an image for the current prompt.
func (a *App) GenerateImage() (domain.ImageResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.ImageResult{}, err
	}
	result, err := a.images.Generate(a.ctx, a.prompt.Text())
	if errors.Is(err, usecase.ErrSuperseded) {
		return a.images.Current(), nil
	}
	return result, err
}

func (a *App) GetImageResult() domain.ImageResult {
	if a.images == nil {
		return domain.ImageResult{}
	}
	return a.images.Current()
}

// DownloadImage saves the displayed image to a user-chosen path. It returns
// the written path, or an empty string when the dialog was cancelled.
func (a *App) DownloadImage() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}

	name, data, err := a.images.Download(a.ctx)
	if err != nil {
		a.PipelineError(domain.ErrorCodeDownload, err.Error())
		return "", err
	}

	path, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:           "Save image",
		DefaultFilename: name,
	})
	if err != nil {
		a.PipelineError(domain.ErrorCodeDownload, err.Error())
		return "", err
	}
	if path == "" {
		return "", nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		err = fmt.Errorf("failed to save image: %w", err)
		a.PipelineError(domain.ErrorCodeDownload, err.Error())
		return "", err
	}
	a.logger.Info().Str("path", path).Int("bytes", len(data)).Msg("image saved")
	return path, nil
}

// OpenImage opens a remote image URL in the system browser.
func (a *App) OpenImage() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	result := a.images.Current()
	if !isRemoteURL(result.Reference) {
		return fmt.Errorf("image is not a remote URL")
	}
	runtime.BrowserOpenURL(a.ctx, result.Reference)
	return nil
}

// SendMessage sends the prompt with optional attachments to the chat endpoint.
func (a *App) SendMessage(attachments []ChatAttachment) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.chat.Send(a.ctx, toAttachments(attachments))
}

func (a *App) GetMessages() []domain.Message {
	if a.chat == nil {
		return nil
	}
	return a.chat.Messages()
}

func (a *App) ClearMessages() {
	if a.chat != nil {
		a.chat.Clear()
	}
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"backend":          a.cfg.BackendURL,
		"requestTimeout":   a.cfg.RequestTimeout.String(),
		"audioContainer":   a.cfg.AudioContainer,
		"audioInput":       a.cfg.AudioInputDevice,
		"audioInputFormat": a.cfg.AudioInputFormat,
		"rewriteRulesFile": a.cfg.RewriteRulesFile,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.recorder == nil || a.images == nil || a.chat == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// blobHandler serves revocable handles through the asset server. Requests
// arriving before startup finishes get a 404.
func (a *App) blobHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.blobs == nil || !strings.HasPrefix(r.URL.Path, blobstore.PathPrefix) {
			http.NotFound(w, r)
			return
		}
		a.blobs.ServeHTTP(w, r)
	})
}

// RecordingStateChanged emits recording lifecycle updates to the frontend.
func (a *App) RecordingStateChanged(state domain.RecordingState, reason domain.RecordingReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecording, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": reasonMessage(reason),
	})
}

// TranscriptAppended emits the text appended to the prompt.
func (a *App) TranscriptAppended(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// ImageResultChanged emits the new content of the image slot.
func (a *App) ImageResultChanged(result domain.ImageResult) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventImage, result)
}

// MessageAppended emits a new conversation entry.
func (a *App) MessageAppended(message domain.Message) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventMessage, message)
}

// PromptChanged emits the prompt text after every mutation.
func (a *App) PromptChanged(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPrompt, map[string]string{"text": text})
}

// PipelineError emits backend errors to the UI.
func (a *App) PipelineError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func reasonMessage(reason domain.RecordingReason) string {
	switch reason {
	case domain.RecordingReasonMicCold:
		return "Mic cold"
	case domain.RecordingReasonStarted:
		return "Recording started"
	case domain.RecordingReasonDeviceUnavailable:
		return "Microphone unavailable"
	case domain.RecordingReasonTranscribing:
		return "Recording stopped. Transcribing..."
	case domain.RecordingReasonTranscriptAppended:
		return "Transcript added to prompt"
	case domain.RecordingReasonNoTranscript:
		return "No transcript captured"
	case domain.RecordingReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.RecordingReasonTranscriptionTimeout:
		return "Transcription timed out"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDevice:
		return "Microphone unavailable"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeRewrite:
		return "Rewrite rules failed"
	case domain.ErrorCodeImage:
		return "Image generation failed"
	case domain.ErrorCodeChat:
		return "Message failed"
	case domain.ErrorCodeDownload:
		return "Download failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func toAttachments(in []ChatAttachment) []domain.Attachment {
	out := make([]domain.Attachment, 0, len(in))
	for _, attachment := range in {
		name := strings.TrimSpace(attachment.Name)
		if name == "" {
			name = "attachment"
		}
		out = append(out, domain.Attachment{Name: name, MimeType: attachment.MimeType, Data: attachment.Data})
	}
	return out
}

func isRemoteURL(reference string) bool {
	lower := strings.ToLower(reference)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
