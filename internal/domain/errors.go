package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeviceUnavailable    = errors.New("microphone unavailable")
	ErrTranscriptionTimeout = errors.New("transcription timed out")
	ErrEmptyPrompt          = errors.New("prompt is empty")
	ErrGenerationTimeout    = errors.New("image generation timed out")
	ErrEmptyImagePayload    = errors.New("empty response from image generation API")
	ErrEmptyMessage         = errors.New("message has no text or attachments")
	ErrChatTimeout          = errors.New("chat request timed out")
)

// ErrorCode identifies errors emitted to the UI.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeDevice        ErrorCode = "device"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeRewrite       ErrorCode = "rewrite"
	ErrorCodeImage         ErrorCode = "image"
	ErrorCodeChat          ErrorCode = "chat"
	ErrorCodeDownload      ErrorCode = "download"
)

// TranscriptionFailedError is returned when the transcription endpoint answers
// with a non-success status.
type TranscriptionFailedError struct {
	Status int
	Body   string
}

func (e *TranscriptionFailedError) Error() string {
	return statusMessage("transcription failed", e.Status, "", e.Body)
}

// GenerationFailedError is returned when the image endpoint answers with a
// non-success status.
type GenerationFailedError struct {
	Status int
	Reason string
	Body   string
}

func (e *GenerationFailedError) Error() string {
	return statusMessage("server returned", e.Status, e.Reason, e.Body)
}

// ChatFailedError is returned when the chat endpoint answers with a
// non-success status.
type ChatFailedError struct {
	Status int
	Body   string
}

func (e *ChatFailedError) Error() string {
	return statusMessage("chat failed", e.Status, "", e.Body)
}

func statusMessage(prefix string, status int, reason string, body string) string {
	msg := fmt.Sprintf("%s: %d", prefix, status)
	if reason = strings.TrimSpace(reason); reason != "" {
		msg += " " + reason
	}
	if body = strings.TrimSpace(body); body != "" {
		msg += " - " + body
	}
	return msg
}
