package ports

import (
	"context"
	"io"

	"voxcanvas/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	Container   string
}

// AudioSession is a live capture handle. Read yields encoded fragments until
// Stop releases the device and the stream drains to io.EOF.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture acquires the microphone.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// ClipAssembler joins captured fragments into one clip.
type ClipAssembler interface {
	Assemble(fragments [][]byte) (domain.Clip, error)
}

// Transcriber uploads a clip and returns the transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip domain.Clip) (string, error)
}

// ImageGenerator issues one image generation request and returns the raw
// response for classification.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (domain.ImagePayload, error)
}

// ChatSender sends a chat message with optional attachments.
type ChatSender interface {
	SendMessage(ctx context.Context, query string, attachments []domain.Attachment) (string, error)
}

// RemoteFetcher downloads the bytes behind a remote image URL.
type RemoteFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// HandleStore mints and revokes revocable local handles.
type HandleStore interface {
	Mint(data []byte, mimeType string) (string, error)
	Revoke(handle string) bool
	Bytes(handle string) ([]byte, string, error)
}

// TranscriptRewriter transforms transcripts using deterministic rules.
type TranscriptRewriter interface {
	Apply(text string) (string, error)
}

// PromptSink receives transcript text.
type PromptSink interface {
	Append(text string)
}

// PromptBuffer is the shared prompt text the chat consumes.
type PromptBuffer interface {
	PromptSink
	Text() string
	Take() string
}

// ConversationLog is the append-only chat history.
type ConversationLog interface {
	Append(message domain.Message)
	Messages() []domain.Message
	Clear()
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	RecordingStateChanged(state domain.RecordingState, reason domain.RecordingReason)
	TranscriptAppended(text string)
	ImageResultChanged(result domain.ImageResult)
	MessageAppended(message domain.Message)
	PipelineError(code domain.ErrorCode, detail string)
}
