package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"voxcanvas/internal/ports"
)

type sessionMessageKind int

const (
	messageFragment sessionMessageKind = iota
	messageFinalize
)

// sessionMessage is delivered to a session's event loop by its capture pump.
type sessionMessage struct {
	kind     sessionMessageKind
	fragment []byte
	err      error
}

// recordingSession owns one open capture device and the fragments it produced.
// Only the session's event loop touches fragments.
type recordingSession struct {
	ctx    context.Context
	audio  ports.AudioSession
	logger zerolog.Logger

	queue     chan sessionMessage
	fragments *fragmentBuffer
}

func newRecordingSession(ctx context.Context, audio ports.AudioSession, logger zerolog.Logger) *recordingSession {
	return &recordingSession{
		ctx:       ctx,
		audio:     audio,
		logger:    logger,
		queue:     make(chan sessionMessage, 16),
		fragments: newFragmentBuffer(),
	}
}
