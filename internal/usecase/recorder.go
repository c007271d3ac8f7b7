package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voxcanvas/internal/deadline"
	"voxcanvas/internal/domain"
	"voxcanvas/internal/observability"
	"voxcanvas/internal/ports"
)

// RecorderConfig controls microphone capture and clip upload.
type RecorderConfig struct {
	Audio         ports.AudioConfig
	ChunkSize     int
	UploadTimeout time.Duration
}

// RecordingController owns the microphone capture lifecycle and feeds settled
// transcripts into the prompt.
//
// At most one session records at a time. A stopped session keeps uploading in
// the background while a new one may already be recording.
type RecordingController struct {
	capture     ports.AudioCapture
	assembler   ports.ClipAssembler
	transcriber ports.Transcriber
	events      ports.EventSink
	finalizer   transcriptFinalizer
	metrics     *observability.Metrics
	logger      zerolog.Logger
	cfg         RecorderConfig

	mu       sync.Mutex
	state    domain.RecordingState
	starting bool
	current  *recordingSession
	uploads  int

	sessions sync.WaitGroup
}

func NewRecordingController(
	capture ports.AudioCapture,
	assembler ports.ClipAssembler,
	transcriber ports.Transcriber,
	rewriter ports.TranscriptRewriter,
	prompt ports.PromptSink,
	events ports.EventSink,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg RecorderConfig,
) *RecordingController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = deadline.DefaultTimeout
	}
	return &RecordingController{
		capture:     capture,
		assembler:   assembler,
		transcriber: transcriber,
		events:      events,
		finalizer:   newTranscriptFinalizer(rewriter, prompt, events),
		metrics:     metrics,
		logger:      observability.WithComponent(logger, "recorder"),
		cfg:         cfg,
		state:       domain.RecordingStateIdle,
	}
}

// Start acquires the microphone and begins accumulating fragments. It is a
// no-op while already recording. Device failures are logged and reported as
// events; the controller stays in its previous state.
func (c *RecordingController) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state == domain.RecordingStateRecording || c.starting {
		c.mu.Unlock()
		return
	}
	c.starting = true
	c.mu.Unlock()

	audio, err := c.capture.Start(ctx, c.cfg.Audio)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		state := c.state
		c.mu.Unlock()

		c.metrics.RecordDeviceFailure()
		c.logger.Warn().Err(err).Msg("microphone unavailable, recording not started")
		c.events.PipelineError(domain.ErrorCodeDevice, err.Error())
		c.events.RecordingStateChanged(state, domain.RecordingReasonDeviceUnavailable)
		return
	}

	sessionID := observability.NewCorrelationID()
	session := newRecordingSession(ctx, audio, observability.WithCorrelationID(c.logger, sessionID))
	c.current = session
	c.state = domain.RecordingStateRecording
	c.sessions.Add(1)
	c.mu.Unlock()

	c.metrics.RecordRecordingStarted()
	session.logger.Info().Msg("recording started")
	c.events.RecordingStateChanged(domain.RecordingStateRecording, domain.RecordingReasonStarted)

	go pumpAudioFragments(session.audio, session.queue, c.cfg.ChunkSize)
	go c.runSession(session)
}

// Stop signals the current session to finalize and releases the device
// immediately. It is a no-op unless recording.
func (c *RecordingController) Stop() {
	c.mu.Lock()
	if c.state != domain.RecordingStateRecording || c.current == nil {
		c.mu.Unlock()
		return
	}
	session := c.current
	c.state = domain.RecordingStateStopping
	c.mu.Unlock()

	c.events.RecordingStateChanged(domain.RecordingStateStopping, domain.RecordingReasonTranscribing)

	if err := session.audio.Stop(); err != nil {
		session.logger.Warn().Err(err).Msg("failed to stop audio capture cleanly")
		c.events.PipelineError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
}

// Status returns the current recording status.
func (c *RecordingController) Status() domain.RecordingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.RecordingStatus{
		State:   c.state,
		Active:  c.state != domain.RecordingStateIdle,
		Uploads: c.uploads,
	}
}

// Close stops any active recording and waits for every session, including
// in-flight uploads, to settle.
func (c *RecordingController) Close() {
	c.Stop()
	c.sessions.Wait()
}

// Wait blocks until all sessions have settled.
func (c *RecordingController) Wait() {
	c.sessions.Wait()
}

// runSession is the session's single-threaded event loop.
func (c *RecordingController) runSession(session *recordingSession) {
	defer c.sessions.Done()
	defer func() { _ = session.audio.Close() }()

	for msg := range session.queue {
		switch msg.kind {
		case messageFragment:
			session.fragments.Add(msg.fragment)
		case messageFinalize:
			c.finalize(session, msg.err)
			return
		}
	}
}

func (c *RecordingController) finalize(session *recordingSession, readErr error) {
	if readErr != nil {
		session.logger.Warn().Err(readErr).Msg("audio capture ended with an error")
		c.events.PipelineError(domain.ErrorCodeAudioStream, "audio capture error: "+readErr.Error())
	}
	c.markStopping(session)

	c.metrics.RecordAudioBytes(session.fragments.Size())
	clip, err := c.assembler.Assemble(session.fragments.Fragments())
	if err != nil {
		session.logger.Error().Err(err).Msg("failed to assemble clip")
		c.events.PipelineError(domain.ErrorCodeAudioStream, err.Error())
		c.finish(session, domain.RecordingReasonTranscriptionFailed, false)
		return
	}
	if clip.Empty() {
		session.logger.Info().Msg("recording produced no audio, skipping upload")
		c.metrics.RecordTranscription(observability.StatusEmpty)
		c.finish(session, domain.RecordingReasonNoTranscript, false)
		return
	}

	c.mu.Lock()
	c.uploads++
	c.mu.Unlock()

	reason := c.upload(session, clip)
	c.finish(session, reason, true)
}

func (c *RecordingController) upload(session *recordingSession, clip domain.Clip) domain.RecordingReason {
	settle := c.metrics.RecordUploadStart()
	session.logger.Debug().Int("bytes", len(clip.Data)).Str("mime", clip.MimeType).Msg("uploading clip")

	text, err := deadline.Call(session.ctx, c.cfg.UploadTimeout, func(ctx context.Context) (string, error) {
		return c.transcriber.Transcribe(ctx, clip)
	})
	if err != nil {
		if errors.Is(err, deadline.ErrExpired) {
			settle(observability.StatusTimeout)
			session.logger.Warn().Dur("timeout", c.cfg.UploadTimeout).Msg("transcription timed out")
			c.events.PipelineError(domain.ErrorCodeTranscription, domain.ErrTranscriptionTimeout.Error())
			return domain.RecordingReasonTranscriptionTimeout
		}
		settle(observability.StatusError)
		session.logger.Error().Err(err).Msg("transcription failed")
		c.events.PipelineError(domain.ErrorCodeTranscription, err.Error())
		return domain.RecordingReasonTranscriptionFailed
	}

	if text == "" {
		settle(observability.StatusEmpty)
		return domain.RecordingReasonNoTranscript
	}
	settle(observability.StatusSuccess)

	_, reason := c.finalizer.Finalize(text)
	return reason
}

// markStopping covers sessions whose capture ended without a Stop call.
func (c *RecordingController) markStopping(session *recordingSession) {
	c.mu.Lock()
	if c.current != session || c.state != domain.RecordingStateRecording {
		c.mu.Unlock()
		return
	}
	c.state = domain.RecordingStateStopping
	c.mu.Unlock()

	c.events.RecordingStateChanged(domain.RecordingStateStopping, domain.RecordingReasonTranscribing)
}

func (c *RecordingController) finish(session *recordingSession, reason domain.RecordingReason, uploaded bool) {
	c.mu.Lock()
	if uploaded {
		c.uploads--
	}
	if c.current == session {
		c.current = nil
		c.state = domain.RecordingStateIdle
	}
	state := c.state
	c.mu.Unlock()

	session.logger.Info().Str("reason", string(reason)).Msg("recording settled")
	c.events.RecordingStateChanged(state, reason)
}
