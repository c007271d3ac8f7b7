package usecase

import (
	"voxcanvas/internal/domain"
	"voxcanvas/internal/ports"
)

type transcriptFinalizer struct {
	rewriter ports.TranscriptRewriter
	prompt   ports.PromptSink
	events   ports.EventSink
}

func newTranscriptFinalizer(rewriter ports.TranscriptRewriter, prompt ports.PromptSink, events ports.EventSink) transcriptFinalizer {
	return transcriptFinalizer{rewriter: rewriter, prompt: prompt, events: events}
}

// Finalize appends a settled transcript to the prompt. An empty transcript is
// a no-op; whitespace is appended as transcribed. When rewriting fails the unmodified transcript is appended so the
// dictation is not lost.
func (f transcriptFinalizer) Finalize(raw string) (string, domain.RecordingReason) {
	if raw == "" {
		return "", domain.RecordingReasonNoTranscript
	}

	text := raw
	if f.rewriter != nil {
		rewritten, err := f.rewriter.Apply(raw)
		if err != nil {
			f.events.PipelineError(domain.ErrorCodeRewrite, err.Error())
		} else {
			text = rewritten
		}
	}
	if text == "" {
		return "", domain.RecordingReasonNoTranscript
	}

	f.prompt.Append(text)
	f.events.TranscriptAppended(text)
	return text, domain.RecordingReasonTranscriptAppended
}
