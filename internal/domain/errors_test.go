package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestGenerationFailedErrorMessage(t *testing.T) {
	t.Parallel()

	err := &GenerationFailedError{Status: 500, Reason: "Internal Server Error", Body: "server overloaded\n"}
	if got := err.Error(); got != "server returned: 500 Internal Server Error - server overloaded" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestTranscriptionFailedErrorWithoutBody(t *testing.T) {
	t.Parallel()

	err := &TranscriptionFailedError{Status: 502}
	if got := err.Error(); got != "transcription failed: 502" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestFailedErrorsUnwrapWithAs(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("upload: %w", &TranscriptionFailedError{Status: 400, Body: "bad clip"})
	var failed *TranscriptionFailedError
	if !errors.As(wrapped, &failed) {
		t.Fatalf("expected TranscriptionFailedError")
	}
	if failed.Status != 400 || failed.Body != "bad clip" {
		t.Fatalf("unexpected error fields: %+v", failed)
	}
}

func TestImageResultRevocable(t *testing.T) {
	t.Parallel()

	if (ImageResult{Reference: "/blobs/x", Kind: ReferenceKindHandle}).Revocable() != true {
		t.Fatalf("expected handle result to be revocable")
	}
	if (ImageResult{Reference: "data:image/png;base64,AA", Kind: ReferenceKindEmbeddable}).Revocable() {
		t.Fatalf("embeddable reference must not be revocable")
	}
	if (ImageResult{Error: "boom"}).Revocable() {
		t.Fatalf("error result must not be revocable")
	}
}
