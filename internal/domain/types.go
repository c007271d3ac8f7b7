package domain

// RecordingState models the microphone capture lifecycle.
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateRecording RecordingState = "recording"
	RecordingStateStopping  RecordingState = "stopping"
)

// RecordingReason provides a structured reason for state transitions.
type RecordingReason string

const (
	RecordingReasonMicCold              RecordingReason = "mic_cold"
	RecordingReasonStarted              RecordingReason = "recording_started"
	RecordingReasonDeviceUnavailable    RecordingReason = "device_unavailable"
	RecordingReasonTranscribing         RecordingReason = "transcribing"
	RecordingReasonTranscriptAppended   RecordingReason = "transcript_appended"
	RecordingReasonNoTranscript         RecordingReason = "no_transcript"
	RecordingReasonTranscriptionFailed  RecordingReason = "transcription_failed"
	RecordingReasonTranscriptionTimeout RecordingReason = "transcription_timeout"
)

// RecordingStatus summarizes the current recording status.
type RecordingStatus struct {
	State   RecordingState `json:"state"`
	Active  bool           `json:"active"`
	Uploads int            `json:"uploads"`
}

// Clip is a finalized audio payload assembled from captured fragments.
type Clip struct {
	Data     []byte
	MimeType string
	Filename string
}

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is a user-selected file sent alongside a chat message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"-"`
}

// Message is an immutable conversation entry.
type Message struct {
	Role        Role     `json:"role"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// ReferenceKind distinguishes revocable local handles from embeddable URIs.
type ReferenceKind string

const (
	ReferenceKindNone       ReferenceKind = ""
	ReferenceKindHandle     ReferenceKind = "handle"
	ReferenceKindEmbeddable ReferenceKind = "embeddable"
)

// ImageResult is the single-slot outcome of an image generation request.
// Exactly one of Reference and Error is set once a request completes.
type ImageResult struct {
	Reference string        `json:"reference,omitempty"`
	Kind      ReferenceKind `json:"kind,omitempty"`
	MimeType  string        `json:"mimeType,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Failed reports whether the result carries an error message.
func (r ImageResult) Failed() bool {
	return r.Error != ""
}

// Revocable reports whether the reference must be invalidated when replaced.
func (r ImageResult) Revocable() bool {
	return r.Kind == ReferenceKindHandle && r.Reference != ""
}

// ImagePayload is an undecoded image generation response.
type ImagePayload struct {
	ContentType string
	Body        []byte
}
