package messages

// Error codes
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeUpstreamError    = "UPSTREAM_ERROR"
	ErrCodeSessionFailed    = "SESSION_FAILED"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeCreditsExhausted = "CREDITS_EXHAUSTED"
)

// Realtime server event types
const (
	TypeSessionCreated      = "session.created"
	TypeSessionUpdated      = "session.updated"
	TypeSpeechStarted       = "input_audio_buffer.speech_started"
	TypeSpeechStopped       = "input_audio_buffer.speech_stopped"
	TypeAudioDelta          = "response.audio.delta"
	TypeAudioDone           = "response.audio.done"
	TypeAudioTranscript     = "response.audio_transcript.delta"
	TypeAudioTranscriptDone = "response.audio_transcript.done"
	TypeInputTranscript     = "conversation.item.input_audio_transcription.completed"
	TypeResponseDone        = "response.done"
	TypeError               = "error"

	// TypeRelayStatus is emitted by the relay itself, never by the upstream
	TypeRelayStatus = "relay.status"
)

// ServerEvent is an inbound realtime event. Only the fields the client acts
// on are decoded.
type ServerEvent struct {
	Type       string      `json:"type"`
	EventID    string      `json:"event_id,omitempty"`
	Delta      string      `json:"delta,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	Error      *EventError `json:"error,omitempty"`

	// relay.status only
	Status    string `json:"status,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// EventError contains error information
type EventError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewErrorEvent creates an error event
func NewErrorEvent(code, message string) *ServerEvent {
	return &ServerEvent{
		Type:  TypeError,
		Error: &EventError{Type: "relay_error", Code: code, Message: message},
	}
}

// NewStatusEvent creates a relay status event
func NewStatusEvent(sessionID, status string) *ServerEvent {
	return &ServerEvent{
		Type:      TypeRelayStatus,
		Status:    status,
		SessionID: sessionID,
	}
}

// CompletionChunk is one streamed completion event payload
type CompletionChunk struct {
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice holds the incremental delta of one choice
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental part of an assistant message
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// NewDeltaChunk creates a completion chunk carrying text
func NewDeltaChunk(text string) *CompletionChunk {
	return &CompletionChunk{Choices: []ChunkChoice{{Delta: Delta{Content: text}}}}
}

// NewFinishChunk creates the final completion chunk with a finish reason
func NewFinishChunk(reason string) *CompletionChunk {
	return &CompletionChunk{Choices: []ChunkChoice{{FinishReason: &reason}}}
}

// ErrorBody is the JSON error envelope of the HTTP endpoints
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewErrorBody creates an HTTP error envelope
func NewErrorBody(code, message string) *ErrorBody {
	return &ErrorBody{Error: message, Code: code}
}
