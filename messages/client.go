package messages

// Realtime client frame types
const (
	TypeSessionUpdate    = "session.update"
	TypeInputAudioAppend = "input_audio_buffer.append"
)

// SessionUpdate announces the session configuration; sent once per connection
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// SessionConfig is the operating configuration of a realtime voice session
type SessionConfig struct {
	Modalities              []string            `json:"modalities"`
	Instructions            string              `json:"instructions,omitempty"`
	Voice                   string              `json:"voice"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *TranscriptionModel `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection      `json:"turn_detection,omitempty"`
	Temperature             float64             `json:"temperature"`
	MaxResponseOutputTokens string              `json:"max_response_output_tokens"`
}

// TranscriptionModel selects the model used to transcribe user audio
type TranscriptionModel struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side voice activity detection
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// InputAudioAppend carries one base64 PCM16 frame of microphone audio
type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// DefaultSessionConfig returns the voice session settings used by the client
func DefaultSessionConfig(instructions, voice string) SessionConfig {
	if voice == "" {
		voice = "alloy"
	}
	return SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            instructions,
		Voice:                   voice,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &TranscriptionModel{Model: "whisper-1"},
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 1000,
		},
		Temperature:             0.8,
		MaxResponseOutputTokens: "inf",
	}
}

// NewSessionUpdate wraps cfg in a session.update frame
func NewSessionUpdate(cfg SessionConfig) *SessionUpdate {
	return &SessionUpdate{Type: TypeSessionUpdate, Session: cfg}
}

// NewInputAudioAppend creates an input_audio_buffer.append frame
func NewInputAudioAppend(audio string) *InputAudioAppend {
	return &InputAudioAppend{Type: TypeInputAudioAppend, Audio: audio}
}

// ChatMessage is one prior turn sent to the completion endpoint
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of the completion endpoint
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ImageRequest is the body of the image generation endpoint
type ImageRequest struct {
	Prompt        string `json:"prompt"`
	EnhancePrompt bool   `json:"enhancePrompt"`
}

// ImageResponse is the answer of the image generation endpoint
type ImageResponse struct {
	ImageURL string `json:"imageUrl"`
	Text     string `json:"text"`
}
