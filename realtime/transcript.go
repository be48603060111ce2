package realtime

import (
	"strings"
	"sync"

	"github.com/room4-2/chatai/messages"
)

// Speaker labels used in transcripts
const (
	SpeakerUser      = "You"
	SpeakerAssistant = "AI"
)

// Line is one utterance in a transcript
type Line struct {
	Speaker string
	Text    string
}

// Transcript assembles the running text of a voice session from
// transcription events
type Transcript struct {
	mu    sync.Mutex
	lines []Line
	open  bool // last line is an assistant line still receiving deltas
}

// Apply folds one event into the transcript and reports whether it changed
func (t *Transcript) Apply(ev *messages.ServerEvent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case messages.TypeInputTranscript:
		text := strings.TrimSpace(ev.Transcript)
		if text == "" {
			return false
		}
		t.lines = append(t.lines, Line{Speaker: SpeakerUser, Text: text})
		t.open = false
		return true

	case messages.TypeAudioTranscript:
		if ev.Delta == "" {
			return false
		}
		if t.open {
			t.lines[len(t.lines)-1].Text += ev.Delta
		} else {
			t.lines = append(t.lines, Line{Speaker: SpeakerAssistant, Text: ev.Delta})
			t.open = true
		}
		return true

	case messages.TypeAudioTranscriptDone, messages.TypeResponseDone:
		t.open = false
	}
	return false
}

// Lines returns a copy of the transcript
func (t *Transcript) Lines() []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Line(nil), t.lines...)
}

// String renders the transcript as "Speaker: text" lines
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	for i, l := range t.lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(l.Speaker)
		sb.WriteString(": ")
		sb.WriteString(l.Text)
	}
	return sb.String()
}
