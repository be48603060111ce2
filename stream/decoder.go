package stream

import (
	"bytes"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// DeltaFunc receives every extracted text fragment together with the text
// accumulated so far (including that fragment)
type DeltaFunc func(delta, accumulated string)

// completionChunk mirrors the only part of a completion event we read:
// choices[0].delta.content
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder turns an arbitrarily chunked server-sent-event byte stream into
// ordered text deltas. It keeps the trailing partial line between writes so
// frames split across chunk boundaries are reassembled before parsing.
//
// A Decoder is single-producer: Write and Close must not be called
// concurrently.
type Decoder struct {
	buf     []byte
	content strings.Builder
	deltas  int
	onDelta DeltaFunc
	closed  bool
}

// NewDecoder creates a decoder that reports deltas to fn (fn may be nil)
func NewDecoder(fn DeltaFunc) *Decoder {
	return &Decoder{onDelta: fn}
}

// Write appends one raw chunk and processes every complete line it closes.
// It never fails; malformed lines are dropped.
func (d *Decoder) Write(p []byte) (int, error) {
	if d.closed {
		return 0, ErrDecoderClosed
	}
	d.buf = append(d.buf, p...)

	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		d.processLine(line)
	}

	// Reclaim the consumed prefix so a long stream does not pin old chunks.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 4*len(d.buf) && cap(d.buf) > 4096 {
		d.buf = append([]byte(nil), d.buf...)
	}
	return len(p), nil
}

// Close signals end-of-stream. A trailing line without a final newline is
// processed with the same rules as any other line.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if len(d.buf) > 0 {
		rest := string(d.buf)
		d.buf = nil
		for _, line := range strings.Split(rest, "\n") {
			d.processLine(line)
		}
	}
	return nil
}

// Content returns the text accumulated so far
func (d *Decoder) Content() string {
	return d.content.String()
}

// Deltas returns how many fragments have been extracted
func (d *Decoder) Deltas() int {
	return d.deltas
}

func (d *Decoder) processLine(line string) {
	delta, ok := ParseLine(line)
	if !ok {
		return
	}
	d.content.WriteString(delta)
	d.deltas++
	if d.onDelta != nil {
		d.onDelta(delta, d.content.String())
	}
}

// ParseLine extracts the delta text carried by one event-stream line.
// ok is false for blank lines, comments, non-data fields, the [DONE]
// sentinel, malformed JSON and events without text.
func ParseLine(line string) (delta string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneSentinel {
		return "", false
	}

	var chunk completionChunk
	if err := sonic.UnmarshalString(payload, &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}
