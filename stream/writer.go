package stream

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
)

// Writer encodes server-sent events. When the destination is an
// http.Flusher every frame is flushed immediately.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
	frames  int
	bytes   int64
}

// NewWriter wraps w
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// WriteData writes one `data: <payload>` frame
func (w *Writer) WriteData(payload []byte) error {
	return w.write("data: " + string(payload) + "\n\n")
}

// WriteJSON marshals v and writes it as a data frame
func (w *Writer) WriteJSON(v any) error {
	b, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return w.WriteData(b)
}

// WriteDone writes the terminating [DONE] sentinel
func (w *Writer) WriteDone() error {
	return w.write("data: " + doneSentinel + "\n\n")
}

// WriteComment writes a comment line, used as a keep-alive
func (w *Writer) WriteComment(text string) error {
	return w.write(": " + text + "\n\n")
}

// Frames returns the number of frames written
func (w *Writer) Frames() int {
	return w.frames
}

// Bytes returns the number of bytes written
func (w *Writer) Bytes() int64 {
	return w.bytes
}

func (w *Writer) write(frame string) error {
	n, err := io.WriteString(w.w, frame)
	w.bytes += int64(n)
	if err != nil {
		return err
	}
	w.frames++
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
