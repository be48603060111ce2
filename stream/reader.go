package stream

import (
	"context"
	"errors"
	"io"
)

// ErrDecoderClosed is returned when writing to a decoder after Close
var ErrDecoderClosed = errors.New("stream decoder closed")

// defaultReadSize matches the chunk size a browser fetch reader typically yields
const defaultReadSize = 16 * 1024

// ByteStreamReader yields the raw chunks of a response body in arrival order.
// Next returns io.EOF once the stream has ended normally.
type ByteStreamReader interface {
	Next(ctx context.Context) ([]byte, error)
}

type ioReader struct {
	r    io.Reader
	size int
}

// FromReader adapts an io.Reader (typically an HTTP response body) into a
// ByteStreamReader that returns at most size bytes per chunk
func FromReader(r io.Reader, size int) ByteStreamReader {
	if size <= 0 {
		size = defaultReadSize
	}
	return &ioReader{r: r, size: size}
}

func (s *ioReader) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.size)
	for {
		n, err := s.r.Read(buf)
		if n > 0 {
			// Hand out the data now; a pending error resurfaces on the next call.
			return buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Pump feeds every chunk from r into d until end-of-stream, then closes d so
// a trailing unterminated line is still processed. It returns the number of
// bytes consumed and the first transport error (never io.EOF). On error the
// decoder is left open: the caller decides whether partial output is kept.
func Pump(ctx context.Context, r ByteStreamReader, d *Decoder) (int64, error) {
	var total int64
	for {
		chunk, err := r.Next(ctx)
		if len(chunk) > 0 {
			total += int64(len(chunk))
			_, _ = d.Write(chunk)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, d.Close()
			}
			return total, err
		}
	}
}
