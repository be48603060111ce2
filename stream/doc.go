// Package stream decodes and encodes the server-sent-event framing used by
// streamed chat completions. The decoder tolerates frames split at any byte
// boundary and never aborts on a malformed event.
package stream
