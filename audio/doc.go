// Package audio converts between float32 capture frames, PCM16 bytes, base64
// payloads and WAV chunks, and plays received chunks in order through a
// per-session PlaybackQueue.
//
// All audio is mono, 24 kHz, 16-bit little-endian. Hardware bindings live in
// audio/device; everything here runs without a sound card.
package audio
