// Package device binds the audio pipeline to the host's sound hardware:
// malgo for capture and oto for playback. Both need cgo and the platform
// audio headers, so only the terminal client imports this package.
package device
