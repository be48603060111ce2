package realtime

// Status is the state of a voice session
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusListening    Status = "listening"
	StatusSpeaking     Status = "speaking"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Active reports whether the session holds an open transport
func (s Status) Active() bool {
	switch s {
	case StatusConnected, StatusListening, StatusSpeaking:
		return true
	}
	return false
}

// Terminal reports whether the session has ended
func (s Status) Terminal() bool {
	return s == StatusDisconnected || s == StatusError
}
