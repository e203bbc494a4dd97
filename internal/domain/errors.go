package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrPermissionDenied  = errors.New("capture permission denied")
	ErrEmptyCapture      = errors.New("no audio captured")
	ErrTransport         = errors.New("agent unreachable")
	ErrMalformedReply    = errors.New("malformed agent reply")
	ErrPlayback          = errors.New("playback failed")
)

// ServerError is returned when the agent answers with a non-success status
// and no out-of-band error flag.
type ServerError struct {
	StatusCode int
	Status     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("agent returned status %d: %s", e.StatusCode, e.Status)
}

// UserMessage maps a turn failure to the text shown to the user.
func UserMessage(err error) string {
	var serverErr *ServerError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceUnavailable):
		return "Audio recording is not supported on this system."
	case errors.Is(err, ErrPermissionDenied):
		return "Please grant microphone access."
	case errors.Is(err, ErrEmptyCapture):
		return "No audio detected. Please try speaking again."
	case errors.As(err, &serverErr):
		return fmt.Sprintf("Server returned an error: %s", serverErr.Status)
	case errors.Is(err, ErrMalformedReply):
		return "Received an invalid response from the server."
	case errors.Is(err, ErrPlayback):
		return "Could not play the agent's reply."
	default:
		return "Sorry, I'm having trouble connecting right now. Please try again later."
	}
}
