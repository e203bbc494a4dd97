package application

import "voice-agent/internal/domain"

type Icon string

const (
	IconMic     Icon = "mic"
	IconStop    Icon = "stop"
	IconSpinner Icon = "spinner"
)

// View is everything a renderer may show. It is always built by Present.
type View struct {
	State      domain.TurnState
	Icon       Icon
	Enabled    bool
	Recording  bool
	Status     string
	Transcript string
	Notice     string
	SessionID  string
}

type Renderer interface {
	Render(view View)
}

// Present projects the controller state onto a View. The transcript is only
// shown while speaking.
func Present(state domain.TurnState, transcript, notice, sessionID string) View {
	v := View{
		State:     state,
		Notice:    notice,
		SessionID: sessionID,
	}

	switch state {
	case domain.StateRecording:
		v.Icon = IconStop
		v.Enabled = true
		v.Recording = true
		v.Status = "Listening..."
	case domain.StateThinking:
		v.Icon = IconSpinner
		v.Status = "Thinking..."
	case domain.StateSpeaking:
		v.Icon = IconMic
		v.Enabled = true
		v.Status = "Speaking..."
		v.Transcript = transcript
	default:
		v.State = domain.StateIdle
		v.Icon = IconMic
		v.Enabled = true
		v.Status = "Press space to speak"
	}

	return v
}

type NoopRenderer struct{}

func (n *NoopRenderer) Render(_ View) {}
