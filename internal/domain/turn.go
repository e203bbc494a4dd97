package domain

import "net/url"

type TurnState string

const (
	StateIdle      TurnState = "idle"
	StateRecording TurnState = "recording"
	StateThinking  TurnState = "thinking"
	StateSpeaking  TurnState = "speaking"
)

// AgentReply is the agent's answer to one turn. It lives only while the
// reply is being spoken.
type AgentReply struct {
	AudioURL string `json:"audio_url"`
	Text     string `json:"text"`
}

// Valid reports whether the reply carries a usable audio locator.
func (r *AgentReply) Valid() bool {
	if r == nil || r.AudioURL == "" {
		return false
	}
	u, err := url.Parse(r.AudioURL)
	if err != nil {
		return false
	}
	return u.Scheme != "" && (u.Host != "" || u.Path != "")
}
