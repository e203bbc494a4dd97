package application

import "voice-agent/internal/domain"

type eventKind string

const (
	eventStart          eventKind = "start_requested"
	eventStop           eventKind = "stop_requested"
	eventPress          eventKind = "pressed"
	eventCaptureGranted eventKind = "capture_granted"
	eventCaptureFailed  eventKind = "capture_failed"
	eventChunk          eventKind = "chunk_captured"
	eventFinalized      eventKind = "capture_finalized"
	eventUploadSettled  eventKind = "upload_settled"
	eventPlaybackEnded  eventKind = "playback_ended"
)

// event is the only way into the controller. turn is zero for user requests
// and carries the turn sequence number for device and network callbacks.
type event struct {
	kind   eventKind
	turn   uint64
	handle CaptureHandle
	data   []byte
	reply  *domain.AgentReply
	err    error
}

type transition struct {
	from  domain.TurnState
	event eventKind
}

// turnSink forwards device callbacks for one turn into the event loop.
type turnSink struct {
	c    *Controller
	turn uint64
}

func (s *turnSink) Chunk(data []byte) {
	s.c.post(event{kind: eventChunk, turn: s.turn, data: data})
}

func (s *turnSink) Finalized() {
	s.c.post(event{kind: eventFinalized, turn: s.turn})
}
