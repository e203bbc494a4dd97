package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"voice-agent/internal/domain"
)

const eventQueueSize = 256

// Controller drives one conversational turn at a time:
// idle -> recording -> thinking -> speaking -> idle.
//
// All state is owned by the goroutine executing Run. Public methods and
// device, network and playback callbacks only enqueue events, so transitions
// never run concurrently.
type Controller struct {
	capture   CaptureDevice
	agent     AgentEndpoint
	player    Player
	renderer  Renderer
	sessionID string
	logger    *slog.Logger

	events      chan event
	done        chan struct{}
	view        atomic.Pointer[View]
	transitions map[transition]func(ctx context.Context, ev event)

	state       domain.TurnState
	turn        uint64
	chunks      [][]byte
	handle      CaptureHandle
	format      domain.AudioFormat
	stopping    bool
	stopPending bool
	reply       *domain.AgentReply
	notice      string
	stopPlaying context.CancelFunc
}

func NewController(
	capture CaptureDevice,
	agent AgentEndpoint,
	player Player,
	renderer Renderer,
	sessionID string,
	logger *slog.Logger,
) *Controller {
	c := &Controller{
		capture:   capture,
		agent:     agent,
		player:    player,
		renderer:  renderer,
		sessionID: sessionID,
		logger:    logger,
		events:    make(chan event, eventQueueSize),
		done:      make(chan struct{}),
		state:     domain.StateIdle,
	}

	c.transitions = map[transition]func(context.Context, event){
		{domain.StateIdle, eventStart}:               c.startRecording,
		{domain.StateSpeaking, eventStart}:           c.startRecording,
		{domain.StateRecording, eventStop}:           c.stopRecording,
		{domain.StateRecording, eventCaptureGranted}: c.attachCapture,
		{domain.StateRecording, eventCaptureFailed}:  c.captureFailed,
		{domain.StateRecording, eventChunk}:          c.appendChunk,
		{domain.StateRecording, eventFinalized}:      c.finalizeCapture,
		{domain.StateThinking, eventUploadSettled}:   c.settleUpload,
		{domain.StateSpeaking, eventPlaybackEnded}:   c.finishPlayback,
	}

	v := Present(c.state, "", "", sessionID)
	c.view.Store(&v)

	return c
}

// Run processes events until ctx is cancelled. It must be called once.
func (c *Controller) Run(ctx context.Context) error {
	defer c.shutdown()
	defer close(c.done)

	c.logger.Info("turn controller ready",
		"session_id", c.sessionID,
		"capture", c.capture.Name(),
	)
	c.render()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.dispatch(ctx, ev)
		}
	}
}

func (c *Controller) RequestStart() { c.post(event{kind: eventStart}) }

func (c *Controller) RequestStop() { c.post(event{kind: eventStop}) }

// Press behaves like the single record button: it starts a turn from idle or
// speaking, stops an active recording and is ignored while thinking.
func (c *Controller) Press() { c.post(event{kind: eventPress}) }

// View returns the most recently rendered view. Safe for concurrent use.
func (c *Controller) View() View {
	return *c.view.Load()
}

func (c *Controller) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) dispatch(ctx context.Context, ev event) {
	if ev.turn != 0 && ev.turn != c.turn {
		c.logger.Debug("dropping stale event", "event", ev.kind, "turn", ev.turn, "current_turn", c.turn)
		c.discard(ev)
		return
	}

	if ev.kind == eventPress {
		switch c.state {
		case domain.StateIdle, domain.StateSpeaking:
			ev.kind = eventStart
		case domain.StateRecording:
			ev.kind = eventStop
		}
	}

	handle, ok := c.transitions[transition{from: c.state, event: ev.kind}]
	if !ok {
		c.logger.Debug("ignoring event", "event", ev.kind, "state", c.state)
		c.discard(ev)
		return
	}
	handle(ctx, ev)
}

// discard releases anything an ignored event carries.
func (c *Controller) discard(ev event) {
	if ev.kind == eventCaptureGranted && ev.handle != nil {
		if err := ev.handle.Release(); err != nil {
			c.logger.Warn("releasing stale capture", "error", err)
		}
	}
}

func (c *Controller) startRecording(ctx context.Context, _ event) {
	if !c.capture.Available() {
		c.logger.Warn("capture device unavailable", "device", c.capture.Name())
		c.notice = domain.UserMessage(domain.ErrDeviceUnavailable)
		c.render()
		return
	}

	if c.state == domain.StateSpeaking {
		c.interruptPlayback()
	}

	c.turn++
	c.chunks = nil
	c.handle = nil
	c.format = domain.DefaultAudioFormat()
	c.stopping = false
	c.stopPending = false
	c.notice = ""
	c.setState(domain.StateRecording)

	turn := c.turn
	go func() {
		handle, err := c.capture.Acquire(ctx, &turnSink{c: c, turn: turn})
		if err != nil {
			c.post(event{kind: eventCaptureFailed, turn: turn, err: err})
			return
		}
		if !c.post(event{kind: eventCaptureGranted, turn: turn, handle: handle}) {
			_ = handle.Release()
		}
	}()
}

func (c *Controller) attachCapture(ctx context.Context, ev event) {
	c.handle = ev.handle
	c.format = ev.handle.Format()
	c.logger.Info("capture started", "device", c.capture.Name(), "turn", c.turn)

	if c.stopPending {
		c.stopPending = false
		c.stopRecording(ctx, ev)
	}
}

func (c *Controller) captureFailed(_ context.Context, ev event) {
	err := ev.err
	if !errors.Is(err, domain.ErrPermissionDenied) && !errors.Is(err, domain.ErrDeviceUnavailable) {
		err = fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	c.logger.Warn("capture access failed", "error", err)
	c.chunks = nil
	c.fail(err)
}

func (c *Controller) appendChunk(_ context.Context, ev event) {
	if len(ev.data) > 0 {
		c.chunks = append(c.chunks, ev.data)
	}
}

func (c *Controller) stopRecording(_ context.Context, _ event) {
	if c.stopping {
		return
	}
	if c.handle == nil {
		c.stopPending = true
		return
	}

	c.stopping = true
	handle, turn := c.handle, c.turn
	go func() {
		if err := handle.Stop(); err != nil {
			c.logger.Warn("stopping capture", "error", err)
			c.post(event{kind: eventFinalized, turn: turn})
		}
	}()
}

func (c *Controller) finalizeCapture(ctx context.Context, _ event) {
	c.releaseCapture()

	chunks := c.chunks
	c.chunks = nil

	size := 0
	for _, chunk := range chunks {
		size += len(chunk)
	}
	if size == 0 {
		c.logger.Info("no audio captured", "turn", c.turn)
		c.fail(domain.ErrEmptyCapture)
		return
	}

	payload := PackagePayload(c.format, chunks)
	c.logger.Info("captured audio", "bytes", size, "chunks", len(chunks), "filename", payload.Filename)
	c.setState(domain.StateThinking)

	turn := c.turn
	go func() {
		reply, err := c.agent.Send(ctx, c.sessionID, payload)
		c.post(event{kind: eventUploadSettled, turn: turn, reply: reply, err: err})
	}()
}

func (c *Controller) settleUpload(ctx context.Context, ev event) {
	if ev.err != nil {
		c.logger.Error("agent chat failed", "error", ev.err)
		c.fail(ev.err)
		return
	}
	if !ev.reply.Valid() {
		c.logger.Warn("agent reply without audio locator")
		c.fail(domain.ErrMalformedReply)
		return
	}

	c.reply = ev.reply
	c.logger.Info("agent replied", "text", ev.reply.Text, "audio_url", ev.reply.AudioURL)
	c.setState(domain.StateSpeaking)

	playCtx, cancel := context.WithCancel(ctx)
	c.stopPlaying = cancel

	turn, locator := c.turn, ev.reply.AudioURL
	go func() {
		err := c.player.Play(playCtx, locator)
		if err != nil {
			err = fmt.Errorf("%w: %v", domain.ErrPlayback, err)
		}
		c.post(event{kind: eventPlaybackEnded, turn: turn, err: err})
	}()
}

func (c *Controller) finishPlayback(_ context.Context, ev event) {
	c.interruptPlayback()
	if ev.err != nil {
		c.logger.Error("playing reply", "error", ev.err)
		c.fail(ev.err)
		return
	}
	c.setState(domain.StateIdle)
}

func (c *Controller) interruptPlayback() {
	if c.stopPlaying != nil {
		c.stopPlaying()
		c.stopPlaying = nil
	}
	c.reply = nil
}

func (c *Controller) releaseCapture() {
	if c.handle != nil {
		if err := c.handle.Release(); err != nil {
			c.logger.Warn("releasing capture", "error", err)
		}
		c.handle = nil
	}
	c.stopping = false
	c.stopPending = false
}

func (c *Controller) fail(err error) {
	c.notice = domain.UserMessage(err)
	c.setState(domain.StateIdle)
}

func (c *Controller) setState(s domain.TurnState) {
	if c.state != s {
		c.logger.Debug("turn state changed", "from", c.state, "to", s, "turn", c.turn)
	}
	c.state = s
	c.render()
}

func (c *Controller) render() {
	transcript := ""
	if c.reply != nil {
		transcript = c.reply.Text
	}
	v := Present(c.state, transcript, c.notice, c.sessionID)
	c.view.Store(&v)
	c.renderer.Render(v)
}

func (c *Controller) shutdown() {
	c.releaseCapture()
	c.interruptPlayback()
}
