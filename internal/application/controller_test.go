package application_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"voice-agent/internal/application"
	"voice-agent/internal/domain"
)

type fakeHandle struct {
	sink     application.CaptureSink
	mu       sync.Mutex
	stopped  int
	released int
}

func (h *fakeHandle) Format() domain.AudioFormat { return domain.DefaultAudioFormat() }

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	h.stopped++
	h.mu.Unlock()
	h.sink.Finalized()
	return nil
}

func (h *fakeHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released++
	return nil
}

func (h *fakeHandle) counts() (stopped, released int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped, h.released
}

type fakeCapture struct {
	unavailable bool
	acquireErr  error
	chunks      [][]byte
	grant       chan struct{}

	mu      sync.Mutex
	handles []*fakeHandle
}

func (f *fakeCapture) Name() string    { return "fake" }
func (f *fakeCapture) Available() bool { return !f.unavailable }

func (f *fakeCapture) Acquire(ctx context.Context, sink application.CaptureSink) (application.CaptureHandle, error) {
	if f.grant != nil {
		select {
		case <-f.grant:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	for _, chunk := range f.chunks {
		sink.Chunk(chunk)
	}
	h := &fakeHandle{sink: sink}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

func (f *fakeCapture) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.handles) {
		return nil
	}
	return f.handles[i]
}

func (f *fakeCapture) acquired() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

type fakeAgent struct {
	reply *domain.AgentReply
	err   error

	mu         sync.Mutex
	payloads   []domain.Payload
	sessionIDs []string
}

func (f *fakeAgent) Send(_ context.Context, sessionID string, payload domain.Payload) (*domain.AgentReply, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.sessionIDs = append(f.sessionIDs, sessionID)
	f.mu.Unlock()
	return f.reply, f.err
}

func (f *fakeAgent) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fakePlayer struct {
	finish chan error

	mu          sync.Mutex
	locators    []string
	interrupted int
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{finish: make(chan error, 1)}
}

func (p *fakePlayer) Play(ctx context.Context, locator string) error {
	p.mu.Lock()
	p.locators = append(p.locators, locator)
	p.mu.Unlock()

	select {
	case err := <-p.finish:
		return err
	case <-ctx.Done():
		p.mu.Lock()
		p.interrupted++
		p.mu.Unlock()
		return ctx.Err()
	}
}

func (p *fakePlayer) played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.locators...)
}

type recordingRenderer struct {
	views chan application.View
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{views: make(chan application.View, 256)}
}

func (r *recordingRenderer) Render(v application.View) {
	r.views <- v
}

func waitForView(t *testing.T, r *recordingRenderer, match func(application.View) bool) application.View {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v := <-r.views:
			if match(v) {
				return v
			}
		case <-timeout:
			t.Fatal("timeout waiting for view")
			return application.View{}
		}
	}
}

func inState(s domain.TurnState) func(application.View) bool {
	return func(v application.View) bool { return v.State == s }
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type harness struct {
	capture  *fakeCapture
	agent    *fakeAgent
	player   *fakePlayer
	renderer *recordingRenderer
	ctrl     *application.Controller
	cancel   context.CancelFunc
	done     chan error
}

func startController(t *testing.T, capture *fakeCapture, agent *fakeAgent) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		capture:  capture,
		agent:    agent,
		player:   newFakePlayer(),
		renderer: newRecordingRenderer(),
		done:     make(chan error, 1),
	}
	h.ctrl = application.NewController(h.capture, h.agent, h.player, h.renderer, "session-123", logger)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- h.ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})

	waitForView(t, h.renderer, inState(domain.StateIdle))
	return h
}

func TestController_SuccessfulTurn(t *testing.T) {
	capture := &fakeCapture{chunks: [][]byte{[]byte("hello "), []byte("agent")}}
	agent := &fakeAgent{reply: &domain.AgentReply{AudioURL: "https://x/a.mp3", Text: "hello"}}
	h := startController(t, capture, agent)

	h.ctrl.Press()
	v := waitForView(t, h.renderer, inState(domain.StateRecording))
	if v.Icon != application.IconStop || !v.Recording {
		t.Errorf("recording view: got %+v", v)
	}

	waitFor(t, func() bool { return capture.acquired() == 1 })
	h.ctrl.Press()

	waitForView(t, h.renderer, inState(domain.StateThinking))
	v = waitForView(t, h.renderer, inState(domain.StateSpeaking))
	if v.Transcript != "hello" {
		t.Errorf("transcript: got %q, want %q", v.Transcript, "hello")
	}

	waitFor(t, func() bool { return len(h.player.played()) == 1 })
	if got := h.player.played()[0]; got != "https://x/a.mp3" {
		t.Errorf("played locator: got %q", got)
	}

	if agent.calls() != 1 {
		t.Fatalf("agent calls: got %d, want 1", agent.calls())
	}
	payload := agent.payloads[0]
	if agent.sessionIDs[0] != "session-123" {
		t.Errorf("session id: got %q", agent.sessionIDs[0])
	}
	if payload.Filename != "user_audio.wav" {
		t.Errorf("filename: got %q", payload.Filename)
	}
	if !bytes.HasSuffix(payload.Data, []byte("hello agent")) {
		t.Errorf("payload does not end with captured audio")
	}

	stopped, released := capture.handle(0).counts()
	if stopped != 1 || released != 1 {
		t.Errorf("handle: stopped=%d released=%d, want 1 and 1", stopped, released)
	}

	h.player.finish <- nil
	v = waitForView(t, h.renderer, inState(domain.StateIdle))
	if v.Transcript != "" || v.Notice != "" {
		t.Errorf("idle after playback should be clean: %+v", v)
	}
}

func TestController_EmptyCaptureSkipsUpload(t *testing.T) {
	capture := &fakeCapture{}
	agent := &fakeAgent{reply: &domain.AgentReply{AudioURL: "https://x/a.mp3"}}
	h := startController(t, capture, agent)

	h.ctrl.RequestStart()
	waitForView(t, h.renderer, inState(domain.StateRecording))
	waitFor(t, func() bool { return capture.acquired() == 1 })
	h.ctrl.RequestStop()

	v := waitForView(t, h.renderer, inState(domain.StateIdle))
	if v.Notice != domain.UserMessage(domain.ErrEmptyCapture) {
		t.Errorf("notice: got %q", v.Notice)
	}
	if agent.calls() != 0 {
		t.Errorf("empty capture must not be uploaded, got %d calls", agent.calls())
	}
	if _, released := capture.handle(0).counts(); released != 1 {
		t.Errorf("handle released %d times, want 1", released)
	}
}

func TestController_DeviceUnavailable(t *testing.T) {
	capture := &fakeCapture{unavailable: true}
	h := startController(t, capture, &fakeAgent{})

	h.ctrl.RequestStart()

	v := waitForView(t, h.renderer, func(v application.View) bool { return v.Notice != "" })
	if v.State != domain.StateIdle {
		t.Errorf("state: got %s, want idle", v.State)
	}
	if v.Notice != domain.UserMessage(domain.ErrDeviceUnavailable) {
		t.Errorf("notice: got %q", v.Notice)
	}
	if capture.acquired() != 0 {
		t.Error("device should not be acquired")
	}
}

func TestController_PermissionDenied(t *testing.T) {
	capture := &fakeCapture{acquireErr: errors.New("NotAllowedError")}
	h := startController(t, capture, &fakeAgent{})

	h.ctrl.RequestStart()
	waitForView(t, h.renderer, inState(domain.StateRecording))

	v := waitForView(t, h.renderer, inState(domain.StateIdle))
	if v.Notice != domain.UserMessage(domain.ErrPermissionDenied) {
		t.Errorf("notice: got %q", v.Notice)
	}
}

func TestController_UploadFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply *domain.AgentReply
		err   error
		want  string
	}{
		{
			name: "transport error",
			err:  domain.ErrTransport,
			want: domain.UserMessage(domain.ErrTransport),
		},
		{
			name: "server error",
			err:  &domain.ServerError{StatusCode: 500, Status: "Internal Server Error"},
			want: "Server returned an error: Internal Server Error",
		},
		{
			name:  "reply without audio url",
			reply: &domain.AgentReply{Text: "hello"},
			want:  domain.UserMessage(domain.ErrMalformedReply),
		},
		{
			name: "malformed reply error",
			err:  domain.ErrMalformedReply,
			want: domain.UserMessage(domain.ErrMalformedReply),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := &fakeCapture{chunks: [][]byte{[]byte("audio")}}
			h := startController(t, capture, &fakeAgent{reply: tt.reply, err: tt.err})

			h.ctrl.Press()
			waitFor(t, func() bool { return capture.acquired() == 1 })
			h.ctrl.Press()
			waitForView(t, h.renderer, inState(domain.StateThinking))

			v := waitForView(t, h.renderer, inState(domain.StateIdle))
			if v.Notice != tt.want {
				t.Errorf("notice: got %q, want %q", v.Notice, tt.want)
			}
			if len(h.player.played()) != 0 {
				t.Error("nothing should be played")
			}
		})
	}
}

func TestController_StopBeforeGrant(t *testing.T) {
	capture := &fakeCapture{chunks: [][]byte{[]byte("audio")}, grant: make(chan struct{})}
	agent := &fakeAgent{reply: &domain.AgentReply{AudioURL: "https://x/a.mp3", Text: "ok"}}
	h := startController(t, capture, agent)

	h.ctrl.Press()
	waitForView(t, h.renderer, inState(domain.StateRecording))
	h.ctrl.Press()
	close(capture.grant)

	waitForView(t, h.renderer, inState(domain.StateThinking))
	waitForView(t, h.renderer, inState(domain.StateSpeaking))
	if agent.calls() != 1 {
		t.Errorf("agent calls: got %d, want 1", agent.calls())
	}
}

func TestController_StartWhileSpeakingInterruptsPlayback(t *testing.T) {
	capture := &fakeCapture{chunks: [][]byte{[]byte("audio")}}
	agent := &fakeAgent{reply: &domain.AgentReply{AudioURL: "https://x/a.mp3", Text: "hello"}}
	h := startController(t, capture, agent)

	h.ctrl.Press()
	waitFor(t, func() bool { return capture.acquired() == 1 })
	h.ctrl.Press()
	waitForView(t, h.renderer, inState(domain.StateSpeaking))

	h.ctrl.Press()
	v := waitForView(t, h.renderer, inState(domain.StateRecording))
	if v.Transcript != "" {
		t.Errorf("transcript should be discarded, got %q", v.Transcript)
	}

	waitFor(t, func() bool {
		h.player.mu.Lock()
		defer h.player.mu.Unlock()
		return h.player.interrupted == 1
	})

	// The interrupted playback reports back late; the new turn must not notice.
	waitFor(t, func() bool { return capture.acquired() == 2 })
	if got := h.ctrl.View().State; got != domain.StateRecording {
		t.Errorf("state after stale playback end: got %s, want recording", got)
	}
}

func TestController_PlaybackFailure(t *testing.T) {
	capture := &fakeCapture{chunks: [][]byte{[]byte("audio")}}
	agent := &fakeAgent{reply: &domain.AgentReply{AudioURL: "https://x/a.mp3", Text: "hello"}}
	h := startController(t, capture, agent)

	h.ctrl.Press()
	waitFor(t, func() bool { return capture.acquired() == 1 })
	h.ctrl.Press()
	waitForView(t, h.renderer, inState(domain.StateSpeaking))

	h.player.finish <- errors.New("unsupported codec")

	v := waitForView(t, h.renderer, inState(domain.StateIdle))
	if v.Notice != domain.UserMessage(domain.ErrPlayback) {
		t.Errorf("notice: got %q", v.Notice)
	}
}

func TestController_ShutdownReleasesCapture(t *testing.T) {
	capture := &fakeCapture{chunks: [][]byte{[]byte("audio")}}
	h := startController(t, capture, &fakeAgent{})

	h.ctrl.Press()
	waitFor(t, func() bool { return capture.acquired() == 1 })
	// Give the loop a moment to attach the handle.
	waitFor(t, func() bool { return h.ctrl.View().State == domain.StateRecording })
	time.Sleep(20 * time.Millisecond)

	h.cancel()
	if err := <-h.done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run error: got %v, want context.Canceled", err)
	}
	h.done <- nil

	if _, released := capture.handle(0).counts(); released != 1 {
		t.Errorf("handle released %d times, want 1", released)
	}
}
