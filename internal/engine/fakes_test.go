package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/genricoloni/trackcap/internal/domain"
)

// fakeSource is a player whose state the test sets and publishes
type fakeSource struct {
	mu     sync.Mutex
	id     domain.TrackID
	meta   domain.TrackMetadata
	status domain.PlaybackStatus
	sub    func()

	// fireMu serializes deliveries like the D-Bus goroutine does
	fireMu sync.Mutex
}

func (s *fakeSource) CurrentTrack() (domain.TrackID, domain.TrackMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.meta
}

func (s *fakeSource) CurrentStatus() domain.PlaybackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSource) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sub = fn
}

// set changes the state without telling anyone
func (s *fakeSource) set(id domain.TrackID, meta domain.TrackMetadata, status domain.PlaybackStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.meta, s.status = id, meta, status
}

func (s *fakeSource) setStatus(status domain.PlaybackStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *fakeSource) fire() {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()
	s.mu.Lock()
	fn := s.sub
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *fakeSource) publish(id domain.TrackID, meta domain.TrackMetadata, status domain.PlaybackStatus) {
	s.set(id, meta, status)
	s.fire()
}

// fakeTransport records commands. onSend lets a test play the player's echo.
type fakeTransport struct {
	mu     sync.Mutex
	cmds   []domain.TransportCommand
	onSend func(domain.TransportCommand)
}

func (t *fakeTransport) Send(_ context.Context, cmd domain.TransportCommand) error {
	t.mu.Lock()
	t.cmds = append(t.cmds, cmd)
	hook := t.onSend
	t.mu.Unlock()
	if hook != nil {
		hook(cmd)
	}
	return nil
}

func (t *fakeTransport) sent() []domain.TransportCommand {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.TransportCommand(nil), t.cmds...)
}

type fakeRouter struct {
	mu        sync.Mutex
	createErr error
	created   int
	destroyed int
	moved     int
	volumes   int
	muted     bool
	events    *eventLog
}

func (r *fakeRouter) CreateSink(_ context.Context, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	r.muted = muted
	return r.createErr
}

func (r *fakeRouter) DestroySink(context.Context) error {
	r.mu.Lock()
	r.destroyed++
	r.mu.Unlock()
	r.events.add("destroy sink")
	return nil
}

func (r *fakeRouter) MoveStreamToSink(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moved++
	return nil
}

func (r *fakeRouter) SetVolumes(context.Context, string, int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumes++
	return nil
}

func (r *fakeRouter) counts() (created, destroyed, moved, volumes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created, r.destroyed, r.moved, r.volumes
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeEncoder keeps a live set like the real registry
type fakeEncoder struct {
	mu         sync.Mutex
	live       []*fakeRecording
	requests   []domain.RecordingRequest
	results    []domain.RecordingResult
	maxLive    int
	noRename   bool
	closed     bool
	stopAlls   int
	startErr   error
	startPanic bool
	nextID     int
	events     *eventLog
}

func (e *fakeEncoder) Start(_ context.Context, req domain.RecordingRequest) (domain.Recording, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.startPanic {
		panic("encoder exploded")
	}
	if e.closed {
		return nil, fmt.Errorf("closed")
	}
	if e.startErr != nil {
		return nil, e.startErr
	}

	e.nextID++
	rec := &fakeRecording{enc: e, id: fmt.Sprint(e.nextID), req: req, state: domain.SessionRecording}
	e.live = append(e.live, rec)
	e.requests = append(e.requests, req)
	if len(e.live) > e.maxLive {
		e.maxLive = len(e.live)
	}
	return rec, nil
}

func (e *fakeEncoder) Live() []domain.Recording {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Recording, len(e.live))
	for i, r := range e.live {
		out[i] = r
	}
	return out
}

func (e *fakeEncoder) DisableRename() {
	e.mu.Lock()
	e.noRename = true
	e.mu.Unlock()
	e.events.add("disable rename")
}

func (e *fakeEncoder) StopAll() {
	e.mu.Lock()
	e.closed = true
	e.stopAlls++
	e.mu.Unlock()
	e.events.add("stop all")

	for {
		e.mu.Lock()
		if len(e.live) == 0 {
			e.mu.Unlock()
			return
		}
		r := e.live[0]
		e.mu.Unlock()
		r.StopBlocking()
	}
}

func (e *fakeEncoder) snapshot() (requests []domain.RecordingRequest, results []domain.RecordingResult, live int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.RecordingRequest(nil), e.requests...),
		append([]domain.RecordingResult(nil), e.results...),
		len(e.live)
}

type fakeRecording struct {
	enc   *fakeEncoder
	id    string
	req   domain.RecordingRequest
	state domain.SessionState
}

func (r *fakeRecording) ID() string { return r.id }

func (r *fakeRecording) State() domain.SessionState {
	r.enc.mu.Lock()
	defer r.enc.mu.Unlock()
	return r.state
}

func (r *fakeRecording) StopBlocking() {
	e := r.enc
	e.mu.Lock()
	idx := -1
	for i, member := range e.live {
		if member == r {
			idx = i
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return
	}
	e.live = append(e.live[:idx], e.live[idx+1:]...)
	r.state = domain.SessionStopped
	res := domain.RecordingResult{ID: r.id, Path: r.req.RelPath, Clean: true, Promoted: !e.noRename}
	e.results = append(e.results, res)
	e.mu.Unlock()

	if r.req.OnStopped != nil {
		r.req.OnStopped(res)
	}
}

func (r *fakeRecording) StopAsync() {
	go r.StopBlocking()
}

type fakeCovers struct {
	mu    sync.Mutex
	saved []string
}

func (c *fakeCovers) Save(_ context.Context, artURL, dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, artURL+" -> "+dir)
	return nil
}

func (c *fakeCovers) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.saved...)
}
