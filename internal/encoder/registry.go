// Package encoder runs one capture subprocess per recording and keeps the
// set of live sessions.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/trackcap/internal/domain"
	"github.com/genricoloni/trackcap/internal/metrics"
	"github.com/genricoloni/trackcap/internal/procgroup"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
)

const (
	// Extension of every recording
	Extension = ".flac"
	// TmpPrefix hides a recording in progress
	TmpPrefix = "."
)

// ErrRegistryClosed is returned by Start once StopAll has been called
var ErrRegistryClosed = errors.New("encoder registry closed")

// Options configures a Registry
type Options struct {
	OutputDir  string
	UseTmpFile bool
	// StopGrace is how long a session may take to exit after SIGTERM
	StopGrace time.Duration
	Command   CommandFunc
	// Debug forwards encoder output to the logger
	Debug bool
}

// Registry starts encoder sessions and owns the live set
type Registry struct {
	logger  *zap.Logger
	opts    Options
	metrics *metrics.Metrics

	mu     sync.Mutex
	live   []*Session
	closed bool

	// stops tracks detached sessions that have not finished stopping
	stops  sync.WaitGroup
	rename atomic.Bool
}

var _ domain.Encoder = (*Registry)(nil)

// NewRegistry creates a registry. m may be nil.
func NewRegistry(logger *zap.Logger, opts Options, m *metrics.Metrics) *Registry {
	r := &Registry{
		logger:  logger,
		opts:    opts,
		metrics: m,
	}
	r.rename.Store(true)
	return r
}

// Start launches an encoder for req and adds it to the live set.
// It does not wait for the encoder to produce anything.
func (r *Registry) Start(ctx context.Context, req domain.RecordingRequest) (domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := filepath.Join(r.opts.OutputDir, req.RelPath+Extension)
	target := final
	if r.opts.UseTmpFile {
		target = filepath.Join(filepath.Dir(final), TmpPrefix+filepath.Base(final))
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := r.opts.Command(target, req.Tags)
	procgroup.Set(cmd)

	var out *zapio.Writer
	if r.opts.Debug {
		out = &zapio.Writer{
			Log:   r.logger.With(zap.String("output", filepath.Base(final))),
			Level: zapcore.DebugLevel,
		}
		cmd.Stdout = out
		cmd.Stderr = out
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	s := newSession(r, cmd, final, req.OnStopped, out)
	if r.opts.UseTmpFile {
		s.tmpPath = target
	}
	if err := s.launch(); err != nil {
		return nil, err
	}

	r.live = append(r.live, s)
	r.metrics.RecordingStarted()
	r.metrics.SetLive(len(r.live))

	r.logger.Info("Recording started",
		zap.Int("pid", s.pid),
		zap.String("file", final))
	return s, nil
}

// Live returns a snapshot of the live sessions, oldest first
func (r *Registry) Live() []domain.Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Recording, len(r.live))
	for i, s := range r.live {
		out[i] = s
	}
	return out
}

// DisableRename keeps every session stopped from now on under its
// temporary name
func (r *Registry) DisableRename() {
	r.rename.Store(false)
}

// StopAll refuses further starts, stops the live sessions one by one and
// waits for stops already running in the background
func (r *Registry) StopAll() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for {
		r.mu.Lock()
		if len(r.live) == 0 {
			r.mu.Unlock()
			break
		}
		s := r.live[0]
		r.mu.Unlock()

		s.StopBlocking()
	}

	r.stops.Wait()
}

// detach removes s from the live set. It reports false when s was not a
// member, so only one caller ever stops a session.
func (r *Registry) detach(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, member := range r.live {
		if member == s {
			r.live = append(r.live[:i], r.live[i+1:]...)
			r.stops.Add(1)
			r.metrics.SetLive(len(r.live))
			return true
		}
	}
	return false
}
