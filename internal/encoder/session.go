package encoder

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/genricoloni/trackcap/internal/domain"
	"github.com/genricoloni/trackcap/internal/procgroup"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

// Session is one running encoder process
type Session struct {
	reg       *Registry
	cmd       *exec.Cmd
	pid       int
	path      string
	tmpPath   string
	onStopped func(domain.RecordingResult)
	out       *zapio.Writer

	state atomic.Int32
	// early is set when the process exited before a stop was requested
	early atomic.Bool
	done  chan struct{}
}

var _ domain.Recording = (*Session)(nil)

// Signal senders, replaced in tests
var (
	terminateGroup = procgroup.Terminate
	killGroup      = procgroup.Kill
)

func newSession(r *Registry, cmd *exec.Cmd, path string, onStopped func(domain.RecordingResult), out *zapio.Writer) *Session {
	s := &Session{
		reg:       r,
		cmd:       cmd,
		path:      path,
		onStopped: onStopped,
		out:       out,
		done:      make(chan struct{}),
	}
	s.state.Store(int32(domain.SessionStarting))
	return s
}

// launch starts the process and moves the session to Recording. On failure
// the session stays in Starting and owns no process.
func (s *Session) launch() error {
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}
	s.pid = s.cmd.Process.Pid
	s.state.Store(int32(domain.SessionRecording))
	go s.wait()
	return nil
}

// ID returns the process id of the encoder
func (s *Session) ID() string {
	return strconv.Itoa(s.pid)
}

// State returns the lifecycle state
func (s *Session) State() domain.SessionState {
	return domain.SessionState(s.state.Load())
}

// Path returns the final path of the recording
func (s *Session) Path() string {
	return s.path
}

// StopBlocking stops the session and returns once the process has exited
// and the file has been promoted. It is a no-op when the session is not
// live anymore.
func (s *Session) StopBlocking() {
	if !s.reg.detach(s) {
		return
	}
	s.finish()
}

// StopAsync detaches the session and stops it in the background
func (s *Session) StopAsync() {
	if !s.reg.detach(s) {
		return
	}
	go s.finish()
}

func (s *Session) wait() {
	err := s.cmd.Wait()
	if s.out != nil {
		_ = s.out.Close()
	}

	if s.State() == domain.SessionRecording {
		s.early.Store(true)
		s.reg.logger.Warn("Encoder exited while recording",
			zap.Int("pid", s.pid),
			zap.String("file", s.path),
			zap.Error(err))
	}
	close(s.done)
}

func (s *Session) finish() {
	defer s.reg.stops.Done()
	logger := s.reg.logger.With(zap.Int("pid", s.pid))

	s.state.Store(int32(domain.SessionStoppingRequested))
	select {
	case <-s.done:
		// Already reaped; the pid may belong to another process by now
	default:
		if err := terminateGroup(s.pid); err != nil {
			logger.Warn("Failed to terminate encoder", zap.Error(err))
		}
	}

	killed := false
	timer := time.NewTimer(s.reg.opts.StopGrace)
	select {
	case <-s.done:
	case <-timer.C:
		killed = true
		logger.Warn("Encoder did not stop in time, killing it",
			zap.Duration("grace", s.reg.opts.StopGrace))
		if err := killGroup(s.pid); err != nil {
			logger.Error("Failed to kill encoder", zap.Error(err))
		}
		<-s.done
	}
	timer.Stop()

	result := domain.RecordingResult{
		ID:    s.ID(),
		Path:  s.path,
		Clean: !killed && !s.early.Load(),
	}

	if s.tmpPath != "" {
		result.Path = s.tmpPath
		switch {
		case !result.Clean:
			logger.Warn("Recording incomplete, keeping temporary file", zap.String("file", s.tmpPath))
		case !s.reg.rename.Load():
			logger.Info("Recording interrupted, keeping temporary file", zap.String("file", s.tmpPath))
		default:
			if s.promote(logger) {
				result.Path = s.path
				result.Promoted = true
			}
		}
	}

	s.state.Store(int32(domain.SessionStopped))
	s.reg.metrics.RecordingFinished(result.Clean)
	logger.Info("Recording stopped",
		zap.String("file", result.Path),
		zap.Bool("complete", result.Clean))

	if s.onStopped != nil {
		var pc panics.Catcher
		pc.Try(func() { s.onStopped(result) })
		if r := pc.Recovered(); r != nil {
			logger.Error("Recording callback panicked", zap.Error(r.AsError()))
		}
	}
}

// promote renames the temporary file to the final name. Both live in the
// same directory so the rename is atomic.
func (s *Session) promote(logger *zap.Logger) bool {
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Temporary file missing, nothing to rename", zap.String("file", s.tmpPath))
		} else {
			logger.Error("Failed to rename temporary file", zap.String("file", s.tmpPath), zap.Error(err))
		}
		return false
	}
	return true
}
