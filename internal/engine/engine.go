// Package engine drives recordings from player updates.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/trackcap/internal/config"
	"github.com/genricoloni/trackcap/internal/domain"
	"github.com/genricoloni/trackcap/internal/metrics"
	"github.com/genricoloni/trackcap/internal/naming"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

const teardownTimeout = 5 * time.Second

// Orchestrator reacts to player updates: it rewinds every new track to its
// start, records it into its own file and stops the previous recording
// once its trailing audio is captured.
type Orchestrator struct {
	logger    *zap.Logger
	source    domain.PlaybackSource
	transport domain.Transport
	router    domain.Router
	encoder   domain.Encoder
	covers    domain.CoverSaver
	metrics   *metrics.Metrics
	exit      func()

	timings    config.Timings
	namer      *naming.Namer
	outputDir  string
	owner      string
	muted      bool
	maxVolume  int
	useCounter bool

	// Owned by the subscriber callback, which is never run concurrently
	lastTrack  domain.TrackID
	lastStatus domain.PlaybackStatus

	scriptPaused    atomic.Bool
	sinkInitialized atomic.Bool
	trackCounter    atomic.Int64
	// generation is bumped on every track change; only the newest worker
	// may act on the player
	generation atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopping bool
	tasks    conc.WaitGroup
	done     chan struct{}
}

// NewOrchestrator wires the orchestrator. covers and m may be nil. exit is
// called once the shutdown sequence has run, to end the process.
func NewOrchestrator(
	logger *zap.Logger,
	cfg *config.AppConfig,
	source domain.PlaybackSource,
	transport domain.Transport,
	router domain.Router,
	enc domain.Encoder,
	covers domain.CoverSaver,
	m *metrics.Metrics,
	exit func(),
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		logger:     logger,
		source:     source,
		transport:  transport,
		router:     router,
		encoder:    enc,
		covers:     covers,
		metrics:    m,
		exit:       exit,
		timings:    cfg.Timings,
		namer:      naming.NewNamer(cfg.Pattern(), cfg.Underscored),
		outputDir:  cfg.GetOutputDir(),
		owner:      cfg.Player,
		muted:      cfg.MuteRecording,
		maxVolume:  cfg.MaxVolume,
		useCounter: cfg.TrackCounter,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	o.trackCounter.Store(1)
	return o
}

// Start creates the recording sink and subscribes to the player. It
// returns immediately (non-blocking).
func (o *Orchestrator) Start(ctx context.Context) error {
	o.logger.Info("Engine starting...")

	if err := o.router.CreateSink(ctx, o.muted); err != nil {
		return err
	}

	// The track loaded at startup is not recorded; recording begins with
	// the next track change.
	o.lastTrack, _ = o.source.CurrentTrack()
	o.lastStatus = o.source.CurrentStatus()
	if o.lastStatus == domain.StatusPlaying {
		o.initRoutingOnce()
	}

	o.source.Subscribe(o.onChanged)
	return nil
}

// Stop runs the shutdown sequence if it has not run yet and waits for
// background tasks.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.logger.Info("Engine stopping...")
	o.teardown("application stopping")

	select {
	case <-o.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.tasks.Wait()
	return nil
}

// Shutdown tears everything down and ends the process. Calls after the
// first are no-ops.
func (o *Orchestrator) Shutdown(reason string) {
	if !o.teardown(reason) {
		return
	}
	if o.exit != nil {
		o.exit()
	}
}

// teardown keeps the incomplete recordings hidden, stops every encoder and
// removes the sink. Only the first call does anything.
func (o *Orchestrator) teardown(reason string) bool {
	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		return false
	}
	o.stopping = true
	o.mu.Unlock()

	defer close(o.done)

	o.logger.Info("Shutting down ...", zap.String("reason", reason))
	o.cancel()

	o.encoder.DisableRename()
	o.encoder.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := o.router.DestroySink(ctx); err != nil {
		o.logger.Warn("Failed to remove recording sink", zap.Error(err))
	}

	o.logger.Info("Bye")
	return true
}

// spawn runs fn as a background task unless shutdown has begun. Panics are
// logged and never reach the caller.
func (o *Orchestrator) spawn(name string, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopping {
		return
	}

	o.tasks.Go(func() {
		var pc panics.Catcher
		pc.Try(fn)
		if r := pc.Recovered(); r != nil {
			o.logger.Error("Background task panicked",
				zap.String("task", name),
				zap.Error(r.AsError()))
		}
	})
}

func (o *Orchestrator) isStopping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopping
}

// onChanged is the player subscriber. It compares the new state with the
// last one seen and reacts to real changes only.
func (o *Orchestrator) onChanged() {
	if o.isStopping() {
		return
	}

	id, meta := o.source.CurrentTrack()
	status := o.source.CurrentStatus()

	if id != o.lastTrack {
		o.lastTrack = id
		o.metrics.TrackChanged()

		// Sessions as of now; the worker must never stop the one it creates
		previous := o.encoder.Live()
		gen := o.generation.Add(1)

		o.logger.Info("Song changed",
			zap.String("track", string(id)),
			zap.String("artist", meta.Artist),
			zap.String("title", meta.Title))

		o.spawn("track change", func() {
			o.trackChangeWorker(gen, id, meta, previous)
		})
	}

	if status != o.lastStatus {
		o.lastStatus = status
		o.logger.Info("State changed", zap.String("status", string(status)))

		switch status {
		case domain.StatusPlaying:
			o.initRoutingOnce()
		default:
			if o.scriptPaused.Load() {
				o.logger.Debug("Ignoring pause sent by ourselves")
				return
			}
			o.Shutdown("playback " + string(status))
		}
	}
}

// initRoutingOnce moves the player onto the recording sink the first time
// playback is seen
func (o *Orchestrator) initRoutingOnce() {
	if !o.sinkInitialized.CompareAndSwap(false, true) {
		return
	}

	o.spawn("routing setup", func() {
		o.logger.Debug("Initializing audio routing")
		if err := o.router.SetVolumes(o.ctx, o.owner, o.maxVolume); err != nil {
			o.logger.Warn("Failed to set volumes", zap.Error(err))
		}
		if err := o.router.MoveStreamToSink(o.ctx, o.owner); err != nil {
			o.logger.Warn("Failed to move player to the recording sink", zap.Error(err))
		}
	})
}

// sleep waits for d unless shutdown begins first
func (o *Orchestrator) sleep(d time.Duration) bool {
	if d <= 0 {
		return o.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-o.ctx.Done():
		return false
	}
}

// current reports whether expected is still the loaded track and gen the
// newest change
func (o *Orchestrator) current(gen uint64, expected domain.TrackID) bool {
	id, _ := o.source.CurrentTrack()
	return id == expected && o.generation.Load() == gen
}

func (o *Orchestrator) trackChangeWorker(gen uint64, expected domain.TrackID, meta domain.TrackMetadata, previous []domain.Recording) {
	logger := o.logger.With(zap.String("track", string(expected)))

	// Keep the previous recording running a little to catch its tail
	if len(previous) > 0 {
		oldest := previous[0]
		o.spawn("overlap stop", func() {
			if o.sleep(o.timings.PostRoll) {
				oldest.StopBlocking()
			}
		})
	}

	// Let the player settle on the new track before touching transport
	if !o.sleep(o.timings.SeekSettle) {
		o.metrics.WorkerAbandoned(metrics.ReasonShutdown)
		return
	}

	if !o.current(gen, expected) {
		logger.Debug("Track superseded, not recording")
		o.metrics.WorkerAbandoned(metrics.ReasonSuperseded)
		return
	}

	// The player pauses by itself at the end of a playlist
	if o.source.CurrentStatus() != domain.StatusPlaying {
		logger.Info("Player is not playing. Maybe the album or playlist has ended.")
		o.metrics.WorkerAbandoned(metrics.ReasonNotPlaying)
		if !o.scriptPaused.Load() {
			o.Shutdown("end of playback")
		}
		return
	}

	if expected.IsAdvertisement() {
		logger.Debug("Skipping advertisement")
		o.metrics.WorkerAbandoned(metrics.ReasonAdvertisement)
		return
	}

	logger.Info("Starting recording")

	// Rewind: no MPRIS method seeks to the start, Previous does once paused
	o.scriptPaused.Store(true)
	o.send(logger, domain.TransportPause)
	if !o.sleep(o.timings.PauseDebounce) {
		o.scriptPaused.Store(false)
		o.metrics.WorkerAbandoned(metrics.ReasonShutdown)
		return
	}

	// A skip while paused must neither get our Previous nor stay paused,
	// or the newer worker would see a user pause
	if !o.current(gen, expected) {
		o.resumeSuperseded(logger)
		o.scriptPaused.Store(false)
		return
	}
	o.scriptPaused.Store(false)
	o.send(logger, domain.TransportPrevious)

	if !o.current(gen, expected) {
		o.resumeSuperseded(logger)
		return
	}

	// Anything still live belongs to an older track whose stop was missed
	for _, stale := range o.encoder.Live() {
		logger.Warn("Stopping stale recording", zap.String("id", stale.ID()))
		stale.StopAsync()
	}

	req, dir := o.request(meta)
	rec, err := o.encoder.Start(o.ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || o.isStopping() {
			o.metrics.WorkerAbandoned(metrics.ReasonShutdown)
			return
		}
		logger.Error("Failed to start recording", zap.Error(err))
		o.metrics.WorkerAbandoned(metrics.ReasonStartFailed)
		// Resume so the listener is not left in silence
		o.send(logger, domain.TransportPlay)
		return
	}
	logger.Debug("Encoder running", zap.String("id", rec.ID()))

	// Give the encoder time to attach before the audio starts
	if !o.sleep(o.timings.PreRoll) {
		return
	}
	o.send(logger, domain.TransportPlay)

	if o.covers != nil && meta.ArtURL != "" {
		o.spawn("cover", func() {
			if err := o.covers.Save(o.ctx, meta.ArtURL, dir); err != nil {
				logger.Warn("Failed to save cover", zap.Error(err))
			}
		})
	}
}

// resumeSuperseded abandons a worker that already paused the player
func (o *Orchestrator) resumeSuperseded(logger *zap.Logger) {
	logger.Debug("Track superseded during rewind, resuming playback")
	o.metrics.WorkerAbandoned(metrics.ReasonSuperseded)
	o.send(logger, domain.TransportPlay)
}

// request derives the recording request from the metadata snapshot. It
// also returns the directory the recording lands in.
func (o *Orchestrator) request(meta domain.TrackMetadata) (domain.RecordingRequest, string) {
	number := naming.PadNumber(meta.TrackNumber, 2)
	if o.useCounter {
		number = naming.PadNumber(int(o.trackCounter.Load()), 3)
	}

	rel := o.namer.Name(naming.Fields{
		Artist:      meta.Artist,
		Album:       meta.Album,
		TrackNumber: number,
		Title:       meta.Title,
	})

	req := domain.RecordingRequest{
		RelPath: rel,
		Tags: []domain.Tag{
			{Key: "artist", Value: meta.Artist},
			{Key: "album", Value: meta.Album},
			{Key: "track", Value: number},
			{Key: "title", Value: meta.Title},
		},
		OnStopped: func(res domain.RecordingResult) {
			if o.useCounter && res.Clean {
				o.trackCounter.Add(1)
			}
		},
	}
	return req, filepath.Dir(filepath.Join(o.outputDir, rel))
}

func (o *Orchestrator) send(logger *zap.Logger, cmd domain.TransportCommand) {
	if err := o.transport.Send(o.ctx, cmd); err != nil {
		logger.Warn("Transport command failed", zap.String("command", string(cmd)), zap.Error(err))
	}
}
