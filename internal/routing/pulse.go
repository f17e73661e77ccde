// Package routing manages the private PulseAudio sink recordings are
// captured from, using pactl (works on pipewire-pulse as well).
package routing

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/genricoloni/trackcap/internal/config"
	"github.com/genricoloni/trackcap/internal/domain"
	"go.uber.org/zap"
)

const (
	sampleRate = 44100
	channels   = 2
)

// ErrStreamNotFound is returned when no sink input matches the player
var ErrStreamNotFound = errors.New("player stream not found")

// PulseRouter implements domain.Router on top of pactl
type PulseRouter struct {
	logger   *zap.Logger
	runner   domain.CommandRunner
	pactl    string
	sinkName string

	mu       sync.Mutex
	moduleID string
	// streamIndex caches the player's sink input once found
	streamIndex string
}

// NewPulseRouter creates a router for the configured sink
func NewPulseRouter(logger *zap.Logger, runner domain.CommandRunner, cfg *config.AppConfig) *PulseRouter {
	return &PulseRouter{
		logger:   logger,
		runner:   runner,
		pactl:    cfg.Pactl,
		sinkName: cfg.SinkName,
	}
}

// Monitor returns the capture source of the recording sink
func (r *PulseRouter) Monitor() string {
	return r.sinkName + ".monitor"
}

// CreateSink loads the recording sink, or adopts one left behind by an
// earlier run. A muted sink is a null sink; otherwise a remap sink keeps
// the audio audible on the default output.
func (r *PulseRouter) CreateSink(ctx context.Context, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.moduleID != "" {
		return nil
	}

	existing, err := r.findSinkModule(ctx)
	if err != nil {
		r.logger.Debug("Could not list loaded modules", zap.Error(err))
	}
	if existing != "" {
		r.moduleID = existing
		r.logger.Info("Reusing recording sink",
			zap.String("sink", r.sinkName),
			zap.String("module", existing))
		return nil
	}

	r.logger.Info("Creating recording sink", zap.String("sink", r.sinkName), zap.Bool("muted", muted))

	args := []string{"load-module"}
	if muted {
		args = append(args, "module-null-sink")
	} else {
		args = append(args, "module-remap-sink")
	}
	args = append(args,
		"sink_name="+r.sinkName,
		"sink_properties=device.description="+r.sinkName,
		"rate="+strconv.Itoa(sampleRate),
		"channels="+strconv.Itoa(channels),
	)
	if !muted {
		args = append(args, "remix=no")
	}

	out, err := r.runner.Output(ctx, r.pactl, args...)
	if err != nil {
		return fmt.Errorf("failed to create sink %s: %w", r.sinkName, err)
	}
	id := strings.TrimSpace(out)
	if _, err := strconv.Atoi(id); err != nil {
		return fmt.Errorf("unexpected module index %q from pactl", id)
	}
	r.moduleID = id
	return nil
}

// findSinkModule returns the index of a loaded module owning our sink name
func (r *PulseRouter) findSinkModule(ctx context.Context) (string, error) {
	out, err := r.runner.Output(ctx, r.pactl, "list", "short", "modules")
	if err != nil {
		return "", err
	}

	want := []string{"sink_name=" + r.sinkName, `sink_name="` + r.sinkName + `"`}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 3 {
			continue
		}
		for _, arg := range strings.Fields(fields[2]) {
			if arg == want[0] || arg == want[1] {
				return fields[0], nil
			}
		}
	}
	return "", scanner.Err()
}

// DestroySink unloads the recording sink. Safe to call when none exists.
func (r *PulseRouter) DestroySink(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.moduleID == "" {
		return nil
	}

	r.logger.Info("Unloading recording sink", zap.String("sink", r.sinkName))
	if err := r.runner.Run(ctx, r.pactl, "unload-module", r.moduleID); err != nil {
		return fmt.Errorf("failed to unload module %s: %w", r.moduleID, err)
	}
	r.moduleID = ""
	r.streamIndex = ""
	return nil
}

// MoveStreamToSink moves the player's stream onto the recording sink.
// A missing stream is logged and leaves routing untouched.
func (r *PulseRouter) MoveStreamToSink(ctx context.Context, owner string) error {
	idx, err := r.findStream(ctx, owner)
	if errors.Is(err, ErrStreamNotFound) {
		r.logger.Warn("Player stream not found, recording from the default sink",
			zap.String("owner", owner))
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.runner.Run(ctx, r.pactl, "move-sink-input", idx, r.sinkName); err != nil {
		return fmt.Errorf("failed to move player to own sink: %w", err)
	}
	r.logger.Info("Moved player to own sink",
		zap.String("owner", owner),
		zap.String("sinkInput", idx))
	return nil
}

// SetVolumes sets the player stream and the recording sink to level
func (r *PulseRouter) SetVolumes(ctx context.Context, owner string, level int) error {
	vol := strconv.Itoa(level)
	var errs []error

	idx, err := r.findStream(ctx, owner)
	switch {
	case errors.Is(err, ErrStreamNotFound):
		r.logger.Warn("Player stream not found, leaving its volume untouched",
			zap.String("owner", owner))
	case err != nil:
		errs = append(errs, err)
	default:
		if err := r.runner.Run(ctx, r.pactl, "set-sink-input-volume", idx, vol); err != nil {
			errs = append(errs, err)
		}
	}

	if err := r.runner.Run(ctx, r.pactl, "set-sink-volume", r.sinkName, vol); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		r.logger.Debug("Volumes set", zap.String("level", vol))
	}
	return errors.Join(errs...)
}

// findStream returns the sink input index of the player, cached after the
// first successful lookup
func (r *PulseRouter) findStream(ctx context.Context, owner string) (string, error) {
	r.mu.Lock()
	cached := r.streamIndex
	r.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	out, err := r.runner.Output(ctx, r.pactl, "list", "sink-inputs")
	if err != nil {
		return "", fmt.Errorf("failed to list sink inputs: %w", err)
	}

	idx, ok := FindSinkInput(out, owner)
	if !ok {
		return "", ErrStreamNotFound
	}

	r.mu.Lock()
	r.streamIndex = idx
	r.mu.Unlock()
	return idx, nil
}

// FindSinkInput scans `pactl list sink-inputs` output for the first stream
// whose application.name contains owner, ignoring case. Headers are matched
// on " #" so localized output works.
func FindSinkInput(listing, owner string) (string, bool) {
	owner = strings.ToLower(owner)
	current := ""

	scanner := bufio.NewScanner(strings.NewReader(listing))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if line[0] != ' ' && line[0] != '\t' {
			current = ""
			if i := strings.LastIndex(line, " #"); i >= 0 {
				current = strings.TrimSpace(line[i+2:])
			}
			continue
		}

		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || strings.TrimSpace(key) != "application.name" {
			continue
		}
		value = strings.ToLower(strings.Trim(strings.TrimSpace(value), `"`))
		if current != "" && strings.Contains(value, owner) {
			return current, true
		}
	}
	return "", false
}
