//go:build !linux

package monitor

import (
	"context"
	"fmt"

	"github.com/genricoloni/trackcap/internal/config"
	"github.com/genricoloni/trackcap/internal/domain"
	"go.uber.org/zap"
)

// MprisMonitor stub for non-Linux platforms
type MprisMonitor struct {
	logger *zap.Logger
}

// NewMprisMonitor creates a stub monitor that returns an error on non-Linux platforms
func NewMprisMonitor(logger *zap.Logger, _ *config.AppConfig) *MprisMonitor {
	return &MprisMonitor{logger: logger}
}

// Start returns an error indicating MPRIS monitoring is not supported on this platform
func (m *MprisMonitor) Start(ctx context.Context) error {
	return fmt.Errorf("%w: MPRIS monitoring is only supported on Linux systems", ErrPlayerUnreachable)
}

// Stop is a no-op on non-Linux platforms
func (m *MprisMonitor) Stop(ctx context.Context) error {
	return nil
}

// Subscribe is a no-op on non-Linux platforms
func (m *MprisMonitor) Subscribe(func()) {}

// CurrentTrack returns an empty track
func (m *MprisMonitor) CurrentTrack() (domain.TrackID, domain.TrackMetadata) {
	return "", domain.TrackMetadata{}
}

// CurrentStatus always reports Stopped
func (m *MprisMonitor) CurrentStatus() domain.PlaybackStatus {
	return domain.StatusStopped
}

// Send always fails on non-Linux platforms
func (m *MprisMonitor) Send(context.Context, domain.TransportCommand) error {
	return ErrPlayerUnreachable
}
