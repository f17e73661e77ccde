//go:build linux

package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/genricoloni/trackcap/internal/config"
	"github.com/genricoloni/trackcap/internal/domain"
	"github.com/godbus/dbus/v5"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// MprisMonitor follows one MPRIS player on the session bus. It implements
// domain.PlaybackSource and domain.Transport.
type MprisMonitor struct {
	logger  *zap.Logger
	busName string
	dial    func() (DBusClient, error)

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	conn       DBusClient
	owner      string // unique bus name of the player, empty while it is gone
	trackID    domain.TrackID
	meta       domain.TrackMetadata
	status     domain.PlaybackStatus
	subscriber func()
	wg         sync.WaitGroup // Tracks the signal goroutine
}

var (
	_ domain.PlaybackSource = (*MprisMonitor)(nil)
	_ domain.Transport      = (*MprisMonitor)(nil)
)

// NewMprisMonitor creates a monitor for the configured player
func NewMprisMonitor(logger *zap.Logger, cfg *config.AppConfig) *MprisMonitor {
	return &MprisMonitor{
		logger:  logger,
		busName: cfg.BusName(),
		status:  domain.StatusStopped,
		dial: func() (DBusClient, error) {
			c, err := NewStdDBusClient()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// Start connects to the session bus, reads the player's state and starts
// listening for updates. It returns ErrPlayerUnreachable when the player
// is not running.
func (m *MprisMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, err := m.dial()
	if err != nil {
		return fmt.Errorf("%w: session bus connection failed: %v", ErrPlayerUnreachable, err)
	}

	// Check if we were stopped while connecting to D-Bus
	if err := ctx.Err(); err != nil {
		m.closeConn(conn)
		return err
	}

	owner, err := conn.GetNameOwner(m.busName)
	if err != nil {
		m.closeConn(conn)
		return fmt.Errorf("%w: %s is not on the session bus: %v", ErrPlayerUnreachable, m.busName, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.owner = owner
	m.mu.Unlock()

	if err := m.refresh(); err != nil {
		m.closeConn(conn)
		return fmt.Errorf("%w: %v", ErrPlayerUnreachable, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		m.closeConn(conn)
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	// Track the player going away and coming back
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, m.busName),
	); err != nil {
		m.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	}

	signals := make(chan *dbus.Signal, 10)
	conn.Signal(signals)

	// The monitor outlives the start context
	monitorCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.monitorSignals(monitorCtx, signals)

	id, meta := m.CurrentTrack()
	m.logger.Info("MPRIS monitor started",
		zap.String("player", m.busName),
		zap.String("owner", owner),
		zap.String("track", string(id)),
		zap.String("title", meta.Title),
		zap.String("status", string(m.CurrentStatus())))
	return nil
}

// Stop gracefully stops the monitor
func (m *MprisMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.logger.Debug("Waiting for monitoring goroutine to finish")
	m.wg.Wait()

	m.mu.Lock()
	if m.conn != nil {
		m.closeConn(m.conn)
		m.conn = nil
	}
	m.mu.Unlock()

	m.logger.Info("MPRIS monitor shutdown complete")
	return nil
}

// Subscribe registers the callback run after every player update. Calls
// happen one at a time on the signal goroutine.
func (m *MprisMonitor) Subscribe(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriber = fn
}

// CurrentTrack returns the last known track identity and metadata
func (m *MprisMonitor) CurrentTrack() (domain.TrackID, domain.TrackMetadata) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trackID, m.meta
}

// CurrentStatus returns the last known playback status
func (m *MprisMonitor) CurrentStatus() domain.PlaybackStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Send calls a transport method on the player
func (m *MprisMonitor) Send(ctx context.Context, cmd domain.TransportCommand) error {
	m.mu.RLock()
	conn, owner := m.conn, m.owner
	m.mu.RUnlock()

	if conn == nil || owner == "" {
		return fmt.Errorf("%s %s: %w", m.busName, cmd, ErrPlayerUnreachable)
	}

	m.logger.Debug("Sending transport command", zap.String("command", string(cmd)))
	if err := conn.CallMethod(ctx, m.busName, mprisPath, playerInterface+"."+string(cmd)); err != nil {
		return fmt.Errorf("%s %s failed: %w", m.busName, cmd, err)
	}
	return nil
}

// refresh reads Metadata and PlaybackStatus from the player
func (m *MprisMonitor) refresh() error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	variant, err := conn.GetProperty(m.busName, mprisPath, playerInterface+".Metadata")
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	statusVariant, err := conn.GetProperty(m.busName, mprisPath, playerInterface+".PlaybackStatus")
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// SAFE CAST: players return an empty or odd value when nothing is loaded
	if metadata, ok := variant.Value().(map[string]dbus.Variant); ok {
		m.trackID, m.meta = m.parseMetadata(metadata)
	} else {
		m.logger.Debug("Metadata variant is not a map, skipping")
	}
	if status, ok := statusVariant.Value().(string); ok {
		m.status = parseStatus(status)
	}
	return nil
}

// monitorSignals listens for D-Bus signals and processes them
func (m *MprisMonitor) monitorSignals(ctx context.Context, signals <-chan *dbus.Signal) {
	defer m.wg.Done()

	m.logger.Debug("Signal monitoring goroutine started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Signal monitoring goroutine stopped")
			return
		case sig, ok := <-signals:
			if !ok {
				m.logger.Warn("D-Bus signal channel closed")
				return
			}
			if sig == nil {
				continue
			}
			if sig.Name == nameOwnerChanged {
				m.handleNameOwnerChanged(sig)
			} else {
				m.handleSignal(sig)
			}
		}
	}
}

// handleNameOwnerChanged follows the player's unique name
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || name != m.busName {
		return
	}
	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	m.mu.Lock()
	m.owner = newOwner
	m.mu.Unlock()

	if newOwner == "" {
		m.logger.Warn("Player disappeared from the session bus",
			zap.String("player", name),
			zap.String("unique", oldOwner))
		return
	}

	m.logger.Info("Player appeared on the session bus",
		zap.String("player", name),
		zap.String("unique", newOwner))

	if err := m.refresh(); err != nil {
		m.logger.Warn("Failed to read state of the new player", zap.Error(err))
		return
	}
	m.notify()
}

// handleSignal processes a PropertiesChanged signal of the player
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	// PropertiesChanged signal has 3 arguments:
	// 1. Interface name (string)
	// 2. Changed properties (map[string]Variant)
	// 3. Invalidated properties ([]string)

	if sig.Name != propsChanged {
		return
	}
	if len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != playerInterface {
		return
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	m.mu.RLock()
	owner := m.owner
	m.mu.RUnlock()
	if sig.Sender != owner {
		m.logger.Debug("Ignoring signal of another player", zap.String("sender", sig.Sender))
		return
	}

	metadataVariant, hasMetadata := changedProps["Metadata"]
	statusVariant, hasStatus := changedProps["PlaybackStatus"]
	if !hasMetadata && !hasStatus {
		return
	}

	var metadata map[string]dbus.Variant
	if hasMetadata {
		metadata, ok = metadataVariant.Value().(map[string]dbus.Variant)
		if !ok {
			m.logger.Warn("Invalid metadata format in signal, ignoring")
			return
		}
	}

	var status string
	if hasStatus {
		status, ok = statusVariant.Value().(string)
		if !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring")
			return
		}
	}

	m.mu.Lock()
	if hasMetadata {
		m.trackID, m.meta = m.parseMetadata(metadata)
	}
	if hasStatus {
		m.status = parseStatus(status)
	}
	id, meta, st := m.trackID, m.meta, m.status
	m.mu.Unlock()

	m.logger.Debug("Player update",
		zap.String("track", string(id)),
		zap.String("title", meta.Title),
		zap.String("artist", meta.Artist),
		zap.String("status", string(st)))

	m.notify()
}

// notify runs the subscriber. A panic is logged and swallowed so it cannot
// stop signal delivery.
func (m *MprisMonitor) notify() {
	m.mu.RLock()
	fn := m.subscriber
	m.mu.RUnlock()
	if fn == nil {
		return
	}

	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		m.logger.Error("Subscriber panicked", zap.Error(r.AsError()))
	}
}

// parseMetadata converts MPRIS metadata to domain model
func (m *MprisMonitor) parseMetadata(metadata map[string]dbus.Variant) (domain.TrackID, domain.TrackMetadata) {
	var (
		id   domain.TrackID
		meta domain.TrackMetadata
	)

	// Spotify sends an object path, some players a plain string
	if idVar, ok := metadata["mpris:trackid"]; ok {
		switch v := idVar.Value().(type) {
		case dbus.ObjectPath:
			id = domain.TrackID(v)
		case string:
			id = domain.TrackID(v)
		}
	}

	if titleVar, ok := metadata["xesam:title"]; ok {
		if title, ok := titleVar.Value().(string); ok {
			meta.Title = title
		}
	}

	// Extract artist (can be an array)
	if artistVar, ok := metadata["xesam:artist"]; ok {
		switch artists := artistVar.Value().(type) {
		case []string:
			meta.Artist = strings.Join(artists, ", ")
		case string:
			meta.Artist = artists
		default:
			// Some non-compliant players may use unexpected types
			m.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", artistVar.Value())))
		}
	}

	if albumVar, ok := metadata["xesam:album"]; ok {
		if album, ok := albumVar.Value().(string); ok {
			meta.Album = album
		}
	}

	if numVar, ok := metadata["xesam:trackNumber"]; ok {
		switch n := numVar.Value().(type) {
		case int32:
			meta.TrackNumber = int(n)
		case int64:
			meta.TrackNumber = int(n)
		case uint32:
			meta.TrackNumber = int(n)
		case int:
			meta.TrackNumber = n
		}
		if meta.TrackNumber < 0 {
			meta.TrackNumber = 0
		}
	}

	if artVar, ok := metadata["mpris:artUrl"]; ok {
		if artURL, ok := artVar.Value().(string); ok {
			meta.ArtURL = artURL
		}
	}

	return id, meta
}

func parseStatus(status string) domain.PlaybackStatus {
	switch status {
	case "Playing":
		return domain.StatusPlaying
	case "Paused":
		return domain.StatusPaused
	default:
		return domain.StatusStopped
	}
}

func (m *MprisMonitor) closeConn(conn DBusClient) {
	if err := conn.Close(); err != nil {
		m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
	}
}
