package domain

import "context"

// PlaybackSource exposes the player's live state.
// Implementations should handle D-Bus/MPRIS communication
type PlaybackSource interface {
	// CurrentTrack returns the identity and metadata of the loaded item
	CurrentTrack() (TrackID, TrackMetadata)

	// CurrentStatus returns the last reported playback status
	CurrentStatus() PlaybackStatus

	// Subscribe registers the single callback invoked whenever the player
	// publishes a property update. Calls are serialized.
	Subscribe(fn func())
}

// Transport issues transport commands to the player
type Transport interface {
	Send(ctx context.Context, cmd TransportCommand) error
}

// Router controls the private audio sink recordings are captured from
type Router interface {
	// CreateSink creates or reuses the recording sink. Failure is fatal.
	CreateSink(ctx context.Context, muted bool) error

	// DestroySink unloads the sink if this process created it
	DestroySink(ctx context.Context) error

	// MoveStreamToSink moves the stream whose application name contains
	// owner (case-insensitive) onto the recording sink
	MoveStreamToSink(ctx context.Context, owner string) error

	// SetVolumes sets the player stream and the recording sink to level
	SetVolumes(ctx context.Context, owner string, level int) error
}

// Recording is one live encoder session
type Recording interface {
	ID() string
	State() SessionState
	// StopBlocking stops the session and waits for the process to exit.
	// It is a no-op when the session is not live anymore.
	StopBlocking()
	// StopAsync detaches the session from the live set and stops it in
	// the background
	StopAsync()
}

// Encoder starts recordings and tracks the live set
type Encoder interface {
	Start(ctx context.Context, req RecordingRequest) (Recording, error)

	// Live returns a snapshot of live sessions, oldest first
	Live() []Recording

	// DisableRename stops temporary files from being promoted
	DisableRename()

	// StopAll drains the live set and refuses further starts
	StopAll()
}

// CommandRunner executes external commands
//
//go:generate mockgen -destination=mocks/command_runner_mock.go -package=mocks github.com/genricoloni/trackcap/internal/domain CommandRunner
type CommandRunner interface {
	// Run executes the command and waits for it to finish
	Run(ctx context.Context, name string, args ...string) error

	// Output executes the command and returns its trimmed stdout
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// CoverSaver stores album artwork next to recordings
type CoverSaver interface {
	// Save fetches artURL and writes it into dir unless a cover is
	// already there
	Save(ctx context.Context, artURL, dir string) error
}
