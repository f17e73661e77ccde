package domain

import "strings"

// PlaybackStatus represents the current state of the media player
type PlaybackStatus string

const (
	// StatusPlaying indicates the media is currently playing
	StatusPlaying PlaybackStatus = "Playing"
	// StatusPaused indicates the media is paused
	StatusPaused PlaybackStatus = "Paused"
	// StatusStopped indicates the media is stopped
	StatusStopped PlaybackStatus = "Stopped"
)

// TrackID is the opaque identity of the item currently loaded in the player.
// Equality is the only operation the orchestrator relies on.
type TrackID string

var adPrefixes = []string{"spotify:ad:", "/com/spotify/ad/"}

// IsAdvertisement reports whether the identity denotes an advertisement
// rather than a recordable track.
func (id TrackID) IsAdvertisement() bool {
	for _, p := range adPrefixes {
		if strings.HasPrefix(string(id), p) {
			return true
		}
	}
	return false
}

// TrackMetadata is a snapshot of the player metadata taken when a
// track change is observed
type TrackMetadata struct {
	// Artist holds all artists joined with ", "
	Artist string
	Album  string
	Title  string
	// TrackNumber is the position on the album, 0 when unknown
	TrackNumber int
	// ArtURL is the URL of the album artwork, may be empty
	ArtURL string
}

// TransportCommand is a named player transport method
type TransportCommand string

const (
	TransportPause    TransportCommand = "Pause"
	TransportPrevious TransportCommand = "Previous"
	TransportPlay     TransportCommand = "Play"
)

// SessionState is the lifecycle state of one encoder session
type SessionState int32

const (
	SessionStarting SessionState = iota
	SessionRecording
	SessionStoppingRequested
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionStarting:
		return "starting"
	case SessionRecording:
		return "recording"
	case SessionStoppingRequested:
		return "stopping"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Tag is one embedded metadata key/value pair handed to the encoder.
// A slice keeps the order stable on the command line.
type Tag struct {
	Key   string
	Value string
}

// RecordingRequest describes a recording the orchestrator wants started
type RecordingRequest struct {
	// RelPath is the output path relative to the output directory, without
	// extension. It may contain subdirectories.
	RelPath string
	Tags    []Tag
	// OnStopped is invoked once after the session has fully stopped
	OnStopped func(RecordingResult)
}

// RecordingResult reports how an encoder session ended
type RecordingResult struct {
	ID   string
	Path string
	// Clean is true when the encoder exited within the grace period
	Clean bool
	// Promoted is true when the temporary file was renamed to its final name
	Promoted bool
}
