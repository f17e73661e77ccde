package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/genricoloni/trackcap/internal/naming"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix = "TRACKCAP"

	defaultFilenamePattern = "{trackNumber} - {artist} - {title}"
	defaultPlayer          = "spotify"
	defaultSinkName        = "spotrec"
	defaultFFmpeg          = "ffmpeg"
	defaultPactl           = "pactl"
	defaultMaxVolume       = 65536
	defaultCoverTimeout    = 10 * time.Second
	defaultCoverMaxSize    = 10 << 20
)

// Keys shared by flags, env vars and the config file
const (
	KeyDebug           = "debug"
	KeySkipIntro       = "skip-intro"
	KeyMuteRecording   = "mute-recording"
	KeyOutputDirectory = "output-directory"
	KeyFilenamePattern = "filename-pattern"
	KeyNoTmpFile       = "no-tmp-file"
	KeyUnderscored     = "underscored-filenames"
	KeyTrackCounter    = "internal-track-counter"
	KeyPlayer          = "player"
	KeySinkName        = "sink-name"
	KeyFFmpeg          = "ffmpeg"
	KeyPactl           = "pactl"
	KeyMaxVolume       = "max-volume"
	KeySaveCover       = "save-cover"
	KeyCoverTimeout    = "cover-timeout"
	KeyCoverMaxSize    = "cover-max-size"
	KeyMetricsAddr     = "metrics-addr"
	KeySeekSettle      = "seek-settle"
	KeyPostRoll        = "post-roll"
	KeyPreRoll         = "pre-roll"
	KeyPauseDebounce   = "pause-debounce"
	KeyStopGrace       = "stop-grace"
)

// Timings are the delays of the seek-to-start maneuver and the overlap window
type Timings struct {
	// SeekSettle is how long a new track plays before it is rewound
	SeekSettle time.Duration
	// PostRoll is how long the previous recording keeps running after a change
	PostRoll time.Duration
	// PreRoll is the gap between encoder start and Play
	PreRoll time.Duration
	// PauseDebounce is the gap between the script's Pause and Previous
	PauseDebounce time.Duration
	// StopGrace is how long an encoder may take to exit after SIGTERM
	StopGrace time.Duration
}

// DefaultTimings returns the tuned delays
func DefaultTimings() Timings {
	return Timings{
		SeekSettle:    4500 * time.Millisecond,
		PostRoll:      1350 * time.Millisecond,
		PreRoll:       150 * time.Millisecond,
		PauseDebounce: 100 * time.Millisecond,
		StopGrace:     time.Second,
	}
}

// Validate checks the timings are usable
func (t Timings) Validate() error {
	for name, d := range map[string]time.Duration{
		KeySeekSettle:    t.SeekSettle,
		KeyPostRoll:      t.PostRoll,
		KeyPreRoll:       t.PreRoll,
		KeyPauseDebounce: t.PauseDebounce,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if t.StopGrace <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyStopGrace, t.StopGrace)
	}
	// A previous recording has to be stopped before the next one starts,
	// otherwise more than two sessions could be live at once.
	if t.PostRoll >= t.SeekSettle {
		return fmt.Errorf("%s (%s) must be shorter than %s (%s)", KeyPostRoll, t.PostRoll, KeySeekSettle, t.SeekSettle)
	}
	return nil
}

// AppConfig holds application configuration
type AppConfig struct {
	Debug           bool
	SkipIntro       bool
	MuteRecording   bool
	OutputDir       string
	FilenamePattern string
	UseTmpFile      bool
	Underscored     bool
	TrackCounter    bool
	Player          string
	SinkName        string
	FFmpeg          string
	Pactl           string
	MaxVolume       int
	SaveCover       bool
	CoverTimeout    time.Duration
	CoverMaxSize    int64
	MetricsAddr     string
	Timings         Timings

	pattern *naming.Template
}

// fileConfig is the YAML form of AppConfig, keyed like the flags so a
// dumped configuration can be passed back with --config
type fileConfig struct {
	Debug           bool   `yaml:"debug"`
	SkipIntro       bool   `yaml:"skip-intro"`
	MuteRecording   bool   `yaml:"mute-recording"`
	OutputDir       string `yaml:"output-directory"`
	FilenamePattern string `yaml:"filename-pattern"`
	NoTmpFile       bool   `yaml:"no-tmp-file"`
	Underscored     bool   `yaml:"underscored-filenames"`
	TrackCounter    bool   `yaml:"internal-track-counter"`
	Player          string `yaml:"player"`
	SinkName        string `yaml:"sink-name"`
	FFmpeg          string `yaml:"ffmpeg"`
	Pactl           string `yaml:"pactl"`
	MaxVolume       int    `yaml:"max-volume"`
	SaveCover       bool   `yaml:"save-cover"`
	CoverTimeout    string `yaml:"cover-timeout"`
	CoverMaxSize    int64  `yaml:"cover-max-size"`
	MetricsAddr     string `yaml:"metrics-addr,omitempty"`
	SeekSettle      string `yaml:"seek-settle"`
	PostRoll        string `yaml:"post-roll"`
	PreRoll         string `yaml:"pre-roll"`
	PauseDebounce   string `yaml:"pause-debounce"`
	StopGrace       string `yaml:"stop-grace"`
}

// MarshalYAML writes the configuration in the layout Load reads
func (c AppConfig) MarshalYAML() (interface{}, error) {
	return fileConfig{
		Debug:           c.Debug,
		SkipIntro:       c.SkipIntro,
		MuteRecording:   c.MuteRecording,
		OutputDir:       c.OutputDir,
		FilenamePattern: c.FilenamePattern,
		NoTmpFile:       !c.UseTmpFile,
		Underscored:     c.Underscored,
		TrackCounter:    c.TrackCounter,
		Player:          c.Player,
		SinkName:        c.SinkName,
		FFmpeg:          c.FFmpeg,
		Pactl:           c.Pactl,
		MaxVolume:       c.MaxVolume,
		SaveCover:       c.SaveCover,
		CoverTimeout:    c.CoverTimeout.String(),
		CoverMaxSize:    c.CoverMaxSize,
		MetricsAddr:     c.MetricsAddr,
		SeekSettle:      c.Timings.SeekSettle.String(),
		PostRoll:        c.Timings.PostRoll.String(),
		PreRoll:         c.Timings.PreRoll.String(),
		PauseDebounce:   c.Timings.PauseDebounce.String(),
		StopGrace:       c.Timings.StopGrace.String(),
	}, nil
}

// RegisterFlags declares every configuration flag on fs
func RegisterFlags(fs *pflag.FlagSet) {
	t := DefaultTimings()

	fs.BoolP(KeyDebug, "d", false, "Print a little more")
	fs.BoolP(KeySkipIntro, "s", false, "Skip the intro message")
	fs.BoolP(KeyMuteRecording, "m", false, "Mute the player on your main output device while recording")
	fs.StringP(KeyOutputDirectory, "o", defaultOutputDir(), "Where to save the recordings")
	fs.StringP(KeyFilenamePattern, "p", defaultFilenamePattern,
		"A pattern for the file names of the recordings\nAvailable: {artist}, {album}, {trackNumber}, {title}\nMay contain slashes to create sub directories")
	fs.BoolP(KeyNoTmpFile, "t", false, "Do not use a temporary hidden file during recording")
	fs.BoolP(KeyUnderscored, "u", false, "Force the file names to have underscores instead of whitespaces")
	fs.BoolP(KeyTrackCounter, "c", false, "Replace the player's track number with an own counter, preserving playlist order")
	fs.String(KeyPlayer, defaultPlayer, "MPRIS player name, the part after org.mpris.MediaPlayer2.")
	fs.String(KeySinkName, defaultSinkName, "Name of the recording sink")
	fs.String(KeyFFmpeg, defaultFFmpeg, "ffmpeg executable")
	fs.String(KeyPactl, defaultPactl, "pactl executable")
	fs.Int(KeyMaxVolume, defaultMaxVolume, "Volume applied to the player stream and the recording sink")
	fs.Bool(KeySaveCover, false, "Save the album cover as cover.jpg next to the recordings")
	fs.Duration(KeyCoverTimeout, defaultCoverTimeout, "Time limit for downloading a cover")
	fs.Int64(KeyCoverMaxSize, defaultCoverMaxSize, "Largest cover download accepted, in bytes")
	fs.String(KeyMetricsAddr, "", "Serve prometheus metrics on this address (disabled when empty)")
	fs.Duration(KeySeekSettle, t.SeekSettle, "Playback time before seeking to the beginning of a new track")
	fs.Duration(KeyPostRoll, t.PostRoll, "Recording time after the end of a track")
	fs.Duration(KeyPreRoll, t.PreRoll, "Recording time before the start of a track")
	fs.Duration(KeyPauseDebounce, t.PauseDebounce, "Delay between pausing and rewinding the track")
	fs.Duration(KeyStopGrace, t.StopGrace, "Time the encoder gets to finish before it is killed")
}

// NewViper returns a viper instance bound to fs, the TRACKCAP_ environment
// and, when configFile is set, a YAML file
func NewViper(fs *pflag.FlagSet, configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load builds and validates an AppConfig from v
func Load(v *viper.Viper) (*AppConfig, error) {
	def := DefaultTimings()
	v.SetDefault(KeyOutputDirectory, defaultOutputDir())
	v.SetDefault(KeyFilenamePattern, defaultFilenamePattern)
	v.SetDefault(KeyPlayer, defaultPlayer)
	v.SetDefault(KeySinkName, defaultSinkName)
	v.SetDefault(KeyFFmpeg, defaultFFmpeg)
	v.SetDefault(KeyPactl, defaultPactl)
	v.SetDefault(KeyMaxVolume, defaultMaxVolume)
	v.SetDefault(KeyCoverTimeout, defaultCoverTimeout)
	v.SetDefault(KeyCoverMaxSize, defaultCoverMaxSize)
	v.SetDefault(KeySeekSettle, def.SeekSettle)
	v.SetDefault(KeyPostRoll, def.PostRoll)
	v.SetDefault(KeyPreRoll, def.PreRoll)
	v.SetDefault(KeyPauseDebounce, def.PauseDebounce)
	v.SetDefault(KeyStopGrace, def.StopGrace)

	cfg := &AppConfig{
		Debug:           v.GetBool(KeyDebug),
		SkipIntro:       v.GetBool(KeySkipIntro),
		MuteRecording:   v.GetBool(KeyMuteRecording),
		OutputDir:       expandPath(v.GetString(KeyOutputDirectory)),
		FilenamePattern: v.GetString(KeyFilenamePattern),
		UseTmpFile:      !v.GetBool(KeyNoTmpFile),
		Underscored:     v.GetBool(KeyUnderscored),
		TrackCounter:    v.GetBool(KeyTrackCounter),
		Player:          v.GetString(KeyPlayer),
		SinkName:        v.GetString(KeySinkName),
		FFmpeg:          v.GetString(KeyFFmpeg),
		Pactl:           v.GetString(KeyPactl),
		MaxVolume:       v.GetInt(KeyMaxVolume),
		SaveCover:       v.GetBool(KeySaveCover),
		CoverTimeout:    v.GetDuration(KeyCoverTimeout),
		CoverMaxSize:    v.GetInt64(KeyCoverMaxSize),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
		Timings: Timings{
			SeekSettle:    v.GetDuration(KeySeekSettle),
			PostRoll:      v.GetDuration(KeyPostRoll),
			PreRoll:       v.GetDuration(KeyPreRoll),
			PauseDebounce: v.GetDuration(KeyPauseDebounce),
			StopGrace:     v.GetDuration(KeyStopGrace),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and compiles the filename pattern
func (c *AppConfig) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output directory must not be empty")
	}
	if c.Player == "" {
		return errors.New("player name must not be empty")
	}
	if c.SinkName == "" {
		return errors.New("sink name must not be empty")
	}
	if c.MaxVolume <= 0 {
		return fmt.Errorf("max volume must be positive, got %d", c.MaxVolume)
	}
	if c.SaveCover {
		if c.CoverTimeout <= 0 {
			return fmt.Errorf("%s must be positive, got %s", KeyCoverTimeout, c.CoverTimeout)
		}
		if c.CoverMaxSize <= 0 {
			return fmt.Errorf("%s must be positive, got %d", KeyCoverMaxSize, c.CoverMaxSize)
		}
	}
	if err := c.Timings.Validate(); err != nil {
		return err
	}

	tmpl, err := naming.Parse(c.FilenamePattern)
	if err != nil {
		return fmt.Errorf("invalid filename pattern: %w", err)
	}
	c.pattern = tmpl
	return nil
}

// Pattern returns the compiled filename pattern. Validate must have succeeded.
func (c *AppConfig) Pattern() *naming.Template {
	return c.pattern
}

// GetOutputDir returns the directory recordings are written to
func (c *AppConfig) GetOutputDir() string {
	return c.OutputDir
}

// BusName returns the MPRIS well-known bus name of the configured player
func (c *AppConfig) BusName() string {
	return "org.mpris.MediaPlayer2." + c.Player
}

// LogSummary logs the effective configuration
func (c *AppConfig) LogSummary(logger *zap.Logger) {
	logger.Info("Configuration loaded",
		zap.String("outputDir", c.OutputDir),
		zap.String("pattern", c.FilenamePattern),
		zap.String("player", c.BusName()),
		zap.String("sink", c.SinkName),
		zap.Bool("tmpFile", c.UseTmpFile),
		zap.Bool("muted", c.MuteRecording),
		zap.Bool("trackCounter", c.TrackCounter),
		zap.Duration("seekSettle", c.Timings.SeekSettle),
		zap.Duration("postRoll", c.Timings.PostRoll))
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "trackcap"
	}
	return filepath.Join(home, "trackcap")
}

// expandPath expands environment variables and a leading ~
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return p
}
