package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/genricoloni/trackcap/internal/config"
	"go.uber.org/fx"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		OutputDir:       t.TempDir(),
		FilenamePattern: "{artist} - {title}",
		UseTmpFile:      true,
		Player:          "spotify",
		SinkName:        "spotrec",
		FFmpeg:          "ffmpeg",
		Pactl:           "pactl",
		MaxVolume:       65536,
		SaveCover:       true,
		CoverTimeout:    10 * time.Second,
		CoverMaxSize:    10 << 20,
		Timings:         config.DefaultTimings(),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

// TestAppGraphValidity verifies that the dependency graph is resolvable.
// This test will fail if you forget an fx.Provide for a required interface.
func TestAppGraphValidity(t *testing.T) {
	// fx.ValidateApp checks that there are no missing or cyclic dependencies
	err := fx.ValidateApp(AppOptions(testConfig(t)))
	if err != nil {
		t.Errorf("Dependency graph is not valid: %v", err)
	}
}

// TestNewLogger specifically verifies the logger configuration
func TestNewLogger(t *testing.T) {
	for _, debug := range []bool{false, true} {
		logger, err := newLogger(debug)
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}
		if logger == nil {
			t.Fatal("Logger should not be nil")
		}
		if got := logger.Core().Enabled(-1); got != debug {
			t.Errorf("debug=%v: debug level enabled = %v", debug, got)
		}
	}
}

func TestConfigShow(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "show", "--player", "vlc", "-o", t.TempDir(), "-c"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("config show failed: %v", err)
	}

	for _, want := range []string{"player: vlc", "internal-track-counter: true", "seek-settle: 4.5s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestConfigShow_InvalidPattern(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "show", "-p", "{artist} - {genre}"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected an error for an unknown token")
	}
}

func TestPrintIntro(t *testing.T) {
	var out bytes.Buffer
	cfg := testConfig(t)
	printIntro(&out, cfg)

	if !strings.Contains(out.String(), "Existing files will be overridden!") {
		t.Errorf("intro lacks the overwrite warning:\n%s", out.String())
	}
	if !strings.Contains(out.String(), cfg.GetOutputDir()) {
		t.Errorf("intro lacks the output directory:\n%s", out.String())
	}
}
