package encoder

import (
	"os/exec"
	"strconv"

	"github.com/genricoloni/trackcap/internal/domain"
)

const (
	sampleRate = 44100
	channels   = 2
)

// CommandFunc builds the encoder command writing to path
type CommandFunc func(path string, tags []domain.Tag) *exec.Cmd

// FFmpegCommand returns a CommandFunc capturing source (a pulse source,
// usually the recording sink's monitor) into FLAC
func FFmpegCommand(binary, source string) CommandFunc {
	return func(path string, tags []domain.Tag) *exec.Cmd {
		return exec.Command(binary, FFmpegArgs(source, path, tags)...)
	}
}

// FFmpegArgs returns the ffmpeg arguments. Existing files are overwritten.
func FFmpegArgs(source, path string, tags []domain.Tag) []string {
	args := []string{
		"-hide_banner", "-y",
		"-f", "pulse",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-i", source,
	}
	for _, tag := range tags {
		args = append(args, "-metadata", tag.Key+"="+tag.Value)
	}
	return append(args, "-acodec", "flac", path)
}
