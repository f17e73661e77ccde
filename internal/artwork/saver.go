package artwork

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/genricoloni/trackcap/internal/domain"
	"github.com/google/renameio/v2"
	"go.uber.org/zap"
)

// CoverFilename is the name of the cover written into album directories
const CoverFilename = "cover.jpg"

// Fetcher downloads artwork
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Saver writes cover.jpg into recording directories
type Saver struct {
	logger  *zap.Logger
	fetcher Fetcher
}

var _ domain.CoverSaver = (*Saver)(nil)

// NewSaver creates a cover saver
func NewSaver(logger *zap.Logger, fetcher Fetcher) *Saver {
	return &Saver{logger: logger, fetcher: fetcher}
}

// Save fetches artURL and writes it to dir/cover.jpg. An existing cover is
// left alone.
func (s *Saver) Save(ctx context.Context, artURL, dir string) error {
	target := filepath.Join(dir, CoverFilename)

	_, err := os.Stat(target)
	if err == nil {
		s.logger.Debug("Cover already present", zap.String("path", target))
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", target, err)
	}

	data, err := s.fetcher.Fetch(ctx, artURL)
	if err != nil {
		return fmt.Errorf("failed to fetch artwork: %w", err)
	}

	cover, err := Cover(data)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	// Readers never see a half-written cover
	if err := renameio.WriteFile(target, cover, 0o644); err != nil {
		return fmt.Errorf("failed to write cover: %w", err)
	}

	s.logger.Info("Cover saved", zap.String("path", target), zap.Int("bytes", len(cover)))
	return nil
}
