// Package artwork saves album covers next to the recordings.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const userAgent = "trackcap/1.0"

var (
	// ErrUnsupportedArtURL is returned for mpris:artUrl values that are not http(s)
	ErrUnsupportedArtURL = errors.New("unsupported art url")
	// ErrNotAnImage is returned when the server does not answer with an image
	ErrNotAnImage = errors.New("art url is not an image")
	// ErrCoverTooLarge is returned when the cover exceeds the size cap
	ErrCoverTooLarge = errors.New("cover too large")
)

// CoverStatusError carries a non-200 answer of the art server
type CoverStatusError struct {
	Code int
}

func (e *CoverStatusError) Error() string {
	return fmt.Sprintf("art server answered %d", e.Code)
}

// Limits bound a single cover download
type Limits struct {
	Timeout  time.Duration
	MaxBytes int64
}

// HTTPFetcher downloads covers from the player's art urls
type HTTPFetcher struct {
	logger   *zap.Logger
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher bounded by limits
func NewHTTPFetcher(logger *zap.Logger, limits Limits) *HTTPFetcher {
	return &HTTPFetcher{
		logger:   logger,
		client:   &http.Client{Timeout: limits.Timeout},
		maxBytes: limits.MaxBytes,
	}
}

// Fetch downloads the cover behind artURL
func (f *HTTPFetcher) Fetch(ctx context.Context, artURL string) ([]byte, error) {
	u, err := url.Parse(artURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedArtURL, artURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cover download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &CoverStatusError{Code: resp.StatusCode}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotAnImage, resp.Header.Get("Content-Type"))
	}

	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: announced %d bytes, cap is %d", ErrCoverTooLarge, resp.ContentLength, f.maxBytes)
	}

	// One byte over the cap tells a truncated body from a full one
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read cover: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: cap is %d bytes", ErrCoverTooLarge, f.maxBytes)
	}

	f.logger.Debug("Cover downloaded", zap.Int("bytes", len(data)), zap.String("url", artURL))
	return data, nil
}
