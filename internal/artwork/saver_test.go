package artwork

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSaver_Save(t *testing.T) {
	var hits atomic.Int32
	jpegData := createTestJPEG(1200, 1200, color.White)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegData)
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "Queen", "Jazz")
	saver := NewSaver(zap.NewNop(), NewHTTPFetcher(zap.NewNop(), Limits{Timeout: 5 * time.Second, MaxBytes: 10 << 20}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := saver.Save(ctx, server.URL, dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, CoverFilename))
	if err != nil {
		t.Fatalf("cover not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("cover is empty")
	}

	// An existing cover is kept and not fetched again
	if err := saver.Save(ctx, server.URL, dir); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 download, got %d", hits.Load())
	}
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string) ([]byte, error) {
	return nil, errors.New("offline")
}

func TestSaver_FetchErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	saver := NewSaver(zap.NewNop(), failingFetcher{})

	if err := saver.Save(context.Background(), "https://example.com/a.jpg", dir); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, CoverFilename)); !os.IsNotExist(err) {
		t.Errorf("cover should not exist, stat: %v", err)
	}
}
