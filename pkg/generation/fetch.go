package generation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ArtifactFetcher downloads a finished artifact to local storage so it can
// be analyzed and played back.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, url, destDir string) (string, error)
}

// HTTPFetcher downloads artifacts over plain HTTP.
type HTTPFetcher struct {
	http *http.Client
}

// NewHTTPFetcher returns a fetcher using the default HTTP client.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{http: http.DefaultClient}
}

// Fetch streams the artifact into destDir under a fresh name and returns
// the local path.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build artifact request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artifact download returned %d", resp.StatusCode)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(destDir, uuid.NewString()+".wav")
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write artifact file: %w", err)
	}
	return path, nil
}
