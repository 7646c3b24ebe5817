package ytdlp

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/gregjones/httpcache"
	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ThumbnailFetcher = (*ThumbnailFetcher)(nil)

// ThumbnailFetcher downloads thumbnail images through an in-memory HTTP cache,
// so relaying the same video twice does not hit the image CDN again.
type ThumbnailFetcher struct {
	http *http.Client
}

// NewThumbnailFetcher creates a fetcher backed by an httpcache transport.
func NewThumbnailFetcher() *ThumbnailFetcher {
	return &ThumbnailFetcher{http: httpcache.NewMemoryCacheTransport().Client()}
}

// NewThumbnailFetcherWithHTTPClient creates a fetcher with a custom client.
// This constructor is intended for testing.
func NewThumbnailFetcherWithHTTPClient(client *http.Client) *ThumbnailFetcher {
	return &ThumbnailFetcher{http: client}
}

// Fetch saves the image at thumbnailURL to destDir/baseName.<ext>.
func (f *ThumbnailFetcher) Fetch(ctx context.Context, thumbnailURL, destDir, baseName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return "", fmt.Errorf("build thumbnail request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("fetch thumbnail: http status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}

	dest := filepath.Join(destDir, baseName+imageExt(thumbnailURL, resp.Header.Get("Content-Type")))
	if err := atomic.WriteFile(dest, resp.Body); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return dest, nil
}

// imageExt prefers the URL's extension, then the content type, then .jpg.
func imageExt(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ".jpg"
}
