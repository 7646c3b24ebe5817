package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

const uploadOp = "video.upload"

// countingReader reports cumulative bytes read to onRead.
type countingReader struct {
	r      io.Reader
	n      int64
	onRead func(n int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.n += int64(n)
		cr.onRead(cr.n)
	}
	return n, err
}

// uploadResponse is what the upload server answers with.
type uploadResponse struct {
	Error string `json:"error"`
}

// Upload streams the file at path to uploadURL as the multipart field
// "video_file". The body is produced while it is sent so large files are never
// buffered in memory.
func (c *Client) Upload(ctx context.Context, uploadURL, path string, progress func(sent, total int64)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	total := info.Size()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("video_file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		src := &countingReader{r: f, onRead: func(n int64) {
			if progress != nil {
				progress(n, total)
			}
		}}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		_ = pr.Close()
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return &model.TransportError{Op: uploadOp, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &model.TransportError{Op: uploadOp, StatusCode: resp.StatusCode}
	}

	var body uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return &model.APIError{Method: uploadOp, Code: model.CodeUnknown, Message: body.Error}
	}

	slog.Debug("upload finished", "file", filepath.Base(path), "bytes", total, "duration", time.Since(start))

	if progress != nil {
		progress(total, total)
	}
	return nil
}
