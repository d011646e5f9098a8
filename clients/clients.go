// Package clients talks to the external services of the ingestion pipeline:
// HTTP model services for landmarks and transcription, and the Montreal
// Forced Aligner as a local process.
package clients

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

type HTTP struct{ c *http.Client }

// NewHTTP returns a client with the given request timeout; zero means 60s.
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTP{c: &http.Client{Timeout: timeout}}
}

// postMultipart sends one file part plus plain fields to url and returns the
// response for status 200. The caller closes the body.
func (h *HTTP) postMultipart(ctx context.Context, name, url, filename string, file io.Reader, fields map[string]string) (*http.Response, error) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		fw, err := w.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(fw, file)
		}
		for k, v := range fields {
			if err != nil {
				break
			}
			err = w.WriteField(k, v)
		}
		if err == nil {
			err = w.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %s", name, resp.Status, string(body))
	}
	return resp, nil
}
