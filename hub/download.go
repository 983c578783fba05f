package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// download writes the body of a GET to rawURL to dest via a "-partial" file.
// The partial file is removed unless it was renamed into place.
func download(ctx context.Context, client *http.Client, rawURL, token, dest string) (n int64, err error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("hub responded with code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("make cache directory: %w", err)
	}

	partial := dest + "-partial"
	out, err := os.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(partial)
		}
	}()

	if n, err = io.Copy(out, resp.Body); err != nil {
		return n, err
	}

	if err = out.Close(); err != nil {
		return n, err
	}

	if err = os.Rename(partial, dest); err != nil {
		return n, err
	}

	slog.Debug("downloaded", "url", rawURL, "bytes", n)
	return n, nil
}
