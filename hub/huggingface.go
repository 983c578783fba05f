package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	hfhub "github.com/gomlx/go-huggingface/hub"
)

const (
	defaultHuggingFaceEndpoint = "https://huggingface.co"
	defaultHuggingFaceRevision = "main"
)

// HuggingFace downloads files from the Hugging Face Hub into a local
// Hugging Face style cache.
type HuggingFace struct {
	CacheDir string
	Token    string

	// Endpoint and Client serve revisions other than main, which are
	// resolved directly into CacheDir/revisions.
	Endpoint string
	Client   *http.Client
}

func (h *HuggingFace) Fetch(ctx context.Context, model, file, revision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if revision != "" && revision != defaultHuggingFaceRevision {
		return h.fetchRevision(ctx, model, file, revision)
	}

	// the hub client always tracks main
	repo := hfhub.New(model)
	if h.CacheDir != "" {
		repo = repo.WithCacheDir(h.CacheDir)
	}

	if h.Token != "" {
		repo = repo.WithAuth(h.Token)
	}

	path, err := repo.DownloadFile(file)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%s/%s: %w", model, file, ErrNotFound)
		}
		return "", fmt.Errorf("%s/%s: %w", model, file, err)
	}

	return path, nil
}

func (h *HuggingFace) fileURL(model, file, revision string) string {
	endpoint := h.Endpoint
	if endpoint == "" {
		endpoint = defaultHuggingFaceEndpoint
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s", strings.TrimSuffix(endpoint, "/"), model, url.PathEscape(revision), file)
}

func (h *HuggingFace) fetchRevision(ctx context.Context, model, file, revision string) (string, error) {
	dest := filepath.Join(h.CacheDir, "revisions", filepath.FromSlash(model), url.PathEscape(revision), filepath.FromSlash(file))
	if _, err := download(ctx, h.Client, h.fileURL(model, file, revision), h.Token, dest); err != nil {
		return "", fmt.Errorf("%s/%s: %w", model, file, err)
	}

	return dest, nil
}

// isNotFound reports whether err is the hub refusing an unknown file. The
// hub client only exposes this through the response status in the message.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
