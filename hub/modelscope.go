package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

// ModelScope downloads files through the ModelScope repository file API.
type ModelScope struct {
	Endpoint string
	CacheDir string
	Token    string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (m *ModelScope) fileURL(model, file, revision string) string {
	q := url.Values{}
	q.Set("Revision", revision)
	q.Set("FilePath", file)
	return fmt.Sprintf("%s/api/v1/models/%s/repo?%s", strings.TrimSuffix(m.Endpoint, "/"), model, q.Encode())
}

// Fetch downloads file from model at revision. The file is written to
// CacheDir/model/revision/file via a "-partial" file so an interrupted
// download never leaves a truncated file behind.
func (m *ModelScope) Fetch(ctx context.Context, model, file, revision string) (string, error) {
	dest := filepath.Join(m.CacheDir, filepath.FromSlash(model), filepath.FromSlash(revision), filepath.FromSlash(file))
	if _, err := download(ctx, m.Client, m.fileURL(model, file, revision), m.Token, dest); err != nil {
		return "", fmt.Errorf("%s/%s: %w", model, file, err)
	}

	return dest, nil
}
