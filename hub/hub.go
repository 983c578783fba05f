// Package hub fetches individual files from model hub repositories into a
// local download cache.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ollama/tokfixtures/envconfig"
)

// ErrNotFound is returned when the repository does not publish the file.
var ErrNotFound = errors.New("file not found")

// Fetcher resolves a repository file to a path in the local cache.
type Fetcher interface {
	Fetch(ctx context.Context, model, file, revision string) (string, error)
}

// FromEnvironment returns the Fetcher selected by TOKFIXTURES_HUB.
func FromEnvironment() (Fetcher, error) {
	switch envconfig.Hub {
	case envconfig.HubModelScope:
		return &ModelScope{
			Endpoint: envconfig.Endpoint,
			CacheDir: filepath.Join(envconfig.CacheDir, envconfig.HubModelScope),
			Token:    envconfig.ModelScopeToken,
		}, nil
	case envconfig.HubHuggingFace:
		return &HuggingFace{
			CacheDir: filepath.Join(envconfig.CacheDir, envconfig.HubHuggingFace),
			Token:    envconfig.HuggingFaceToken,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported hub %q", envconfig.Hub)
	}
}

// CopyFile copies a cached file to dst, replacing dst atomically.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+"-partial")
	if err != nil {
		return err
	}
	defer os.Remove(out.Name())
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}

	if err := out.Chmod(0o644); err != nil {
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(out.Name(), dst)
}
