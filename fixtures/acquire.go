package fixtures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ollama/tokfixtures/convert"
	"github.com/ollama/tokfixtures/hub"
	"github.com/ollama/tokfixtures/logutil"
)

// Source records how tokenizer.json reached the model directory.
type Source string

const (
	SourceNone       Source = "none"
	SourceDownloaded Source = "downloaded"
	SourceConverted  Source = "converted"
)

// ConfigFiles are copied to the model directory when the hub has them.
var ConfigFiles = []string{
	"tokenizer_config.json",
	"chat_template.jinja",
}

// ErrNoFastTokenizer is returned when neither a published tokenizer.json
// nor a convertible set of legacy files is available.
var ErrNoFastTokenizer = errors.New("model does not support a fast tokenizer")

// maxErrorLen bounds conversion error messages in reports.
const maxErrorLen = 100

// Acquirer populates model directories from a hub.
type Acquirer struct {
	Fetcher  hub.Fetcher
	Revision string
}

// Acquire downloads the configuration and tokenizer.json of model into dir,
// falling back to converting the legacy tokenizer files when tokenizer.json
// is not published. If no tokenizer.json could be produced and dir is left
// empty, dir is removed.
func (a *Acquirer) Acquire(ctx context.Context, model, dir string) (source Source, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SourceNone, err
	}

	defer func() {
		if err != nil {
			removeIfEmpty(dir)
		}
	}()

	for _, name := range ConfigFiles {
		if err := a.fetchTo(ctx, model, name, filepath.Join(dir, name)); err != nil {
			slog.Debug("skipping config file", "model", model, "file", name, "error", err)
		}
	}

	target := filepath.Join(dir, "tokenizer.json")
	if err := a.fetchTo(ctx, model, "tokenizer.json", target); err == nil {
		slog.Debug("downloaded tokenizer.json", "model", model)
		return SourceDownloaded, nil
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SourceNone, err
	} else {
		slog.Debug("tokenizer.json unavailable", "model", model, "error", err)
	}

	slog.Info("converting fast tokenizer", "model", model)
	if err := a.convert(ctx, model, dir, target); err != nil {
		if errors.Is(err, convert.ErrNoFastTokenizer) {
			return SourceNone, ErrNoFastTokenizer
		}
		return SourceNone, fmt.Errorf("convert: %s", logutil.Truncate(err.Error(), maxErrorLen))
	}

	slog.Info("saved tokenizer.json", "model", model, "path", target)
	return SourceConverted, nil
}

func (a *Acquirer) fetchTo(ctx context.Context, model, file, dst string) error {
	path, err := a.Fetcher.Fetch(ctx, model, file, a.Revision)
	if err != nil {
		return err
	}

	return hub.CopyFile(path, dst)
}

// convert stages the legacy tokenizer files of model next to the copied
// configuration and builds tokenizer.json from them.
func (a *Acquirer) convert(ctx context.Context, model, dir, target string) error {
	staging, err := os.MkdirTemp("", "tokfixtures-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	for _, name := range ConfigFiles {
		if err := hub.CopyFile(filepath.Join(dir, name), filepath.Join(staging, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	for _, name := range convert.LegacyFiles {
		if err := a.fetchTo(ctx, model, name, filepath.Join(staging, name)); errors.Is(err, hub.ErrNotFound) {
			continue
		} else if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	f, err := convert.Convert(os.DirFS(staging))
	if err != nil {
		return err
	}

	return f.WriteFile(target)
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}

	if err := os.Remove(dir); err != nil {
		slog.Warn("could not remove empty directory", "dir", dir, "error", err)
	}
}
