package fixtures

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ollama/tokfixtures/hub"
	"github.com/ollama/tokfixtures/template"
)

// fakeTokenizer encodes every rune as its code point. Special encoding
// prepends the bos id 1. Id 0 is missing from the vocabulary.
type fakeTokenizer struct {
	template bool
	offset   uint32

	mu     sync.Mutex
	closed bool
}

func (f *fakeTokenizer) Encode(text string, addSpecial bool) ([]uint32, error) {
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("cannot encode")
	}

	var ids []uint32
	if addSpecial {
		ids = append(ids, 1)
	}

	for _, r := range text {
		ids = append(ids, uint32(r)+f.offset)
	}
	return ids, nil
}

func (f *fakeTokenizer) IDsToTokens(ids []uint32) ([]*string, error) {
	tokens := make([]*string, len(ids))
	for i, id := range ids {
		var s string
		switch id {
		case 0:
			continue
		case 1:
			s = "<s>"
		default:
			s = string(rune(id - f.offset))
		}
		tokens[i] = &s
	}
	return tokens, nil
}

func (f *fakeTokenizer) HasChatTemplate() bool {
	return f.template
}

func (f *fakeTokenizer) ApplyChatTemplate(messages []template.Message, addGenerationPrompt bool) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		if m.Content == "boom" {
			return "", &template.Error{Message: "unsupported message"}
		}
		fmt.Fprintf(&sb, "<%s>%s", m.Role, m.Content)
	}

	if addGenerationPrompt {
		sb.WriteString("<assistant>")
	}
	return sb.String(), nil
}

func (f *fakeTokenizer) ApplyChatTemplateIDs(messages []template.Message, addGenerationPrompt bool) ([]uint32, error) {
	s, err := f.ApplyChatTemplate(messages, addGenerationPrompt)
	if err != nil {
		return nil, err
	}
	return f.Encode(s, false)
}

func (f *fakeTokenizer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeFetcher serves files from memory. Files missing from both maps are
// reported as hub.ErrNotFound.
type fakeFetcher struct {
	dir   string
	files map[string]string
	errs  map[string]error

	requested []string
}

func newFakeFetcher(t *testing.T, files map[string]string) *fakeFetcher {
	t.Helper()
	return &fakeFetcher{dir: t.TempDir(), files: files, errs: map[string]error{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, model, file, revision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := model + "/" + file
	f.requested = append(f.requested, key)

	if err, ok := f.errs[key]; ok {
		return "", err
	}

	content, ok := f.files[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, hub.ErrNotFound)
	}

	path := filepath.Join(f.dir, model, revision, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}

	return path, nil
}

func (f *fakeFetcher) fetched(key string) bool {
	for _, r := range f.requested {
		if r == key {
			return true
		}
	}
	return false
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	bts, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(bts)
}
