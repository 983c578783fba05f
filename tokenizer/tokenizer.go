// Package tokenizer loads a fast tokenizer from a local asset directory.
package tokenizer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ollama/tokfixtures/convert"
	"github.com/ollama/tokfixtures/envconfig"
	"github.com/ollama/tokfixtures/template"
)

var ErrNoChatTemplate = errors.New("tokenizer has no chat template")

// encoder is a fast tokenizer backend loaded from tokenizer.json.
type encoder interface {
	Encode(text string, addSpecial bool) ([]uint32, error)
	Close() error
}

type Options struct {
	// Backend is envconfig.BackendRust or envconfig.BackendGo. Empty selects
	// the rust backend.
	Backend string
}

// Tokenizer combines an encoding backend with the vocabulary, special tokens
// and chat template read from the same directory.
type Tokenizer struct {
	enc      encoder
	info     *convert.Tokenizer
	template *template.Template

	// templateErr is reported by every render when the chat template does
	// not parse.
	templateErr error
}

// Load reads tokenizer.json and tokenizer_config.json from dir.
func Load(dir string, opts Options) (*Tokenizer, error) {
	info, err := convert.ParseTokenizer(os.DirFS(dir))
	if err != nil {
		return nil, err
	}

	var tmpl *template.Template
	var tmplErr error
	if info.Template != "" {
		tmpl, err = template.Parse(info.Template)
		if err != nil {
			slog.Warn("chat template does not parse", "dir", dir, "error", err)
			tmplErr = fmt.Errorf("chat template: %w", err)
		}
	}

	path := filepath.Join(dir, "tokenizer.json")

	var enc encoder
	switch opts.Backend {
	case "", envconfig.BackendRust:
		enc, err = newRustEncoder(path)
	case envconfig.BackendGo:
		enc, err = newGoEncoder(path)
	default:
		return nil, fmt.Errorf("unknown tokenizer backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("loaded tokenizer", "dir", dir, "backend", opts.Backend, "vocab", info.Size(), "template", tmpl != nil)
	return &Tokenizer{enc: enc, info: info, template: tmpl, templateErr: tmplErr}, nil
}

// Encode tokenizes text, adding the post-processor's special tokens when
// addSpecial is set. The result is never nil.
func (t *Tokenizer) Encode(text string, addSpecial bool) ([]uint32, error) {
	ids, err := t.enc.Encode(text, addSpecial)
	if err != nil {
		return nil, err
	}

	if ids == nil {
		ids = []uint32{}
	}
	return ids, nil
}

// IDsToTokens maps ids to their token strings in the on-disk vocabulary.
// Ids the vocabulary does not define map to nil.
func (t *Tokenizer) IDsToTokens(ids []uint32) ([]*string, error) {
	tokens := make([]*string, len(ids))
	for i, id := range ids {
		if s, ok := t.info.Token(id); ok {
			tokens[i] = &s
		}
	}
	return tokens, nil
}

// HasChatTemplate reports whether the tokenizer publishes a chat template,
// whether or not it parses.
func (t *Tokenizer) HasChatTemplate() bool {
	return t.info.Template != ""
}

// ApplyChatTemplate renders messages with the tokenizer's chat template.
func (t *Tokenizer) ApplyChatTemplate(messages []template.Message, addGenerationPrompt bool) (string, error) {
	if t.templateErr != nil {
		return "", t.templateErr
	}

	if t.template == nil {
		return "", ErrNoChatTemplate
	}

	return t.template.Render(template.Values{
		Messages:            messages,
		AddGenerationPrompt: addGenerationPrompt,
		SpecialTokens:       t.info.SpecialTokens,
	})
}

// ApplyChatTemplateIDs renders messages and encodes the result without
// adding special tokens, as the template already places them.
func (t *Tokenizer) ApplyChatTemplateIDs(messages []template.Message, addGenerationPrompt bool) ([]uint32, error) {
	s, err := t.ApplyChatTemplate(messages, addGenerationPrompt)
	if err != nil {
		return nil, err
	}

	return t.Encode(s, false)
}

func (t *Tokenizer) Close() error {
	return t.enc.Close()
}
