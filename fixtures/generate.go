// Package fixtures acquires tokenizer assets for published models and
// generates tokenization regression records from them.
package fixtures

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/ollama/tokfixtures/template"
)

// Tokenizer is a tokenizer loaded from a local asset directory.
type Tokenizer interface {
	Encode(text string, addSpecial bool) ([]uint32, error)
	// IDsToTokens returns nil for ids missing from the vocabulary.
	IDsToTokens(ids []uint32) ([]*string, error)
	HasChatTemplate() bool
	ApplyChatTemplate(messages []template.Message, addGenerationPrompt bool) (string, error)
	ApplyChatTemplateIDs(messages []template.Message, addGenerationPrompt bool) ([]uint32, error)
	Close() error
}

// LoadFunc loads the tokenizer stored in dir.
type LoadFunc func(dir string) (Tokenizer, error)

// Counts are the records written by Generate.
type Counts struct {
	Basic int
	Chat  int

	// ChatSkipped is set when the tokenizer has no chat template.
	ChatSkipped bool

	// Failures holds one error per corpus entry that could not be recorded.
	Failures error
}

// Generate writes one record per corpus entry to w. Entries that fail are
// logged and collected in Counts.Failures; the returned error is reserved
// for write failures.
func Generate(tk Tokenizer, w io.Writer, texts []string, chats []Chat) (Counts, error) {
	var counts Counts
	rw := NewWriter(w)

	for _, text := range texts {
		rec, err := basicRecord(tk, text)
		if err != nil {
			slog.Warn("basic case failed", "input", text, "error", err)
			counts.Failures = multierr.Append(counts.Failures, fmt.Errorf("basic %q: %w", text, err))
			continue
		}

		if err := rw.Write(rec); err != nil {
			return counts, err
		}
		counts.Basic++
	}

	if !tk.HasChatTemplate() {
		slog.Warn("tokenizer has no chat template, skipping chat cases")
		counts.ChatSkipped = true
		return counts, rw.Flush()
	}

	for _, chat := range chats {
		rec, err := chatRecord(tk, chat)
		if err != nil {
			slog.Warn("chat case failed", "name", chat.Name, "error", err)
			counts.Failures = multierr.Append(counts.Failures, fmt.Errorf("chat %s: %w", chat.Name, err))
			continue
		}

		if err := rw.Write(rec); err != nil {
			return counts, err
		}
		counts.Chat++
	}

	return counts, rw.Flush()
}

func basicRecord(tk Tokenizer, text string) (*BasicRecord, error) {
	raw, err := tk.Encode(text, false)
	if err != nil {
		return nil, err
	}

	tokens, err := tk.IDsToTokens(raw)
	if err != nil {
		return nil, err
	}

	full, err := tk.Encode(text, true)
	if err != nil {
		return nil, err
	}

	return &BasicRecord{
		Type:      TypeBasic,
		Input:     text,
		IDsRaw:    nonNil(raw),
		TokensRaw: nonNil(tokens),
		IDsFull:   nonNil(full),
	}, nil
}

func chatRecord(tk Tokenizer, chat Chat) (*ChatRecord, error) {
	text, err := tk.ApplyChatTemplate(chat.Messages, chat.AddGenerationPrompt)
	if err != nil {
		return nil, err
	}

	ids, err := tk.ApplyChatTemplateIDs(chat.Messages, chat.AddGenerationPrompt)
	if err != nil {
		return nil, err
	}

	return &ChatRecord{
		Type:                TypeChat,
		Name:                chat.Name,
		Messages:            nonNil(chat.Messages),
		AddGenerationPrompt: chat.AddGenerationPrompt,
		FormattedText:       text,
		IDs:                 nonNil(ids),
	}, nil
}

func nonNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}

// GenerateFile writes the records for tk to the record file in dir,
// replacing any previous file once all records are written.
func GenerateFile(dir string, tk Tokenizer, texts []string, chats []Chat) (Counts, error) {
	path := filepath.Join(dir, CasesFile)
	slog.Info("generating test cases", "path", path)

	f, err := os.CreateTemp(dir, CasesFile+"-partial")
	if err != nil {
		return Counts{}, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	counts, err := Generate(tk, f, texts, chats)
	if err != nil {
		return counts, err
	}

	if err := f.Chmod(0o644); err != nil {
		return counts, err
	}

	if err := f.Close(); err != nil {
		return counts, err
	}

	return counts, os.Rename(f.Name(), path)
}
