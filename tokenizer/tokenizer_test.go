package tokenizer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/ollama/tokfixtures/envconfig"
	"github.com/ollama/tokfixtures/fixtures"
	"github.com/ollama/tokfixtures/template"
)

const wordPieceJSON = `{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id": 0, "content": "[UNK]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {"type": "BertPreTokenizer"},
  "post_processor": null,
  "decoder": null,
  "model": {
    "type": "WordPiece",
    "unk_token": "[UNK]",
    "continuing_subword_prefix": "##",
    "max_input_chars_per_word": 100,
    "vocab": {"[UNK]": 0, "hello": 1, "world": 2, "##s": 3, "!": 4}
  }
}`

func createTokenizerDir(t *testing.T, config string) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(wordPieceJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	if config != "" {
		if err := os.WriteFile(filepath.Join(dir, "tokenizer_config.json"), []byte(config), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}

func TestEncode(t *testing.T) {
	for _, backend := range []string{envconfig.BackendRust, envconfig.BackendGo} {
		t.Run(backend, func(t *testing.T) {
			tk, err := Load(createTokenizerDir(t, ""), Options{Backend: backend})
			if err != nil {
				t.Fatal(err)
			}
			defer tk.Close()

			ids, err := tk.Encode("hello worlds!", false)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff([]uint32{1, 2, 3, 4}, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}

			tokens, err := tk.IDsToTokens(ids)
			if err != nil {
				t.Fatal(err)
			}

			var got []string
			for _, s := range tokens {
				got = append(got, *s)
			}

			if diff := cmp.Diff([]string{"hello", "world", "##s", "!"}, got); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%s", diff)
			}

			ids, err = tk.Encode("", true)
			if err != nil {
				t.Fatal(err)
			}

			if ids == nil || len(ids) != 0 {
				t.Errorf("expected empty non-nil ids, got %#v", ids)
			}
		})
	}
}

func TestIDsToTokensUnknown(t *testing.T) {
	tk, err := Load(createTokenizerDir(t, ""), Options{Backend: envconfig.BackendGo})
	if err != nil {
		t.Fatal(err)
	}
	defer tk.Close()

	tokens, err := tk.IDsToTokens([]uint32{1, 99, 4})
	if err != nil {
		t.Fatal(err)
	}

	hello, bang := "hello", "!"
	if diff := cmp.Diff([]*string{&hello, nil, &bang}, tokens); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestChatTemplate(t *testing.T) {
	config := `{"chat_template": "{% for m in messages %}{{ m['content'] }} {% endfor %}{% if add_generation_prompt %}!{% endif %}"}`

	tk, err := Load(createTokenizerDir(t, config), Options{Backend: envconfig.BackendGo})
	if err != nil {
		t.Fatal(err)
	}
	defer tk.Close()

	if !tk.HasChatTemplate() {
		t.Fatal("expected chat template")
	}

	messages := []template.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "worlds"},
	}

	s, err := tk.ApplyChatTemplate(messages, true)
	if err != nil {
		t.Fatal(err)
	}

	if s != "hello worlds !" {
		t.Errorf("formatted = %q", s)
	}

	ids, err := tk.ApplyChatTemplateIDs(messages, false)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]uint32{1, 2, 3}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestNoChatTemplate(t *testing.T) {
	tk, err := Load(createTokenizerDir(t, `{}`), Options{Backend: envconfig.BackendGo})
	if err != nil {
		t.Fatal(err)
	}
	defer tk.Close()

	if tk.HasChatTemplate() {
		t.Error("unexpected chat template")
	}

	if _, err := tk.ApplyChatTemplate(nil, false); !errors.Is(err, ErrNoChatTemplate) {
		t.Errorf("err = %v, want ErrNoChatTemplate", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(createTokenizerDir(t, ""), Options{Backend: "python"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	if _, err := Load(t.TempDir(), Options{Backend: envconfig.BackendGo}); err == nil {
		t.Error("expected error for missing tokenizer.json")
	}

	tk, err := Load(createTokenizerDir(t, `{"chat_template": "{% if %}"}`), Options{Backend: envconfig.BackendGo})
	if err != nil {
		t.Fatalf("invalid chat template should not fail the load: %v", err)
	}
	defer tk.Close()

	if !tk.HasChatTemplate() {
		t.Error("expected chat template")
	}

	if _, err := tk.ApplyChatTemplate([]template.Message{{Role: "user", Content: "hello"}}, false); err == nil || errors.Is(err, ErrNoChatTemplate) {
		t.Errorf("err = %v, want parse error", err)
	}

	if _, err := tk.ApplyChatTemplateIDs(nil, true); err == nil {
		t.Error("expected parse error")
	}

	if ids, err := tk.Encode("hello", false); err != nil || len(ids) != 1 {
		t.Errorf("Encode = %v, %v", ids, err)
	}
}

func TestGenerateInvalidChatTemplate(t *testing.T) {
	tk, err := Load(createTokenizerDir(t, `{"chat_template": "{% for m in messages %}{% if %}{{ m.content }}{% endif %}{% endfor %}"}`), Options{Backend: envconfig.BackendGo})
	if err != nil {
		t.Fatal(err)
	}
	defer tk.Close()

	var b bytes.Buffer
	counts, err := fixtures.Generate(tk, &b, []string{"hello", "worlds!"}, fixtures.Chats[:3])
	if err != nil {
		t.Fatal(err)
	}

	if counts.Basic != 2 || counts.Chat != 0 || counts.ChatSkipped {
		t.Errorf("unexpected counts %+v", counts)
	}

	if n := len(multierr.Errors(counts.Failures)); n != 3 {
		t.Errorf("expected 3 chat failures, got %d: %v", n, counts.Failures)
	}

	if n := strings.Count(b.String(), `"type":"basic"`); n != 2 {
		t.Errorf("expected 2 basic records, got %d", n)
	}
}
