package convert

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func createTokenizerFS(t *testing.T, dir string, files map[string]io.Reader) fs.FS {
	t.Helper()

	for k, v := range files {
		if err := func() error {
			f, err := os.Create(filepath.Join(dir, k))
			if err != nil {
				return err
			}
			defer f.Close()

			if _, err := io.Copy(f, v); err != nil {
				return err
			}

			return nil
		}(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	return os.DirFS(dir)
}

func TestParseTokenizer(t *testing.T) {
	cases := []struct {
		name string
		fsys fs.FS
		want *Tokenizer
	}{
		{
			name: "empty",
			fsys: createTokenizerFS(t, t.TempDir(), map[string]io.Reader{}),
			want: &Tokenizer{
				Vocabulary:    &Vocabulary{},
				SpecialTokens: map[string]string{},
			},
		},
		{
			name: "string chat template",
			fsys: createTokenizerFS(t, t.TempDir(), map[string]io.Reader{
				"tokenizer.json": strings.NewReader(`{}`),
				"tokenizer_config.json": strings.NewReader(`{
					"chat_template": "<default template>"
				}`),
			}),
			want: &Tokenizer{
				Vocabulary:    &Vocabulary{},
				Template:      "<default template>",
				SpecialTokens: map[string]string{},
			},
		},
		{
			name: "list chat template",
			fsys: createTokenizerFS(t, t.TempDir(), map[string]io.Reader{
				"tokenizer_config.json": strings.NewReader(`{
					"chat_template": [
						{"name": "tool_use", "template": "<tool template>"},
						{"name": "default", "template": "<default template>"}
					]
				}`),
			}),
			want: &Tokenizer{
				Vocabulary:    &Vocabulary{},
				Template:      "<default template>",
				SpecialTokens: map[string]string{},
			},
		},
		{
			name: "python literals in config",
			fsys: createTokenizerFS(t, t.TempDir(), map[string]io.Reader{
				"tokenizer_config.json": strings.NewReader(`{
					"model_max_length": Infinity,
					"chat_template": "NaN",
					"tokenizer_class": "GPT2Tokenizer"
				}`),
			}),
			want: &Tokenizer{
				Vocabulary:    &Vocabulary{},
				Class:         "GPT2Tokenizer",
				Template:      "NaN",
				SpecialTokens: map[string]string{},
			},
		},
		{
			name: "chat template file",
			fsys: createTokenizerFS(t, t.TempDir(), map[string]io.Reader{
				"tokenizer_config.json": strings.NewReader(`{}`),
				"chat_template.jinja":   strings.NewReader(`{{ bos_token }}`),
			}),
			want: &Tokenizer{
				Vocabulary:    &Vocabulary{},
				Template:      "{{ bos_token }}",
				SpecialTokens: map[string]string{},
			},
		},
		{
			name: "vocabulary with added tokens",
			fsys: createTokenizerFS(t, t.TempDir(), map[string]io.Reader{
				"tokenizer.json": strings.NewReader(`{
					"added_tokens": [
						{"id": 3, "content": "<eos>", "special": true},
						{"id": 5, "content": "<tool>", "special": false}
					],
					"model": {
						"type": "BPE",
						"vocab": {"a": 0, "b": 1, "ab": 2}
					}
				}`),
			}),
			want: &Tokenizer{
				Vocabulary: &Vocabulary{
					Model:  "BPE",
					Tokens: []string{"a", "b", "ab", "<eos>", "", "<tool>"},
					Types: []int32{
						tokenTypeNormal, tokenTypeNormal, tokenTypeNormal,
						tokenTypeControl, tokenTypeUnused, tokenTypeUserDefined,
					},
				},
				SpecialTokens: map[string]string{},
				AddedTokens: []AddedToken{
					{ID: 3, Content: "<eos>", Special: true},
					{ID: 5, Content: "<tool>"},
				},
			},
		},
		{
			name: "unigram vocabulary",
			fsys: createTokenizerFS(t, t.TempDir(), map[string]io.Reader{
				"tokenizer.json": strings.NewReader(`{
					"model": {
						"type": "Unigram",
						"vocab": [["<unk>", 0], ["▁a", -1.5], ["b", -2.25]]
					}
				}`),
			}),
			want: &Tokenizer{
				Vocabulary: &Vocabulary{
					Model:  "Unigram",
					Tokens: []string{"<unk>", "▁a", "b"},
					Types:  []int32{tokenTypeNormal, tokenTypeNormal, tokenTypeNormal},
				},
				SpecialTokens: map[string]string{},
			},
		},
		{
			name: "special tokens and flags",
			fsys: createTokenizerFS(t, t.TempDir(), map[string]io.Reader{
				"tokenizer_config.json": strings.NewReader(`{
					"tokenizer_class": "LlamaTokenizer",
					"add_bos_token": true,
					"add_eos_token": false,
					"bos_token": "<s>",
					"eos_token": {"content": "</s>", "lstrip": false},
					"pad_token": null,
					"added_tokens_decoder": {
						"2": {"content": "</s>", "special": true},
						"1": {"content": "<s>", "special": true}
					}
				}`),
				"special_tokens_map.json": strings.NewReader(`{
					"bos_token": "<ignored>",
					"unk_token": {"content": "<unk>"}
				}`),
			}),
			want: &Tokenizer{
				Vocabulary: &Vocabulary{},
				Class:      "LlamaTokenizer",
				SpecialTokens: map[string]string{
					"bos": "<s>",
					"eos": "</s>",
					"unk": "<unk>",
				},
				AddedTokens: []AddedToken{
					{ID: 1, Content: "<s>", Special: true},
					{ID: 2, Content: "</s>", Special: true},
				},
				AddBOS: ptr(true),
				AddEOS: ptr(false),
			},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tokenizer, err := ParseTokenizer(tt.fsys)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.want, tokenizer); diff != "" {
				t.Errorf("unexpected tokenizer (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseTokenizerErrors(t *testing.T) {
	cases := map[string]map[string]io.Reader{
		"invalid tokenizer.json": {
			"tokenizer.json": strings.NewReader(`{`),
		},
		"invalid vocab": {
			"tokenizer.json": strings.NewReader(`{"model": {"vocab": "abc"}}`),
		},
		"invalid chat template": {
			"tokenizer_config.json": strings.NewReader(`{"chat_template": 1}`),
		},
	}

	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseTokenizer(createTokenizerFS(t, t.TempDir(), files)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestVocabularyToken(t *testing.T) {
	v := &Vocabulary{
		Tokens: []string{"a", "", "c"},
		Types:  []int32{tokenTypeNormal, tokenTypeUnused, tokenTypeControl},
	}

	if s, ok := v.Token(0); !ok || s != "a" {
		t.Errorf("Token(0) = %q, %v", s, ok)
	}

	if _, ok := v.Token(1); ok {
		t.Error("Token(1) should be unknown")
	}

	if s, ok := v.Token(2); !ok || s != "c" {
		t.Errorf("Token(2) = %q, %v", s, ok)
	}

	if _, ok := v.Token(3); ok {
		t.Error("Token(3) should be out of range")
	}

	if n := v.Size(); n != 2 {
		t.Errorf("Size() = %d, want 2", n)
	}
}
