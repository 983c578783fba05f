package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
)

const (
	_ int32 = iota
	tokenTypeNormal
	tokenTypeUnknown
	tokenTypeControl
	tokenTypeUserDefined
	tokenTypeUnused
	tokenTypeByte
)

// SpecialTokenTypes lists the special token kinds read from
// tokenizer_config.json and special_tokens_map.json.
var SpecialTokenTypes = []string{"bos", "eos", "unk", "pad", "sep", "cls", "mask"}

// Tokenizer is the subset of a Hugging Face tokenizer directory needed to
// interpret and reproduce its outputs.
type Tokenizer struct {
	*Vocabulary

	// Class is tokenizer_class from tokenizer_config.json.
	Class    string
	Template string

	// SpecialTokens maps a special token kind, e.g. "bos", to its content.
	SpecialTokens map[string]string
	AddedTokens   []AddedToken

	AddBOS       *bool
	AddEOS       *bool
	LowerCase    *bool
	PrefixSpaces *bool
}

// ParseTokenizer reads tokenizer.json, tokenizer_config.json,
// special_tokens_map.json and chat_template.jinja from fsys. Every file is
// optional.
func ParseTokenizer(fsys fs.FS) (*Tokenizer, error) {
	t := &Tokenizer{
		Vocabulary:    &Vocabulary{},
		SpecialTokens: make(map[string]string),
	}

	if f, err := fsys.Open("tokenizer.json"); errors.Is(err, os.ErrNotExist) {
	} else if err != nil {
		return nil, err
	} else {
		defer f.Close()

		var tt tokenizer
		if err := json.NewDecoder(f).Decode(&tt); err != nil {
			return nil, fmt.Errorf("tokenizer.json: %w", err)
		}

		v, err := tt.vocabulary()
		if err != nil {
			return nil, fmt.Errorf("tokenizer.json: %w", err)
		}

		t.Vocabulary = v
		t.AddedTokens = tt.AddedTokens
	}

	if bts, err := fs.ReadFile(fsys, "tokenizer_config.json"); errors.Is(err, os.ErrNotExist) {
		// noop
	} else if err != nil {
		return nil, err
	} else {
		var p map[string]json.RawMessage
		if err := json.Unmarshal(replacePythonLiterals(bts), &p); err != nil {
			return nil, fmt.Errorf("tokenizer_config.json: %w", err)
		}

		if template, ok := p["chat_template"]; ok {
			var s []struct {
				Name     string `json:"name"`
				Template string `json:"template"`
			}
			if err := json.Unmarshal(template, &t.Template); err == nil {
				// noop
			} else if err := json.Unmarshal(template, &s); err == nil {
				for _, e := range s {
					if e.Name == "default" {
						t.Template = e.Template
						break
					}
				}
			} else {
				return nil, fmt.Errorf("invalid chat_template: %w", err)
			}
		}

		if bts, ok := p["tokenizer_class"]; ok {
			_ = json.Unmarshal(bts, &t.Class)
		}

		for key, dst := range map[string]**bool{
			"add_bos_token":    &t.AddBOS,
			"add_eos_token":    &t.AddEOS,
			"do_lower_case":    &t.LowerCase,
			"add_prefix_space": &t.PrefixSpaces,
		} {
			if bts, ok := p[key]; ok {
				var b bool
				if err := json.Unmarshal(bts, &b); err == nil {
					*dst = &b
				}
			}
		}

		parseSpecialTokens(p, t.SpecialTokens)

		if bts, ok := p["added_tokens_decoder"]; ok {
			var decoder map[string]AddedToken
			if err := json.Unmarshal(bts, &decoder); err != nil {
				return nil, fmt.Errorf("invalid added_tokens_decoder: %w", err)
			}

			t.AddedTokens = mergeAddedTokens(t.AddedTokens, decoder)
		}
	}

	if f, err := fsys.Open("special_tokens_map.json"); errors.Is(err, os.ErrNotExist) {
	} else if err != nil {
		return nil, err
	} else {
		defer f.Close()

		var p map[string]json.RawMessage
		if err := json.NewDecoder(f).Decode(&p); err != nil {
			return nil, fmt.Errorf("special_tokens_map.json: %w", err)
		}

		// tokenizer_config.json takes precedence
		m := make(map[string]string)
		parseSpecialTokens(p, m)
		for k, v := range m {
			if _, ok := t.SpecialTokens[k]; !ok {
				t.SpecialTokens[k] = v
			}
		}
	}

	if t.Template == "" {
		if bts, err := fs.ReadFile(fsys, "chat_template.jinja"); err == nil {
			t.Template = string(bts)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return t, nil
}

// parseSpecialTokens reads "<kind>_token" entries given either as a string or
// as an added token object with a content field.
func parseSpecialTokens(p map[string]json.RawMessage, m map[string]string) {
	for _, st := range SpecialTokenTypes {
		bts, ok := p[fmt.Sprintf("%s_token", st)]
		if !ok {
			continue
		}

		var content string
		if err := json.Unmarshal(bts, &content); err != nil {
			var mm map[string]any
			if err := json.Unmarshal(bts, &mm); err != nil {
				continue
			}

			content, ok = mm["content"].(string)
			if !ok {
				continue
			}
		}

		if content != "" {
			m[st] = content
		}
	}
}

func mergeAddedTokens(tokens []AddedToken, decoder map[string]AddedToken) []AddedToken {
	seen := make(map[int]bool, len(tokens))
	for _, t := range tokens {
		seen[t.ID] = true
	}

	keys := slices.SortedFunc(maps.Keys(decoder), func(a, b string) int {
		i, _ := strconv.Atoi(a)
		j, _ := strconv.Atoi(b)
		return i - j
	})

	for _, k := range keys {
		id, err := strconv.Atoi(k)
		if err != nil {
			slog.Warn("ignoring added token with invalid id", "id", k)
			continue
		}

		if seen[id] {
			continue
		}

		t := decoder[k]
		t.ID = id
		tokens = append(tokens, t)
	}

	return tokens
}

type tokenizer struct {
	AddedTokens []AddedToken `json:"added_tokens"`
	Model       struct {
		Type  string          `json:"type"`
		Vocab json.RawMessage `json:"vocab"`
	} `json:"model"`
}

func (tt tokenizer) vocabulary() (*Vocabulary, error) {
	tokens := make(map[int]AddedToken)

	if len(tt.Model.Vocab) > 0 {
		var m map[string]int
		var pieces [][2]any
		if err := json.Unmarshal(tt.Model.Vocab, &m); err == nil {
			for k, v := range m {
				tokens[v] = AddedToken{ID: v, Content: k}
			}
		} else if err := json.Unmarshal(tt.Model.Vocab, &pieces); err == nil {
			// unigram vocabularies are [piece, score] pairs indexed by id
			for i, p := range pieces {
				s, ok := p[0].(string)
				if !ok {
					return nil, fmt.Errorf("invalid unigram piece at %d", i)
				}
				tokens[i] = AddedToken{ID: i, Content: s}
			}
		} else {
			return nil, fmt.Errorf("could not parse vocab. expected map or [piece, score] list: %w", err)
		}
	}

	for _, t := range tt.AddedTokens {
		t.UserDefined = !t.Special
		tokens[t.ID] = t
	}

	v := Vocabulary{Model: tt.Model.Type}
	if len(tokens) == 0 {
		return &v, nil
	}

	ids := slices.Sorted(maps.Keys(tokens))
	if ids[0] < 0 {
		return nil, fmt.Errorf("invalid token id: %d", ids[0])
	}

	v.Tokens = make([]string, ids[len(ids)-1]+1)
	v.Types = make([]int32, len(v.Tokens))
	for i := range v.Types {
		v.Types[i] = tokenTypeUnused
	}

	for _, id := range ids {
		token := tokens[id]
		v.Tokens[id] = token.Content

		switch {
		case token.Special:
			v.Types[id] = tokenTypeControl
		case token.UserDefined:
			v.Types[id] = tokenTypeUserDefined
		default:
			v.Types[id] = tokenTypeNormal
		}
	}

	return &v, nil
}

// AddedToken mirrors an entry of tokenizer.json "added_tokens".
type AddedToken struct {
	ID          int    `json:"id"`
	Content     string `json:"content"`
	SingleWord  bool   `json:"single_word"`
	Lstrip      bool   `json:"lstrip"`
	Rstrip      bool   `json:"rstrip"`
	Normalized  bool   `json:"normalized"`
	Special     bool   `json:"special"`
	UserDefined bool   `json:"-"`
}

// Vocabulary is indexed by token id. Ids missing from the source files keep
// an empty token of type unused.
type Vocabulary struct {
	Model  string
	Tokens []string
	Types  []int32
}

// Token returns the token string for id.
func (v *Vocabulary) Token(id uint32) (string, bool) {
	if v == nil || int(id) >= len(v.Tokens) || v.Types[id] == tokenTypeUnused {
		return "", false
	}

	return v.Tokens[id], true
}

// Size returns the number of known tokens.
func (v *Vocabulary) Size() int {
	var n int
	for _, t := range v.Types {
		if t != tokenTypeUnused {
			n++
		}
	}
	return n
}
