package convert

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
)

// File is a serialized fast tokenizer definition (tokenizer.json).
type File struct {
	Version       string       `json:"version"`
	Truncation    any          `json:"truncation"`
	Padding       any          `json:"padding"`
	AddedTokens   []AddedToken `json:"added_tokens"`
	Normalizer    object       `json:"normalizer"`
	PreTokenizer  object       `json:"pre_tokenizer"`
	PostProcessor object       `json:"post_processor"`
	Decoder       object       `json:"decoder"`
	Model         any          `json:"model"`
}

// object is a tagged tokenizer component. A nil object serializes as null.
type object map[string]any

func newFile(model any) *File {
	return &File{Version: "1.0", AddedTokens: []AddedToken{}, Model: model}
}

// Marshal encodes f without escaping HTML characters, as tokenizer.json
// files commonly hold tokens such as "<s>".
func (f *File) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// WriteFile writes f to path through a temporary file in the same directory.
func (f *File) WriteFile(path string) error {
	bts, err := f.Marshal()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-partial")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(bts); err != nil {
		return err
	}

	if err := tmp.Chmod(0o644); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

type bpeModel struct {
	Type                    string         `json:"type"`
	Dropout                 *float32       `json:"dropout"`
	UnkToken                *string        `json:"unk_token"`
	ContinuingSubwordPrefix *string        `json:"continuing_subword_prefix"`
	EndOfWordSuffix         *string        `json:"end_of_word_suffix"`
	FuseUnk                 bool           `json:"fuse_unk"`
	ByteFallback            bool           `json:"byte_fallback"`
	Vocab                   map[string]int `json:"vocab"`
	Merges                  []string       `json:"merges"`
}

type unigramModel struct {
	Type         string  `json:"type"`
	UnkID        *int    `json:"unk_id"`
	Vocab        [][]any `json:"vocab"`
	ByteFallback bool    `json:"byte_fallback"`
}

type wordPieceModel struct {
	Type                    string         `json:"type"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix string         `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
	Vocab                   map[string]int `json:"vocab"`
}

func sequence(key string, items ...object) object {
	var list []object
	for _, item := range items {
		if item != nil {
			list = append(list, item)
		}
	}

	switch len(list) {
	case 0:
		return nil
	case 1:
		return list[0]
	}

	return object{"type": "Sequence", key: list}
}

func normalizers(items ...object) object {
	return sequence("normalizers", items...)
}

func preTokenizers(items ...object) object {
	return sequence("pretokenizers", items...)
}

func decoders(items ...object) object {
	return sequence("decoders", items...)
}

func replaceString(pattern, content string) object {
	return object{"type": "Replace", "pattern": object{"String": pattern}, "content": content}
}

func replaceRegex(pattern, content string) object {
	return object{"type": "Replace", "pattern": object{"Regex": pattern}, "content": content}
}

func metaspace(prependScheme string) object {
	return object{"type": "Metaspace", "replacement": spmWhitespace, "prepend_scheme": prependScheme, "split": true}
}

func byteLevel(addPrefixSpace, trimOffsets, useRegex bool) object {
	return object{"type": "ByteLevel", "add_prefix_space": addPrefixSpace, "trim_offsets": trimOffsets, "use_regex": useRegex}
}

// templateProcessing adds bos and eos around single and pair sequences. The
// second sequence of a pair repeats bos only when pairBOS is set. It returns
// nil when there is nothing to add.
func templateProcessing(bos, eos *AddedToken, pairBOS bool) object {
	if bos == nil && eos == nil {
		return nil
	}

	special := object{}
	piece := func(t *AddedToken, typeID int) []object {
		if t == nil {
			return nil
		}
		special[t.Content] = object{"id": t.Content, "ids": []int{t.ID}, "tokens": []string{t.Content}}
		return []object{{"SpecialToken": object{"id": t.Content, "type_id": typeID}}}
	}

	seq := func(id string, typeID int) object {
		return object{"Sequence": object{"id": id, "type_id": typeID}}
	}

	var single, pair []object
	single = append(single, piece(bos, 0)...)
	single = append(single, seq("A", 0))
	single = append(single, piece(eos, 0)...)

	pair = append(pair, single...)
	if pairBOS {
		pair = append(pair, piece(bos, 1)...)
	}
	pair = append(pair, seq("B", 1))
	pair = append(pair, piece(eos, 1)...)

	return object{"type": "TemplateProcessing", "single": single, "pair": pair, "special_tokens": special}
}

func ptr[T any](v T) *T {
	return &v
}
