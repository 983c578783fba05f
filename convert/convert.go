// Package convert reads Hugging Face tokenizer directories and rebuilds a
// fast tokenizer definition (tokenizer.json) from legacy tokenizer
// artifacts when a repository does not publish one.
package convert

import (
	"bufio"
	"cmp"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"unicode/utf8"
)

// ErrNoFastTokenizer is returned when none of the files in a directory
// describe a tokenizer with a fast representation.
var ErrNoFastTokenizer = errors.New("no fast tokenizer representation")

// LegacyFiles are the repository files Convert may read, besides the
// configuration files ParseTokenizer reads.
var LegacyFiles = []string{
	"tokenizer.model",
	"vocab.json",
	"merges.txt",
	"vocab.txt",
	"added_tokens.json",
	"special_tokens_map.json",
}

// qwen2Pattern is the pre-tokenizer split used by Qwen2 byte-level BPE
// tokenizers.
const qwen2Pattern = `(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`

// Convert builds a fast tokenizer definition from the files in fsys. The
// first supported format wins: sentencepiece tokenizer.model, byte-level BPE
// vocab.json with merges.txt, then WordPiece vocab.txt.
func Convert(fsys fs.FS) (*File, error) {
	t, err := ParseTokenizer(fsys)
	if err != nil {
		return nil, err
	}

	extra, err := parseAddedTokensFile(fsys)
	if err != nil {
		return nil, err
	}
	t.AddedTokens = mergeAddedTokens(t.AddedTokens, extra)

	patterns := []struct {
		Files []string
		Func  func(fs.FS, *Tokenizer) (*File, error)
	}{
		{[]string{"tokenizer.model"}, convertSentencePiece},
		{[]string{"vocab.json", "merges.txt"}, convertByteLevelBPE},
		{[]string{"vocab.txt"}, convertWordPiece},
	}

	for _, pattern := range patterns {
		if ok, err := exists(fsys, pattern.Files...); err != nil {
			return nil, err
		} else if !ok {
			continue
		}

		slog.Debug("converting tokenizer", "files", pattern.Files, "class", t.Class)
		return pattern.Func(fsys, t)
	}

	return nil, ErrNoFastTokenizer
}

func exists(fsys fs.FS, names ...string) (bool, error) {
	for _, name := range names {
		if _, err := fs.Stat(fsys, name); errors.Is(err, os.ErrNotExist) {
			return false, nil
		} else if err != nil {
			return false, err
		}
	}
	return true, nil
}

// parseAddedTokensFile reads added_tokens.json, a map of content to id, in
// the shape of added_tokens_decoder.
func parseAddedTokensFile(fsys fs.FS) (map[string]AddedToken, error) {
	bts, err := fs.ReadFile(fsys, "added_tokens.json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var atm map[string]int
	if err := json.Unmarshal(bts, &atm); err != nil {
		return nil, fmt.Errorf("added_tokens.json: %w", err)
	}

	m := make(map[string]AddedToken, len(atm))
	for content, id := range atm {
		m[fmt.Sprint(id)] = AddedToken{ID: id, Content: content}
	}
	return m, nil
}

// addedTokens collects the added tokens of the new definition: the pieces
// the source vocabulary already marks special, the tokens declared in the
// configuration, and configured special tokens found in vocab. Tokens named
// as special in the configuration are flagged special.
func addedTokens(t *Tokenizer, vocab map[string]int, fromVocab []AddedToken) []AddedToken {
	special := make(map[string]bool)
	for _, content := range t.SpecialTokens {
		special[content] = true
	}

	byID := make(map[int]AddedToken)
	for _, a := range fromVocab {
		byID[a.ID] = a
	}

	for _, a := range t.AddedTokens {
		if special[a.Content] {
			a.Special = true
		}
		byID[a.ID] = a
	}

	for _, content := range t.SpecialTokens {
		id, ok := vocab[content]
		if !ok {
			continue
		}

		if _, ok := byID[id]; !ok {
			byID[id] = AddedToken{ID: id, Content: content, Special: true}
		}
	}

	tokens := make([]AddedToken, 0, len(byID))
	for _, a := range byID {
		tokens = append(tokens, a)
	}

	slices.SortFunc(tokens, func(a, b AddedToken) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return tokens
}

// specialToken returns the added token for a configured special token kind.
func specialToken(tokens []AddedToken, t *Tokenizer, kind string) *AddedToken {
	content, ok := t.SpecialTokens[kind]
	if !ok {
		return nil
	}

	for _, a := range tokens {
		if a.Content == content {
			return &a
		}
	}
	return nil
}

func pick(b *bool, fallback bool) bool {
	if b != nil {
		return *b
	}
	return fallback
}

func convertSentencePiece(fsys fs.FS, t *Tokenizer) (*File, error) {
	spm, err := parseSentencePiece(fsys)
	if err != nil {
		return nil, err
	}

	// fill special tokens the configuration does not name from the model
	var fromVocab []AddedToken
	for i, p := range spm.Pieces {
		switch p.Type {
		case spmUnknown, spmControl:
			fromVocab = append(fromVocab, AddedToken{ID: i, Content: p.Piece, Special: true})
		case spmUserDefined:
			fromVocab = append(fromVocab, AddedToken{ID: i, Content: p.Piece})
		}
	}

	unk := spm.Pieces[spm.UnkID].Piece
	if _, ok := t.SpecialTokens["unk"]; !ok {
		t.SpecialTokens["unk"] = unk
	}

	vocab := make(map[string]int, len(spm.Pieces))
	for i, p := range spm.Pieces {
		if _, ok := vocab[p.Piece]; !ok {
			vocab[p.Piece] = i
		}
	}

	tokens := addedTokens(t, vocab, fromVocab)

	var f *File
	switch spm.ModelType {
	case spmBPE:
		f = newFile(bpeModel{
			Type:         "BPE",
			UnkToken:     ptr(unk),
			FuseUnk:      true,
			ByteFallback: spm.ByteFallback,
			Vocab:        vocab,
			Merges:       sentencePieceMerges(spm.Pieces, vocab),
		})

		var prepend object
		if spm.AddDummyPrefix {
			prepend = object{"type": "Prepend", "prepend": spmWhitespace}
		}
		f.Normalizer = normalizers(prepend, replaceString(" ", spmWhitespace))

		var strip object
		if spm.AddDummyPrefix {
			strip = object{"type": "Strip", "content": " ", "start": 1, "stop": 0}
		}

		var fallback object
		if spm.ByteFallback {
			fallback = object{"type": "ByteFallback"}
		}
		f.Decoder = decoders(replaceString(spmWhitespace, " "), fallback, object{"type": "Fuse"}, strip)

		f.PostProcessor = templateProcessing(
			conditional(pick(t.AddBOS, true), specialToken(tokens, t, "bos")),
			conditional(pick(t.AddEOS, false), specialToken(tokens, t, "eos")),
			true,
		)
	case spmUnigram:
		pieces := make([][]any, len(spm.Pieces))
		for i, p := range spm.Pieces {
			pieces[i] = []any{p.Piece, p.Score}
		}

		f = newFile(unigramModel{
			Type:         "Unigram",
			UnkID:        ptr(spm.UnkID),
			Vocab:        pieces,
			ByteFallback: spm.ByteFallback,
		})

		var precompiled, whitespace object
		if len(spm.PrecompiledCharsmap) > 0 {
			precompiled = object{"type": "Precompiled", "precompiled_charsmap": base64.StdEncoding.EncodeToString(spm.PrecompiledCharsmap)}
		}

		if spm.RemoveExtraWhitespaces {
			whitespace = replaceRegex(" {2,}", " ")
		}
		f.Normalizer = normalizers(precompiled, whitespace)

		scheme := "never"
		if spm.AddDummyPrefix {
			scheme = "always"
		}
		f.PreTokenizer = metaspace(scheme)
		f.Decoder = metaspace(scheme)

		f.PostProcessor = templateProcessing(
			conditional(pick(t.AddBOS, false), specialToken(tokens, t, "bos")),
			conditional(pick(t.AddEOS, true), specialToken(tokens, t, "eos")),
			false,
		)
	default:
		return nil, fmt.Errorf("sentencepiece model type %d: %w", spm.ModelType, ErrNoFastTokenizer)
	}

	f.AddedTokens = tokens
	return f, nil
}

func conditional(ok bool, t *AddedToken) *AddedToken {
	if !ok {
		return nil
	}
	return t
}

// sentencePieceMerges derives BPE merges from a sentencepiece vocabulary:
// every split of a piece into two known pieces is a merge, ordered by the
// score of the merged piece and then by the ids of its parts.
func sentencePieceMerges(pieces []sentencePiece, vocab map[string]int) []string {
	type merge struct {
		left, right string
		score       float32
		l, r        int
	}

	var merges []merge
	for _, p := range pieces {
		if p.Type != spmNormal && p.Type != spmUserDefined {
			continue
		}

		var local []merge
		for i := range p.Piece {
			if i == 0 {
				continue
			}

			left, right := p.Piece[:i], p.Piece[i:]
			l, lok := vocab[left]
			r, rok := vocab[right]
			if lok && rok {
				local = append(local, merge{left, right, p.Score, l, r})
			}
		}

		slices.SortFunc(local, func(a, b merge) int {
			return cmp.Or(cmp.Compare(a.l, b.l), cmp.Compare(a.r, b.r))
		})
		merges = append(merges, local...)
	}

	slices.SortStableFunc(merges, func(a, b merge) int {
		return cmp.Compare(b.score, a.score)
	})

	s := make([]string, len(merges))
	for i, m := range merges {
		s[i] = m.left + " " + m.right
	}
	return s
}

func convertByteLevelBPE(fsys fs.FS, t *Tokenizer) (*File, error) {
	bts, err := fs.ReadFile(fsys, "vocab.json")
	if err != nil {
		return nil, err
	}

	var vocab map[string]int
	if err := json.Unmarshal(bts, &vocab); err != nil {
		return nil, fmt.Errorf("vocab.json: %w", err)
	}

	merges, err := readMerges(fsys)
	if err != nil {
		return nil, err
	}

	f := newFile(bpeModel{
		Type:                    "BPE",
		ContinuingSubwordPrefix: ptr(""),
		EndOfWordSuffix:         ptr(""),
		Vocab:                   vocab,
		Merges:                  merges,
	})
	f.AddedTokens = addedTokens(t, vocab, nil)

	if strings.HasPrefix(t.Class, "Qwen2") {
		f.Normalizer = object{"type": "NFC"}
		f.PreTokenizer = preTokenizers(
			object{"type": "Split", "pattern": object{"Regex": qwen2Pattern}, "behavior": "Isolated", "invert": false},
			byteLevel(false, false, false),
		)
	} else {
		f.PreTokenizer = byteLevel(pick(t.PrefixSpaces, false), true, true)
	}

	f.Decoder = byteLevel(true, true, true)
	if bos := conditional(pick(t.AddBOS, false), specialToken(f.AddedTokens, t, "bos")); bos != nil {
		f.PostProcessor = templateProcessing(bos, nil, true)
	} else {
		f.PostProcessor = byteLevel(true, false, true)
	}

	return f, nil
}

func readMerges(fsys fs.FS) ([]string, error) {
	f, err := fsys.Open("merges.txt")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	merges := []string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}

		if strings.Count(line, " ") != 1 {
			return nil, fmt.Errorf("merges.txt: invalid merge %q", line)
		}

		merges = append(merges, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("merges.txt: %w", err)
	}

	return merges, nil
}

func convertWordPiece(fsys fs.FS, t *Tokenizer) (*File, error) {
	f, err := fsys.Open("vocab.txt")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int)
	scanner := bufio.NewScanner(f)
	for id := 0; scanner.Scan(); id++ {
		token := strings.TrimRight(scanner.Text(), "\r")
		if !utf8.ValidString(token) {
			return nil, fmt.Errorf("vocab.txt: invalid utf-8 at line %d", id+1)
		}

		if _, ok := vocab[token]; !ok {
			vocab[token] = id
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocab.txt: %w", err)
	}

	for kind, content := range map[string]string{
		"unk":  "[UNK]",
		"sep":  "[SEP]",
		"pad":  "[PAD]",
		"cls":  "[CLS]",
		"mask": "[MASK]",
	} {
		if _, ok := t.SpecialTokens[kind]; !ok {
			if _, ok := vocab[content]; ok {
				t.SpecialTokens[kind] = content
			}
		}
	}

	unk, ok := t.SpecialTokens["unk"]
	if !ok {
		return nil, fmt.Errorf("vocab.txt: no unknown token")
	}

	tf := newFile(wordPieceModel{
		Type:                    "WordPiece",
		UnkToken:                unk,
		ContinuingSubwordPrefix: "##",
		MaxInputCharsPerWord:    100,
		Vocab:                   vocab,
	})
	tf.AddedTokens = addedTokens(t, vocab, nil)

	tf.Normalizer = object{
		"type":                 "BertNormalizer",
		"clean_text":           true,
		"handle_chinese_chars": true,
		"strip_accents":        nil,
		"lowercase":            pick(t.LowerCase, true),
	}
	tf.PreTokenizer = object{"type": "BertPreTokenizer"}
	tf.Decoder = object{"type": "WordPiece", "prefix": "##", "cleanup": true}
	tf.PostProcessor = templateProcessing(specialToken(tf.AddedTokens, t, "cls"), specialToken(tf.AddedTokens, t, "sep"), false)

	return tf, nil
}
