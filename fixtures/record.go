package fixtures

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/ollama/tokfixtures/template"
)

// CasesFile is the name of the record file written to each model directory.
const CasesFile = "test_cases.jsonl"

const (
	TypeBasic = "basic"
	TypeChat  = "chat"
)

// BasicRecord is the tokenization of a single text.
type BasicRecord struct {
	Type      string   `json:"type"`
	Input     string   `json:"input"`
	IDsRaw    []uint32 `json:"ids_raw"`
	TokensRaw []*string `json:"tokens_raw"`
	IDsFull   []uint32 `json:"ids_full"`
}

// ChatRecord is the rendering of a conversation through the chat template.
type ChatRecord struct {
	Type                string             `json:"type"`
	Name                string             `json:"name"`
	Messages            []template.Message `json:"messages"`
	AddGenerationPrompt bool               `json:"add_generation_prompt"`
	FormattedText       string             `json:"formatted_text"`
	IDs                 []uint32           `json:"ids"`
}

// Record is any line of a record file.
type Record struct {
	Type string `json:"type"`

	Input     string   `json:"input"`
	IDsRaw    []uint32 `json:"ids_raw"`
	TokensRaw []*string `json:"tokens_raw"`
	IDsFull   []uint32 `json:"ids_full"`

	Name                string             `json:"name"`
	Messages            []template.Message `json:"messages"`
	AddGenerationPrompt bool               `json:"add_generation_prompt"`
	FormattedText       string             `json:"formatted_text"`
	IDs                 []uint32           `json:"ids"`
}

// equalTokens compares token lists where nil marks an id missing from the
// vocabulary.
func equalTokens(a, b []*string) bool {
	return slices.EqualFunc(a, b, func(x, y *string) bool {
		if x == nil || y == nil {
			return x == nil && y == nil
		}
		return *x == *y
	})
}

func formatTokens(tokens []*string) string {
	parts := make([]string, len(tokens))
	for i, s := range tokens {
		if s == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = strconv.Quote(*s)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Writer writes one JSON object per line. Non-ASCII and HTML characters are
// written unescaped.
type Writer struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{bw: bw, enc: enc}
}

func (w *Writer) Write(v any) error {
	return w.enc.Encode(v)
}

func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// ReadRecords calls fn for every non-empty line of r. A line that is not a
// valid record is passed with a non-nil error.
func ReadRecords(r io.Reader, fn func(line int, rec Record, err error) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var n int
	for scanner.Scan() {
		n++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}

		var rec Record
		err := json.Unmarshal(b, &rec)
		if err := fn(n, rec, err); err != nil {
			return err
		}
	}

	return scanner.Err()
}
