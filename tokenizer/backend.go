package tokenizer

import (
	"fmt"
	"os"

	"github.com/daulet/tokenizers"
	gotk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// rustEncoder binds the Hugging Face tokenizers library through cgo.
type rustEncoder struct {
	tk *tokenizers.Tokenizer
}

func newRustEncoder(path string) (*rustEncoder, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return &rustEncoder{tk: tk}, nil
}

func (e *rustEncoder) Encode(text string, addSpecial bool) ([]uint32, error) {
	ids, _ := e.tk.Encode(text, addSpecial)
	return ids, nil
}

func (e *rustEncoder) Close() error {
	return e.tk.Close()
}

// goEncoder is a pure Go port of the tokenizers library.
type goEncoder struct {
	tk *gotk.Tokenizer
}

func newGoEncoder(path string) (*goEncoder, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return &goEncoder{tk: tk}, nil
}

func (e *goEncoder) Encode(text string, addSpecial bool) ([]uint32, error) {
	out, err := e.tk.EncodeSingle(text, addSpecial)
	if err != nil {
		return nil, err
	}

	ids := make([]uint32, len(out.Ids))
	for i, id := range out.Ids {
		ids[i] = uint32(id)
	}
	return ids, nil
}

func (e *goEncoder) Close() error {
	return nil
}
