package convert

import (
	"fmt"
	"io/fs"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// sentencepiece model_type values
const (
	spmUnigram int32 = 1
	spmBPE     int32 = 2
)

// sentencepiece piece types
const (
	spmNormal      int32 = 1
	spmUnknown     int32 = 2
	spmControl     int32 = 3
	spmUserDefined int32 = 4
	spmUnused      int32 = 5
	spmByte        int32 = 6
)

const spmWhitespace = "▁"

type sentencePiece struct {
	Piece string
	Score float32
	Type  int32
}

// sentencePieceModel holds the fields of a serialized sentencepiece
// ModelProto needed to rebuild it as a fast tokenizer.
type sentencePieceModel struct {
	Pieces []sentencePiece

	ModelType    int32
	ByteFallback bool
	UnkID        int

	AddDummyPrefix         bool
	RemoveExtraWhitespaces bool
	PrecompiledCharsmap    []byte
}

func parseSentencePiece(fsys fs.FS) (*sentencePieceModel, error) {
	bts, err := fs.ReadFile(fsys, "tokenizer.model")
	if err != nil {
		return nil, err
	}

	m := sentencePieceModel{
		ModelType:              spmUnigram,
		AddDummyPrefix:         true,
		RemoveExtraWhitespaces: true,
	}

	if err := consumeMessage(bts, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}

			p, err := parsePiece(v)
			if err != nil {
				return 0, err
			}

			m.Pieces = append(m.Pieces, p)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			return n, m.parseTrainerSpec(v)
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			return n, m.parseNormalizerSpec(v)
		}

		return protowire.ConsumeFieldValue(num, typ, b), nil
	}); err != nil {
		return nil, fmt.Errorf("tokenizer.model: %w", err)
	}

	if len(m.Pieces) == 0 {
		return nil, fmt.Errorf("tokenizer.model: no pieces")
	}

	if m.UnkID < 0 || m.UnkID >= len(m.Pieces) {
		return nil, fmt.Errorf("tokenizer.model: invalid unk id %d", m.UnkID)
	}

	return &m, nil
}

func parsePiece(b []byte) (sentencePiece, error) {
	p := sentencePiece{Type: spmNormal}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			p.Piece = string(v)
			return n, nil
		case num == 2 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			p.Score = math.Float32frombits(v)
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.Type = int32(v)
			return n, nil
		}

		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return p, err
}

func (m *sentencePieceModel) parseTrainerSpec(b []byte) error {
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		v, n := protowire.ConsumeVarint(b)
		switch num {
		case 3:
			m.ModelType = int32(v)
		case 35:
			m.ByteFallback = protowire.DecodeBool(v)
		case 40:
			m.UnkID = int(int32(v))
		}
		return n, nil
	})
}

func (m *sentencePieceModel) parseNormalizerSpec(b []byte) error {
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.PrecompiledCharsmap = append([]byte(nil), v...)
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.AddDummyPrefix = protowire.DecodeBool(v)
			return n, nil
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.RemoveExtraWhitespaces = protowire.DecodeBool(v)
			return n, nil
		}

		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// consumeMessage walks the fields of a protobuf message. fn returns the
// number of bytes it consumed from the field value, or a negative protowire
// error code.
func consumeMessage(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}

		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}

	return nil
}
