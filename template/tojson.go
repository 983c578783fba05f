package template

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/nikolalohinski/gonja/v2/exec"
)

// jsonEncoder writes values the way Python's json.dumps does, which is what
// the tojson filter of transformers calls.
type jsonEncoder struct {
	sb         strings.Builder
	indent     string
	ascii      bool
	sortKeys   bool
	itemSep    string
	keySep     string
	hasIndent  bool
	currIndent int
}

func newJSONEncoder(params *exec.VarArgs) (*jsonEncoder, error) {
	e := &jsonEncoder{itemSep: ", ", keySep: ": "}

	if v := arg(params, 0, "indent"); v != nil {
		switch {
		case v.IsInteger():
			e.indent = strings.Repeat(" ", max(v.Integer(), 0))
		case v.IsString():
			e.indent = v.String()
		default:
			return nil, fmt.Errorf("indent must be an integer or a string, not %s", v.String())
		}
		e.hasIndent = true
		e.itemSep = ","
	}

	if v := params.KwArgs["ensure_ascii"]; v != nil {
		e.ascii = v.IsTrue()
	}

	if v := params.KwArgs["sort_keys"]; v != nil {
		e.sortKeys = v.IsTrue()
	}

	if v := params.KwArgs["separators"]; v != nil && !v.IsNil() {
		if !v.IsList() || v.Len() != 2 {
			return nil, fmt.Errorf("separators must be a pair of strings, not %s", v.String())
		}
		e.itemSep, e.keySep = v.Index(0).String(), v.Index(1).String()
	}

	return e, nil
}

func (e *jsonEncoder) newline() {
	if e.hasIndent {
		e.sb.WriteByte('\n')
		e.sb.WriteString(strings.Repeat(e.indent, e.currIndent))
	}
}

type jsonPair struct {
	key   string
	value *exec.Value
}

func (e *jsonEncoder) encode(v *exec.Value) error {
	switch {
	case v.IsNil():
		e.sb.WriteString("null")
	case v.IsBool():
		e.sb.WriteString(strconv.FormatBool(v.Bool()))
	case v.IsInteger():
		e.sb.WriteString(strconv.Itoa(v.Integer()))
	case v.IsFloat():
		e.sb.WriteString(formatFloat(v.Float()))
	case v.IsString():
		e.sb.WriteString(quote(v.String(), e.ascii))
	case v.IsList():
		var items []*exec.Value
		v.Iterate(func(_, _ int, item, _ *exec.Value) bool {
			items = append(items, item)
			return true
		}, func() {})
		return e.encodeList(items)
	case v.IsDict():
		return e.encodeDict(jsonPairs(v, e.sortKeys))
	default:
		return fmt.Errorf("object of type %T is not JSON serializable", v.Interface())
	}

	return nil
}

func (e *jsonEncoder) encodeList(items []*exec.Value) error {
	if len(items) == 0 {
		e.sb.WriteString("[]")
		return nil
	}

	e.sb.WriteByte('[')
	e.currIndent++
	for i, item := range items {
		if i > 0 {
			e.sb.WriteString(e.itemSep)
		}
		e.newline()
		if err := e.encode(item); err != nil {
			return err
		}
	}
	e.currIndent--
	e.newline()
	e.sb.WriteByte(']')
	return nil
}

func (e *jsonEncoder) encodeDict(pairs []jsonPair) error {
	if len(pairs) == 0 {
		e.sb.WriteString("{}")
		return nil
	}

	e.sb.WriteByte('{')
	e.currIndent++
	for i, p := range pairs {
		if i > 0 {
			e.sb.WriteString(e.itemSep)
		}
		e.newline()
		e.sb.WriteString(quote(p.key, e.ascii))
		e.sb.WriteString(e.keySep)
		if err := e.encode(p.value); err != nil {
			return err
		}
	}
	e.currIndent--
	e.newline()
	e.sb.WriteByte('}')
	return nil
}

// jsonPairs lists the entries of a dict literal in insertion order. Go maps
// have no order, so their entries are sorted by key.
func jsonPairs(v *exec.Value, sortKeys bool) []jsonPair {
	var pairs []jsonPair
	var dict *exec.Dict
	switch d := v.Interface().(type) {
	case *exec.Dict:
		dict = d
	case exec.Dict:
		dict = &d
	}

	if dict != nil {
		for _, p := range dict.Pairs {
			pairs = append(pairs, jsonPair{key: jsonKey(p.Key), value: p.Value})
		}
	} else {
		for _, p := range v.Items() {
			pairs = append(pairs, jsonPair{key: jsonKey(p.Key), value: exec.ToValue(p.Value.Val)})
		}
		sortKeys = true
	}

	if sortKeys {
		slices.SortStableFunc(pairs, func(a, b jsonPair) int {
			return strings.Compare(a.key, b.key)
		})
	}

	return pairs
}

func jsonKey(k *exec.Value) string {
	switch {
	case k.IsNil():
		return "null"
	case k.IsBool():
		return strconv.FormatBool(k.Bool())
	case k.IsFloat():
		return formatFloat(k.Float())
	}
	return k.String()
}

// formatFloat matches Python's float repr.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	exp := strconv.FormatFloat(f, 'e', -1, 64)
	n, err := strconv.Atoi(exp[strings.IndexByte(exp, 'e')+1:])
	if err != nil || n < -4 || n >= 16 {
		return exp
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func quote(s string, ascii bool) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			switch {
			case r < 0x20, ascii && r >= 0x7f && r <= 0xffff:
				fmt.Fprintf(&sb, `\u%04x`, r)
			case ascii && r > 0xffff:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(&sb, `\u%04x\u%04x`, r1, r2)
			default:
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func filterToJSON(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}

	e, err := newJSONEncoder(params)
	if err != nil {
		return exec.AsValue(fmt.Errorf("tojson: %w", err))
	}

	if err := e.encode(in); err != nil {
		return exec.AsValue(fmt.Errorf("tojson: %w", err))
	}

	return exec.AsSafeValue(e.sb.String())
}

// filterReverse reverses a string or a list. gonja's own reverse sorts.
func filterReverse(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	switch {
	case in.IsError():
		return in
	case len(params.Args)+len(params.KwArgs) > 0:
		return exec.AsValue(errors.New("reverse takes no arguments"))
	case in.IsString():
		return exec.AsValue(reverseString(in.String()))
	case in.IsList():
		var out []any
		in.Iterate(func(_, _ int, item, _ *exec.Value) bool {
			out = append(out, item.Interface())
			return true
		}, func() {})
		slices.Reverse(out)
		return exec.AsValue(out)
	default:
		return exec.AsValue(fmt.Errorf("cannot reverse %s", in.String()))
	}
}
