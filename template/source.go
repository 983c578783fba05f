package template

import (
	"regexp"
	"strconv"
	"strings"
)

var endRaw = regexp.MustCompile(`\{%[-+]?\s*endraw\s*[-+]?%\}`)

// normalize prepares a chat template for gonja. It applies the lexer options
// transformers renders with (trim_blocks, lstrip_blocks and no trailing
// newline) and rewrites the expressions gonja parses or evaluates differently
// from Jinja2.
func normalize(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.TrimSuffix(src, "\n")

	var n normalizer
	for i := 0; i < len(src); {
		j := nextTag(src, i)
		if j < 0 {
			n.data(src[i:])
			break
		}

		n.data(src[i:j])
		i = n.tag(src, j)
	}

	return string(n.out)
}

type normalizer struct {
	out []byte

	// lineStart is the offset in out where the current line begins, after
	// any newline removed by trim_blocks.
	lineStart int
}

func (n *normalizer) data(s string) {
	n.out = append(n.out, s...)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		n.lineStart = len(n.out) - len(s) + i + 1
	}
}

// lstrip drops the indentation in front of a block or comment tag that
// starts a line.
func (n *normalizer) lstrip() {
	for _, c := range n.out[n.lineStart:] {
		if c != ' ' && c != '\t' {
			return
		}
	}
	n.out = n.out[:n.lineStart]
}

// tag copies the tag starting at src[i] and returns the offset after it.
func (n *normalizer) tag(src string, i int) int {
	kind := src[i+1]
	closer := map[byte]string{'{': "}}", '%': "%}", '#': "#}"}[kind]

	var end int
	if kind == '#' {
		end = strings.Index(src[i+2:], closer)
		if end >= 0 {
			end += i + 2
		}
	} else {
		end = scanCode(src, i+2, closer)
	}

	if end < 0 {
		// unterminated tags are left for the parser to report
		n.data(src[i:])
		return len(src)
	}

	code := src[i+2 : end]
	after := end + len(closer)
	if kind != '{' && !strings.HasPrefix(code, "+") {
		n.lstrip()
	}

	switch kind {
	case '{':
		n.out = append(n.out, "{{"...)
		n.out = append(n.out, rewrite(code)...)
		n.out = append(n.out, "}}"...)
		return after
	case '#':
		n.out = append(n.out, src[i:after]...)
	case '%':
		if tagName(code) == "raw" {
			if loc := endRaw.FindStringIndex(src[after:]); loc != nil {
				n.out = append(n.out, src[i:after+loc[1]]...)
				code = src[after+loc[0]+2 : after+loc[1]-2]
				after += loc[1]
				break
			}
		}
		// gonja has no "+" modifiers, lstrip and trim are already applied
		n.out = append(n.out, "{%"...)
		n.out = append(n.out, rewrite(strings.TrimSuffix(strings.TrimPrefix(code, "+"), "+"))...)
		n.out = append(n.out, "%}"...)
	}

	if !strings.HasSuffix(code, "+") && after < len(src) && src[after] == '\n' {
		after++
		n.lineStart = len(n.out)
	}

	return after
}

func nextTag(src string, i int) int {
	for {
		j := strings.IndexByte(src[i:], '{')
		if j < 0 || i+j+1 >= len(src) {
			return -1
		}

		switch src[i+j+1] {
		case '{', '%', '#':
			return i + j
		}
		i += j + 1
	}
}

// scanCode returns the offset of closer in src, skipping string literals and
// braces opened inside the tag.
func scanCode(src string, i int, closer string) int {
	var quote byte
	depth := 0
	for ; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}

		if depth == 0 && strings.HasPrefix(src[i:], closer) {
			return i
		}

		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
		}
	}

	return -1
}

func tagName(code string) string {
	code = strings.TrimLeft(code, "-+ \t\n")
	if i := strings.IndexFunc(code, func(r rune) bool { return !isNameRune(byte(r)) }); i >= 0 {
		return code[:i]
	}
	return code
}

type tokenKind int

const (
	tokenSpace tokenKind = iota
	tokenName
	tokenNumber
	tokenString
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) is(s string) bool {
	return t.kind == tokenPunct && t.text == s
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true, "if": true, "else": true,
}

// atomEnd reports whether t can close an operand, making a following "[" a
// subscript rather than a list literal.
func (t token) atomEnd() bool {
	switch t.kind {
	case tokenName:
		return !keywords[t.text]
	case tokenNumber, tokenString:
		return true
	case tokenPunct:
		return t.text == ")" || t.text == "]" || t.text == "}"
	}
	return false
}

func isNameRune(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func lex(code string) []token {
	var toks []token
	for i := 0; i < len(code); {
		c := code[i]
		j := i + 1
		var kind tokenKind
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			for j < len(code) && strings.IndexByte(" \t\n\r", code[j]) >= 0 {
				j++
			}
			kind = tokenSpace
		case c >= '0' && c <= '9':
			for j < len(code) && code[j] >= '0' && code[j] <= '9' {
				j++
			}
			if j+1 < len(code) && code[j] == '.' && code[j+1] >= '0' && code[j+1] <= '9' {
				for j++; j < len(code) && code[j] >= '0' && code[j] <= '9'; j++ {
				}
			}
			kind = tokenNumber
		case isNameRune(c):
			for j < len(code) && isNameRune(code[j]) {
				j++
			}
			kind = tokenName
		case c == '\'' || c == '"':
			for j < len(code) && code[j] != c {
				if code[j] == '\\' {
					j++
				}
				j++
			}
			j = min(j+1, len(code))
			kind = tokenString
		default:
			kind = tokenPunct
		}

		text := code[i:j]
		switch kind {
		case tokenString:
			text = gonjaString(text)
		case tokenSpace:
			// gonja only treats spaces and tabs as separators
			text = strings.Map(func(r rune) rune {
				if r == '\n' || r == '\r' {
					return ' '
				}
				return r
			}, text)
		}
		toks = append(toks, token{kind: kind, text: text})
		i = j
	}

	return toks
}

// rewrite adjusts the code inside a tag:
//   - keywords directly followed by a non-space, as in "not(", get a space
//   - filtered operands are parenthesized, as gonja applies a filter to the
//     whole comparison before it
//   - x[::-1] becomes (x|reverse)
//   - x[-N] becomes (x|reverse)[N-1]
func rewrite(code string) string {
	toks := lex(code)

	for i := 0; i < len(toks)-1; i++ {
		if t := toks[i]; t.kind == tokenName && keywords[t.text] && toks[i+1].kind != tokenSpace {
			if i > 0 && toks[i-1].is(".") {
				continue
			}
			toks = append(toks[:i+1], append([]token{{kind: tokenSpace, text: " "}}, toks[i+1:]...)...)
		}
	}

	for i := 0; i < len(toks); i++ {
		if !toks[i].is("|") {
			continue
		}

		prev := prevToken(toks, i)
		if prev < 0 || !toks[prev].atomEnd() {
			continue
		}

		start, end := chainStart(toks, prev), filterEnd(toks, i)
		if start < 0 || end < 0 {
			continue
		}

		group := append([]token{{kind: tokenPunct, text: "("}}, toks[start:end+1]...)
		group = append(group, token{kind: tokenPunct, text: ")"})
		toks = append(toks[:start], append(group, toks[end+1:]...)...)
		i = start + len(group) - 1
	}

	for i := 1; i < len(toks); i++ {
		if !toks[i].is("[") || !toks[i-1].atomEnd() {
			continue
		}

		end := matching(toks, i)
		if end < 0 {
			break
		}

		index, ok := negativeIndex(toks[i+1 : end])
		if !ok {
			continue
		}

		start := chainStart(toks, i-1)
		if start < 0 {
			continue
		}

		repl := []token{{kind: tokenPunct, text: "("}}
		repl = append(repl, toks[start:i]...)
		repl = append(repl, token{kind: tokenPunct, text: "|"}, token{kind: tokenName, text: "reverse"}, token{kind: tokenPunct, text: ")"})
		if index > 0 {
			repl = append(repl,
				token{kind: tokenPunct, text: "["},
				token{kind: tokenNumber, text: strconv.Itoa(index - 1)},
				token{kind: tokenPunct, text: "]"},
			)
		}

		toks = append(toks[:start], append(repl, toks[end+1:]...)...)
		i = start + len(repl) - 1
	}

	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.text)
	}
	return sb.String()
}

// negativeIndex matches the subscripts "-N" and "::-1". The latter reports
// an index of 0.
func negativeIndex(toks []token) (int, bool) {
	var parts []string
	for _, t := range toks {
		if t.kind != tokenSpace {
			parts = append(parts, t.text)
		}
	}

	switch {
	case len(parts) == 4 && parts[0] == ":" && parts[1] == ":" && parts[2] == "-" && parts[3] == "1":
		return 0, true
	case len(parts) == 2 && parts[0] == "-":
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			return 0, false
		}
		return n, true
	}

	return 0, false
}

func prevToken(toks []token, i int) int {
	for i--; i >= 0 && toks[i].kind == tokenSpace; i-- {
	}
	return i
}

func nextToken(toks []token, i int) int {
	for i++; i < len(toks) && toks[i].kind == tokenSpace; i++ {
	}
	if i == len(toks) {
		return -1
	}
	return i
}

// filterEnd returns the index of the last token of the filter chain whose
// first "|" is toks[i].
func filterEnd(toks []token, i int) int {
	for {
		name := nextToken(toks, i)
		if name < 0 || toks[name].kind != tokenName {
			return -1
		}

		last := name
		if j := nextToken(toks, name); j >= 0 && toks[j].is("(") {
			if last = matching(toks, j); last < 0 {
				return -1
			}
		}

		if i = nextToken(toks, last); i < 0 || !toks[i].is("|") {
			return last
		}
	}
}

var pairs = map[string]string{")": "(", "]": "[", "}": "{"}

// matching returns the index of the bracket closing toks[i], or of the one
// opening it when toks[i] is a closer.
func matching(toks []token, i int) int {
	if open, ok := pairs[toks[i].text]; ok && toks[i].kind == tokenPunct {
		depth := 0
		for j := i; j >= 0; j-- {
			switch {
			case toks[j].is(toks[i].text):
				depth++
			case toks[j].is(open):
				depth--
				if depth == 0 {
					return j
				}
			}
		}
		return -1
	}

	closer := map[string]string{"(": ")", "[": "]", "{": "}"}[toks[i].text]
	depth := 0
	for j := i; j < len(toks); j++ {
		switch {
		case toks[j].is(toks[i].text):
			depth++
		case toks[j].is(closer):
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// chainStart walks back from toks[i], the last token of an operand, over
// attribute access, calls and subscripts to the token that starts it.
func chainStart(toks []token, i int) int {
	for {
		t := toks[i]
		switch {
		case t.is(")") || t.is("]") || t.is("}"):
			j := matching(toks, i)
			if j < 0 {
				return -1
			}
			if j > 0 && toks[j-1].atomEnd() {
				i = j - 1
				continue
			}
			return j
		case t.atomEnd():
			if i >= 2 && toks[i-1].is(".") && toks[i-2].atomEnd() {
				i -= 2
				continue
			}
			return i
		default:
			return -1
		}
	}
}

// gonjaString re-encodes a Jinja2 string literal for gonja, which only
// unescapes quotes. Escape sequences are decoded to the characters they
// stand for. Backslashes gonja would read as escaping a quote are emitted
// through the format filter.
func gonjaString(lit string) string {
	q := lit[0]
	if len(lit) < 2 || lit[len(lit)-1] != q {
		return lit
	}

	s := unescape(lit[1 : len(lit)-1])

	var parts []string
	var sb strings.Builder
	sb.WriteByte(q)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == q:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\\' && (i+1 == len(s) || s[i+1] == '\'' || s[i+1] == '"'):
			sb.WriteByte(q)
			parts = append(parts, sb.String(), `("%c"|format(92))`)
			sb.Reset()
			sb.WriteByte(q)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(q)

	if len(parts) == 0 {
		return sb.String()
	}
	return "(" + strings.Join(append(parts, sb.String()), " ~ ") + ")"
}

// unescape decodes the backslash escapes of a Python string literal.
// Unknown escapes are kept as written.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}

		i++
		switch c := s[i]; c {
		case '\n':
		case '\\', '\'', '"':
			sb.WriteByte(c)
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'v':
			sb.WriteByte('\v')
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
			if i+1+width > len(s) {
				sb.WriteByte('\\')
				sb.WriteByte(c)
				continue
			}
			r, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil {
				sb.WriteByte('\\')
				sb.WriteByte(c)
				continue
			}
			sb.WriteRune(rune(r))
			i += width
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i + 1
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			r, _ := strconv.ParseUint(s[i:j], 8, 32)
			sb.WriteRune(rune(r))
			i = j - 1
		default:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
