package convert

import "bytes"

// pythonLiterals are the non-finite numbers Python's json module writes by
// default and encoding/json rejects.
var pythonLiterals = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// replacePythonLiterals rewrites bare Infinity, -Infinity and NaN values to 0
// so the document can be decoded. Quoted strings are copied as is.
func replacePythonLiterals(in []byte) []byte {
	out := make([]byte, 0, len(in))

	var quoted, escaped bool
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case !quoted:
			if n := literalAt(in, i); n > 0 {
				out = append(out, '0')
				i += n - 1
				continue
			}
		}

		out = append(out, c)
	}

	return out
}

// literalAt returns the length of the Python literal starting at in[i], or 0
// if there is none. The literal must be a whole value.
func literalAt(in []byte, i int) int {
	if i > 0 && !bytes.ContainsRune([]byte(" \t\r\n:,["), rune(in[i-1])) {
		return 0
	}

	for _, lit := range pythonLiterals {
		end := i + len(lit)
		if !bytes.HasPrefix(in[i:], lit) {
			continue
		}

		if end < len(in) && !bytes.ContainsRune([]byte(" \t\r\n,]}"), rune(in[end])) {
			return 0
		}

		return len(lit)
	}

	return 0
}
