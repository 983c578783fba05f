package template

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nikolalohinski/gonja/v2/builtins"
	"github.com/nikolalohinski/gonja/v2/exec"
)

// builtin string methods that already behave like Python's
var pyStrMethods = []string{
	"capitalize", "casefold", "center", "find", "isalnum", "isalpha", "isascii",
	"isdecimal", "isdigit", "islower", "isnumeric", "isspace", "istitle", "isupper",
	"join", "ljust", "lower", "partition", "removeprefix", "removesuffix", "rfind",
	"rjust", "rpartition", "splitlines", "swapcase", "title", "upper", "zfill",
}

func strMethods() *exec.MethodSet[string] {
	methods := map[string]exec.Method[string]{
		"strip":      strip(strings.Trim, strings.TrimFunc),
		"lstrip":     strip(strings.TrimLeft, strings.TrimLeftFunc),
		"rstrip":     strip(strings.TrimRight, strings.TrimRightFunc),
		"split":      split(false),
		"rsplit":     split(true),
		"replace":    strReplace,
		"startswith": affix(strings.HasPrefix),
		"endswith":   affix(strings.HasSuffix),
		"count":      strCount,
	}

	for _, name := range pyStrMethods {
		if fn, ok := builtins.Methods.Str.Get(name); ok {
			methods[name] = fn
		}
	}

	return exec.NewMethodSet(methods)
}

// arg returns positional argument i or keyword argument name. A None
// argument is reported as absent.
func arg(args *exec.VarArgs, i int, name string) *exec.Value {
	if i < len(args.Args) {
		if v := args.Args[i]; !v.IsNil() {
			return v
		}
		return nil
	}

	if v, ok := args.KwArgs[name]; ok && !v.IsNil() {
		return v
	}

	return nil
}

func maxArgs(args *exec.VarArgs, n int) error {
	if len(args.Args)+len(args.KwArgs) > n {
		return exec.ErrInvalidCall(fmt.Errorf("takes at most %d arguments, got %d", n, len(args.Args)+len(args.KwArgs)))
	}
	return nil
}

func stringArg(args *exec.VarArgs, i int, name string) (string, bool, error) {
	v := arg(args, i, name)
	if v == nil {
		return "", false, nil
	}

	if !v.IsString() {
		return "", false, exec.ErrInvalidCall(fmt.Errorf("%s must be a string, not %s", name, v.String()))
	}

	return v.String(), true, nil
}

func strip(cut func(string, string) string, space func(string, func(rune) bool) string) exec.Method[string] {
	return func(self string, _ *exec.Value, args *exec.VarArgs) (any, error) {
		if err := maxArgs(args, 1); err != nil {
			return nil, err
		}

		chars, ok, err := stringArg(args, 0, "chars")
		if err != nil {
			return nil, err
		}

		if !ok {
			return space(self, unicode.IsSpace), nil
		}
		return cut(self, chars), nil
	}
}

func strReplace(self string, _ *exec.Value, args *exec.VarArgs) (any, error) {
	if err := maxArgs(args, 3); err != nil {
		return nil, err
	}

	old, ok, err := stringArg(args, 0, "old")
	if err != nil {
		return nil, err
	}

	repl, ok2, err := stringArg(args, 1, "new")
	if err != nil {
		return nil, err
	}

	if !ok || !ok2 {
		return nil, exec.ErrInvalidCall(errors.New("expected old and new arguments"))
	}

	count := -1
	if v := arg(args, 2, "count"); v != nil {
		count = v.Integer()
	}

	return strings.Replace(self, old, repl, count), nil
}

func strCount(self string, _ *exec.Value, args *exec.VarArgs) (any, error) {
	if err := maxArgs(args, 1); err != nil {
		return nil, err
	}

	sub, ok, err := stringArg(args, 0, "sub")
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, exec.ErrInvalidCall(errors.New("expected a substring"))
	}

	return strings.Count(self, sub), nil
}

// affix implements startswith and endswith, which take a string or a list of
// candidates.
func affix(match func(string, string) bool) exec.Method[string] {
	return func(self string, _ *exec.Value, args *exec.VarArgs) (any, error) {
		if err := maxArgs(args, 1); err != nil {
			return nil, err
		}

		v := arg(args, 0, "prefix")
		switch {
		case v == nil:
			return nil, exec.ErrInvalidCall(errors.New("expected a string or a list of strings"))
		case v.IsString():
			return match(self, v.String()), nil
		case v.IsList():
			found := false
			v.Iterate(func(_, _ int, item, _ *exec.Value) bool {
				found = item.IsString() && match(self, item.String())
				return !found
			}, func() {})
			return found, nil
		default:
			return nil, exec.ErrInvalidCall(fmt.Errorf("expected a string or a list of strings, not %s", v.String()))
		}
	}
}

func split(right bool) exec.Method[string] {
	return func(self string, _ *exec.Value, args *exec.VarArgs) (any, error) {
		if err := maxArgs(args, 2); err != nil {
			return nil, err
		}

		sep, ok, err := stringArg(args, 0, "sep")
		if err != nil {
			return nil, err
		}

		n := -1
		if v := arg(args, 1, "maxsplit"); v != nil {
			n = v.Integer()
		}

		var parts []string
		switch {
		case !ok:
			parts = splitSpace(self, n, right)
		case sep == "":
			return nil, exec.ErrInvalidCall(errors.New("empty separator"))
		case n < 0:
			parts = strings.Split(self, sep)
		case !right:
			parts = strings.SplitN(self, sep, n+1)
		default:
			parts = rsplitN(self, sep, n)
		}

		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}
}

func rsplitN(s, sep string, n int) []string {
	var parts []string
	for ; n > 0; n-- {
		i := strings.LastIndex(s, sep)
		if i < 0 {
			break
		}
		parts = append(parts, s[i+len(sep):])
		s = s[:i]
	}
	parts = append(parts, s)

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

// splitSpace splits on runs of whitespace, dropping empty fields, with at
// most n splits when n >= 0.
func splitSpace(s string, n int, right bool) []string {
	if n < 0 {
		return strings.Fields(s)
	}

	if right {
		fields := splitSpace(reverseString(s), n, false)
		for i, j := 0, len(fields)-1; i < j; i, j = i+1, j-1 {
			fields[i], fields[j] = fields[j], fields[i]
		}
		for i := range fields {
			fields[i] = reverseString(fields[i])
		}
		return fields
	}

	var parts []string
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return parts
		}

		if len(parts) == n {
			return append(parts, strings.TrimRightFunc(s, unicode.IsSpace))
		}

		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			return append(parts, s)
		}
		parts = append(parts, s[:i])
		s = s[i:]
	}
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// dictMethods follow the key order of the value: insertion order for dict
// literals and sorted keys for Go maps.
func dictMethods() *exec.MethodSet[map[string]any] {
	return exec.NewMethodSet(map[string]exec.Method[map[string]any]{
		"keys": func(_ map[string]any, self *exec.Value, args *exec.VarArgs) (any, error) {
			if err := maxArgs(args, 0); err != nil {
				return nil, err
			}

			out := []any{}
			for _, k := range self.Keys() {
				out = append(out, k.Interface())
			}
			return out, nil
		},
		"values": func(_ map[string]any, self *exec.Value, args *exec.VarArgs) (any, error) {
			if err := maxArgs(args, 0); err != nil {
				return nil, err
			}

			out := []any{}
			for _, k := range self.Keys() {
				v, _ := self.GetItem(k.String())
				out = append(out, v.Interface())
			}
			return out, nil
		},
		"items": func(_ map[string]any, self *exec.Value, args *exec.VarArgs) (any, error) {
			if err := maxArgs(args, 0); err != nil {
				return nil, err
			}

			out := []any{}
			for _, k := range self.Keys() {
				v, _ := self.GetItem(k.String())
				out = append(out, []any{k.Interface(), v.Interface()})
			}
			return out, nil
		},
		"get": func(_ map[string]any, self *exec.Value, args *exec.VarArgs) (any, error) {
			if err := maxArgs(args, 2); err != nil {
				return nil, err
			}

			key := arg(args, 0, "key")
			if key == nil {
				return nil, exec.ErrInvalidCall(errors.New("expected a key"))
			}

			if v, ok := self.GetItem(key.String()); ok {
				return v.Interface(), nil
			}

			if fallback := arg(args, 1, "default"); fallback != nil {
				return fallback.Interface(), nil
			}
			return nil, nil
		},
	})
}
