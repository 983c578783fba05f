package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nikolalohinski/gonja/v2/builtins"
	controlStructures "github.com/nikolalohinski/gonja/v2/builtins/control_structures"
	"github.com/nikolalohinski/gonja/v2/config"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/nodes"
	"github.com/nikolalohinski/gonja/v2/parser"
	"github.com/nikolalohinski/gonja/v2/tokens"
)

var (
	errBreak    = errors.New("break outside of a loop")
	errContinue = errors.New("continue outside of a loop")
)

// trim_blocks and lstrip_blocks are applied by normalize
var jinjaConfig = config.New()

var jinjaEnvironment = &exec.Environment{
	Context: exec.EmptyContext().Update(builtins.GlobalFunctions).Update(builtins.GlobalVariables),
	Filters: exec.NewFilterSet(map[string]exec.FilterFunction{}).
		Update(builtins.Filters).
		Update(exec.NewFilterSet(map[string]exec.FilterFunction{
			"tojson":  filterToJSON,
			"reverse": filterReverse,
		})),
	Tests: exec.NewTestSet(map[string]exec.TestFunction{}).
		Update(builtins.Tests).
		Update(exec.NewTestSet(map[string]exec.TestFunction{
			"true":    func(_ *exec.Context, in *exec.Value, _ *exec.VarArgs) (bool, error) { return in.IsBool() && in.Bool(), nil },
			"false":   func(_ *exec.Context, in *exec.Value, _ *exec.VarArgs) (bool, error) { return in.IsBool() && !in.Bool(), nil },
			"boolean": func(_ *exec.Context, in *exec.Value, _ *exec.VarArgs) (bool, error) { return in.IsBool(), nil },
			"integer": func(_ *exec.Context, in *exec.Value, _ *exec.VarArgs) (bool, error) { return in.IsInteger(), nil },
			"float":   func(_ *exec.Context, in *exec.Value, _ *exec.VarArgs) (bool, error) { return in.IsFloat(), nil },
		})),
	ControlStructures: exec.NewControlStructureSet(map[string]parser.ControlStructureParser{}).
		Update(builtins.ControlStructures).
		Update(exec.NewControlStructureSet(map[string]parser.ControlStructureParser{
			"if":         parseIf,
			"for":        parseFor,
			"macro":      parseMacro,
			"break":      parseLoopControl(errBreak),
			"continue":   parseLoopControl(errContinue),
			"generation": parseGeneration,
		})),
	Methods: exec.Methods{
		Bool:  builtins.Methods.Bool,
		Int:   builtins.Methods.Int,
		Float: builtins.Methods.Float,
		Str:   strMethods(),
		Dict:  dictMethods(),
		List:  builtins.Methods.List,
	},
}

// inherit opens a new scope. gonja's own Inherit drops the method sets.
func inherit(r *exec.Renderer) *exec.Renderer {
	sub := r.Inherit()
	sub.Environment.Methods = r.Environment.Methods
	return sub
}

func position(t *tokens.Token) string {
	if t == nil {
		return "Line=0 Col=0"
	}
	return fmt.Sprintf("Line=%d Col=%d", t.Line, t.Col)
}

// ifBlock renders in the enclosing scope, so a set inside a branch is
// visible after endif.
type ifBlock struct {
	location   *tokens.Token
	conditions []nodes.Expression
	wrappers   []*nodes.Wrapper
}

func (b *ifBlock) Position() *tokens.Token { return b.location }
func (b *ifBlock) String() string          { return fmt.Sprintf("If(%s)", position(b.location)) }

func (b *ifBlock) Execute(r *exec.Renderer, _ *nodes.ControlStructureBlock) error {
	for i, condition := range b.conditions {
		v := r.Eval(condition)
		if v.IsError() {
			return v
		}

		if v.IsTrue() {
			return nodes.Walk(r, b.wrappers[i])
		}
	}

	if len(b.wrappers) > len(b.conditions) {
		return nodes.Walk(r, b.wrappers[len(b.conditions)])
	}

	return nil
}

func parseIf(p *parser.Parser, args *parser.Parser) (nodes.ControlStructure, error) {
	b := &ifBlock{location: args.Current()}

	condition, err := args.ParseExpression()
	if err != nil {
		return nil, err
	}
	b.conditions = append(b.conditions, condition)

	if !args.End() {
		return nil, args.Error("If-condition is malformed.", nil)
	}

	for {
		wrapper, tagArgs, err := p.WrapUntil("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		b.wrappers = append(b.wrappers, wrapper)

		switch wrapper.EndTag {
		case "elif":
			condition, err := tagArgs.ParseExpression()
			if err != nil {
				return nil, err
			}
			b.conditions = append(b.conditions, condition)

			if !tagArgs.End() {
				return nil, tagArgs.Error("Elif-condition is malformed.", nil)
			}
		case "else":
			if !tagArgs.End() {
				return nil, tagArgs.Error("Arguments not allowed here.", nil)
			}

			wrapper, tagArgs, err := p.WrapUntil("endif")
			if err != nil {
				return nil, err
			}
			b.wrappers = append(b.wrappers, wrapper)

			if !tagArgs.End() {
				return nil, tagArgs.Error("Arguments not allowed here.", nil)
			}
			return b, nil
		default:
			if !tagArgs.End() {
				return nil, tagArgs.Error("Arguments not allowed here.", nil)
			}
			return b, nil
		}
	}
}

type loopItem struct {
	key, value *exec.Value
}

func (it loopItem) Interface() any {
	if it.value != nil {
		return []any{it.key.Interface(), it.value.Interface()}
	}
	return it.key.Interface()
}

type forLoop struct {
	location  *tokens.Token
	key       string
	value     string
	iterable  nodes.Expression
	condition nodes.Expression
	body      *nodes.Wrapper
	empty     *nodes.Wrapper
}

func (f *forLoop) Position() *tokens.Token { return f.location }
func (f *forLoop) String() string          { return fmt.Sprintf("For(%s)", position(f.location)) }

func (f *forLoop) bind(r *exec.Renderer, it loopItem) {
	r.Environment.Context.Set(f.key, it.key)
	if f.value != "" {
		r.Environment.Context.Set(f.value, it.value)
	}
}

func (f *forLoop) unpack(key, value *exec.Value) (loopItem, error) {
	switch {
	case f.value == "":
		return loopItem{key: key}, nil
	case value != nil:
		return loopItem{key: key, value: value}, nil
	case key.IsList() && key.Len() == 2:
		return loopItem{key: key.Index(0), value: key.Index(1)}, nil
	default:
		return loopItem{}, fmt.Errorf("cannot unpack %s into %s, %s", key.String(), f.key, f.value)
	}
}

func (f *forLoop) Execute(r *exec.Renderer, _ *nodes.ControlStructureBlock) error {
	obj := r.Eval(f.iterable)
	if obj.IsError() {
		return obj
	}

	var items []loopItem
	var err error
	if !obj.IsNil() {
		obj.Iterate(func(_, _ int, key, value *exec.Value) bool {
			var it loopItem
			if it, err = f.unpack(key, value); err != nil {
				return false
			}

			if f.condition != nil {
				sub := inherit(r)
				f.bind(sub, it)
				v := sub.Eval(f.condition)
				if v.IsError() {
					err = v
					return false
				}
				if !v.IsTrue() {
					return true
				}
			}

			items = append(items, it)
			return true
		}, func() {})
	}
	if err != nil {
		return err
	}

	if len(items) == 0 {
		if f.empty != nil {
			return nodes.Walk(inherit(r), f.empty)
		}
		return nil
	}

	for i, it := range items {
		sub := inherit(r)
		f.bind(sub, it)
		sub.Environment.Context.Set("loop", loopContext(items, i))

		if err := nodes.Walk(sub, f.body); err != nil {
			switch {
			case errors.Is(err, errContinue):
				continue
			case errors.Is(err, errBreak):
				return nil
			}
			return err
		}
	}

	return nil
}

func loopContext(items []loopItem, i int) map[string]any {
	n := len(items)
	loop := map[string]any{
		"index":     i + 1,
		"index0":    i,
		"revindex":  n - i,
		"revindex0": n - i - 1,
		"first":     i == 0,
		"last":      i == n-1,
		"length":    n,
		"depth":     1,
		"depth0":    0,
		"previtem":  nil,
		"nextitem":  nil,
		"cycle": func(args *exec.VarArgs) *exec.Value {
			if len(args.Args) == 0 {
				return exec.AsValue(errors.New("no items for cycling given"))
			}
			return args.Args[i%len(args.Args)]
		},
	}

	if i > 0 {
		loop["previtem"] = items[i-1].Interface()
	}

	if i < n-1 {
		loop["nextitem"] = items[i+1].Interface()
	}

	return loop
}

func parseFor(p *parser.Parser, args *parser.Parser) (nodes.ControlStructure, error) {
	f := &forLoop{location: args.Current()}

	key := args.Match(tokens.Name)
	if key == nil {
		return nil, args.Error("Expected an key identifier as first argument for 'for'-tag", nil)
	}
	f.key = key.Val

	if args.Match(tokens.Comma) != nil {
		value := args.Match(tokens.Name)
		if value == nil {
			return nil, args.Error("Value name must be an identifier.", nil)
		}
		f.value = value.Val
	}

	if args.Match(tokens.In) == nil {
		return nil, args.Error("Expected keyword 'in'.", nil)
	}

	iterable, err := args.ParseExpression()
	if err != nil {
		return nil, err
	}
	f.iterable = iterable

	if args.MatchName("if") != nil {
		if f.condition, err = args.ParseExpression(); err != nil {
			return nil, err
		}
	}

	if !args.End() {
		return nil, args.Error("Malformed for-loop args.", nil)
	}

	wrapper, tagArgs, err := p.WrapUntil("else", "endfor")
	if err != nil {
		return nil, err
	}
	f.body = wrapper

	if !tagArgs.End() {
		return nil, tagArgs.Error("Arguments not allowed here.", nil)
	}

	if wrapper.EndTag == "else" {
		if f.empty, tagArgs, err = p.WrapUntil("endfor"); err != nil {
			return nil, err
		}

		if !tagArgs.End() {
			return nil, tagArgs.Error("Arguments not allowed here.", nil)
		}
	}

	return f, nil
}

type loopControl struct {
	location *tokens.Token
	err      error
}

func (c *loopControl) Position() *tokens.Token { return c.location }
func (c *loopControl) String() string          { return fmt.Sprintf("LoopControl(%s)", position(c.location)) }

func (c *loopControl) Execute(*exec.Renderer, *nodes.ControlStructureBlock) error {
	return c.err
}

func parseLoopControl(err error) parser.ControlStructureParser {
	return func(p *parser.Parser, args *parser.Parser) (nodes.ControlStructure, error) {
		if !args.End() {
			return nil, args.Error("Arguments not allowed here.", nil)
		}
		return &loopControl{location: p.Current(), err: err}, nil
	}
}

// generationBlock marks the assistant output for return_assistant_tokens_mask.
// Rendering is unaffected.
type generationBlock struct {
	location *tokens.Token
	body     *nodes.Wrapper
}

func (g *generationBlock) Position() *tokens.Token { return g.location }
func (g *generationBlock) String() string          { return fmt.Sprintf("Generation(%s)", position(g.location)) }

func (g *generationBlock) Execute(r *exec.Renderer, _ *nodes.ControlStructureBlock) error {
	return nodes.Walk(inherit(r), g.body)
}

func parseGeneration(p *parser.Parser, args *parser.Parser) (nodes.ControlStructure, error) {
	g := &generationBlock{location: p.Current()}
	if !args.End() {
		return nil, args.Error("Arguments not allowed here.", nil)
	}

	wrapper, tagArgs, err := p.WrapUntil("endgeneration")
	if err != nil {
		return nil, err
	}
	g.body = wrapper

	if !tagArgs.End() {
		return nil, tagArgs.Error("Arguments not allowed here.", nil)
	}

	return g, nil
}

type macroBlock struct {
	*nodes.Macro
}

func (m *macroBlock) String() string { return fmt.Sprintf("Macro(%s %s)", m.Name, position(m.Location)) }

func (m *macroBlock) Execute(r *exec.Renderer, _ *nodes.ControlStructureBlock) error {
	r.Environment.Context.Set(m.Name, m.call(r))
	return nil
}

func (m *macroBlock) call(r *exec.Renderer) func(*exec.VarArgs) *exec.Value {
	return func(params *exec.VarArgs) *exec.Value {
		if len(params.Args) > len(m.Kwargs) {
			return exec.AsValue(fmt.Errorf("macro '%s' takes %d arguments, got %d", m.Name, len(m.Kwargs), len(params.Args)))
		}

		var out strings.Builder
		sub := inherit(r)
		sub.Output = &out

		known := make(map[string]bool, len(m.Kwargs))
		for i, kw := range m.Kwargs {
			name := r.Eval(kw.Key).String()
			known[name] = true

			var v *exec.Value
			if i < len(params.Args) {
				v = params.Args[i]
			} else if arg, ok := params.KwArgs[name]; ok {
				v = arg
			} else if v = r.Eval(kw.Value); v.IsError() {
				return v
			}
			sub.Environment.Context.Set(name, v)
		}

		for name := range params.KwArgs {
			if !known[name] {
				return exec.AsValue(fmt.Errorf("macro '%s' takes no keyword argument '%s'", m.Name, name))
			}
		}

		if err := nodes.Walk(sub, m.Wrapper); err != nil {
			return exec.AsValue(fmt.Errorf("macro '%s': %w", m.Name, err))
		}

		return exec.AsSafeValue(out.String())
	}
}

func parseMacro(p *parser.Parser, args *parser.Parser) (nodes.ControlStructure, error) {
	parse, ok := builtins.ControlStructures.Get("macro")
	if !ok {
		return nil, errors.New("macro support is missing")
	}

	cs, err := parse(p, args)
	if err != nil {
		return nil, err
	}

	macro, ok := cs.(*controlStructures.MacroControlStructure)
	if !ok {
		return nil, fmt.Errorf("unexpected macro node %T", cs)
	}

	return &macroBlock{Macro: macro.Macro}, nil
}
