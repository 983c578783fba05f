// Package template renders Hugging Face chat templates.
package template

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/loaders"
)

// Message is a single chat turn. Optional fields are left out of both the
// JSON encoding and the template context when empty.
type Message struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
	Name             string     `json:"name,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name string `json:"name"`

	// Arguments is the JSON encoded argument object.
	Arguments string `json:"arguments"`
}

func (m Message) context() map[string]any {
	c := map[string]any{"role": m.Role, "content": m.Content}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			calls[i] = map[string]any{
				"id":   tc.ID,
				"type": tc.Type,
				"function": map[string]any{
					"name":      tc.Function.Name,
					"arguments": tc.Function.Arguments,
				},
			}
		}
		c["tool_calls"] = calls
	}

	if m.ToolCallID != "" {
		c["tool_call_id"] = m.ToolCallID
	}

	if m.Name != "" {
		c["name"] = m.Name
	}

	if m.ReasoningContent != "" {
		c["reasoning_content"] = m.ReasoningContent
	}

	return c
}

// Values are the variables visible to a chat template.
type Values struct {
	Messages            []Message
	AddGenerationPrompt bool

	// SpecialTokens maps a special token kind, e.g. "bos", to its content.
	// Each is exposed as "<kind>_token".
	SpecialTokens map[string]string

	// Now is the time reported by strftime_now. The zero value means the
	// current time.
	Now time.Time
}

// Error is raised by a template through raise_exception.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

type Template struct {
	tpl *exec.Template
	raw string
}

const templateName = "/chat_template.jinja"

// Parse compiles a chat template with the Jinja2 semantics transformers
// renders it with.
func Parse(s string) (*Template, error) {
	loader, err := loaders.NewMemoryLoader(map[string]string{templateName: normalize(s)})
	if err != nil {
		return nil, err
	}

	tpl, err := exec.NewTemplate(templateName, jinjaConfig, loader, jinjaEnvironment)
	if err != nil {
		return nil, err
	}

	return &Template{tpl: tpl, raw: s}, nil
}

func (t *Template) String() string {
	return t.raw
}

// Execute renders the template. Errors raised by the template are returned
// as *Error.
func (t *Template) Execute(w io.Writer, v Values) (err error) {
	defer func() {
		switch r := recover().(type) {
		case nil:
		case *Error:
			err = r
		default:
			// gonja panics on some invalid operations, e.g. slices out of range
			err = fmt.Errorf("template: %v", r)
		}
	}()

	return t.tpl.Execute(w, exec.NewContext(v.context()))
}

// Render renders the template to a string.
func (t *Template) Render(v Values) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (v Values) context() map[string]any {
	messages := make([]map[string]any, len(v.Messages))
	for i, m := range v.Messages {
		messages[i] = m.context()
	}

	now := v.Now
	ctx := map[string]any{
		"messages":              messages,
		"add_generation_prompt": v.AddGenerationPrompt,
		"raise_exception": func(msg string) string {
			panic(&Error{Message: msg})
		},
		"strftime_now": func(format string) string {
			if now.IsZero() {
				return Strftime(time.Now(), format)
			}
			return Strftime(now, format)
		},
	}

	for kind, content := range v.SpecialTokens {
		ctx[fmt.Sprintf("%s_token", kind)] = content
	}

	return ctx
}
