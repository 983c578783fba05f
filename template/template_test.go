package template

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestExecute(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}

	cases := []struct {
		name     string
		template string
		values   Values
		want     string
	}{
		{
			name:     "messages",
			template: "{% for message in messages %}<|{{ message['role'] }}|>{{ message['content'] }}{% endfor %}",
			values:   Values{Messages: messages},
			want:     "<|system|>be brief<|user|>hi",
		},
		{
			name:     "generation prompt",
			template: "{{ messages[-1]['content'] }}{% if add_generation_prompt %}<|assistant|>{% endif %}",
			values:   Values{Messages: messages, AddGenerationPrompt: true},
			want:     "hi<|assistant|>",
		},
		{
			name:     "no generation prompt",
			template: "{{ messages[-1]['content'] }}{% if add_generation_prompt %}<|assistant|>{% endif %}",
			values:   Values{Messages: messages},
			want:     "hi",
		},
		{
			name:     "special tokens",
			template: "{{ bos_token }}{{ messages[0]['content'] }}{{ eos_token }}",
			values: Values{
				Messages:      messages,
				SpecialTokens: map[string]string{"bos": "<s>", "eos": "</s>"},
			},
			want: "<s>be brief</s>",
		},
		{
			name:     "trim blocks",
			template: "{% for message in messages %}\n{{ message['role'] }}\n{% endfor %}",
			values:   Values{Messages: messages},
			want:     "system\nuser\n",
		},
		{
			name:     "strftime",
			template: "{{ strftime_now('%d %b %Y') }}",
			values:   Values{Now: time.Date(2024, time.July, 4, 0, 0, 0, 0, time.UTC)},
			want:     "04 Jul 2024",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.template)
			if err != nil {
				t.Fatal(err)
			}

			got, err := tmpl.Render(tt.values)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMessageContext(t *testing.T) {
	tmpl, err := Parse("{% for m in messages %}{{ m['role'] }}:{% if 'tool_calls' in m %}{{ m['tool_calls'][0]['function']['name'] }}({{ m['tool_calls'][0]['function']['arguments'] }}){% endif %}{% if 'tool_call_id' in m %}{{ m['tool_call_id'] }}={% endif %}{{ m['content'] }};{% endfor %}")
	if err != nil {
		t.Fatal(err)
	}

	got, err := tmpl.Render(Values{Messages: []Message{
		{Role: "user", Content: "weather?"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "call_1", Type: "function", Function: ToolCallFunction{Name: "get_weather", Arguments: `{"location": "Tokyo"}`}}}},
		{Role: "tool", ToolCallID: "call_1", Name: "get_weather", Content: "sunny"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	want := `user:weather?;assistant:get_weather({"location": "Tokyo"});tool:call_1=sunny;`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRaiseException(t *testing.T) {
	tmpl, err := Parse("{% if messages[0]['role'] != 'user' %}{{ raise_exception('first message must be from the user') }}{% endif %}ok")
	if err != nil {
		t.Fatal(err)
	}

	_, err = tmpl.Render(Values{Messages: []Message{{Role: "assistant", Content: "hello"}}})
	if err == nil {
		t.Fatal("expected error")
	}

	var e *Error
	if errors.As(err, &e) && e.Message != "first message must be from the user" {
		t.Errorf("unexpected message %q", e.Message)
	}

	got, err := tmpl.Render(Values{Messages: []Message{{Role: "user", Content: "hello"}}})
	if err != nil {
		t.Fatal(err)
	}

	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
}

func TestParseError(t *testing.T) {
	if _, err := Parse("{% for message in messages %}"); err == nil {
		t.Error("expected error for unterminated block")
	}
}

func TestStrftime(t *testing.T) {
	ts := time.Date(2025, time.January, 9, 15, 4, 5, 0, time.UTC)

	cases := map[string]string{
		"%Y-%m-%d":    "2025-01-09",
		"%d %B %Y":    "09 January 2025",
		"%a %b %e":    "Thu Jan  9",
		"%H:%M:%S %p": "15:04:05 PM",
		"%I %j":       "03 009",
		"%y%%":        "25%",
		"%Q":          "%Q",
		"100%":        "100%",
	}

	for format, want := range cases {
		t.Run(strings.ReplaceAll(format, "%", ""), func(t *testing.T) {
			if got := Strftime(ts, format); got != want {
				t.Errorf("Strftime(%q) = %q, want %q", format, got, want)
			}
		})
	}
}
