package fixtures

import "github.com/ollama/tokfixtures/template"

// Models are the repositories processed when no model is named on the
// command line.
var Models = []string{
	"Qwen/Qwen2.5-3B-Instruct",
	"Qwen/Qwen2.5-VL-3B-Instruct",
	"Qwen/Qwen2.5-Omni-3B",
	"Qwen/Qwen2.5-7B-Instruct-1M",
	"Qwen/Qwen2.5-Math-7B-Instruct",
	"Qwen/QwQ-32B",
	"Qwen/Qwen3-4B",
	"Qwen/Qwen3-4B-Instruct-2507",
	"Qwen/Qwen3-4B-Thinking-2507",
	"Qwen/Qwen3-VL-4B-Instruct",
	"Qwen/Qwen3-VL-4B-Thinking",
	"Qwen/Qwen3Guard-Gen-4B",
	"Qwen/Qwen3-Coder-30B-A3B-Instruct",
	"Qwen/Qwen3-Omni-30B-A3B-Instruct",
	"Qwen/Qwen3-Omni-30B-A3B-Thinking",
	"deepseek-ai/DeepSeek-R1-Distill-Qwen-7B",
	"deepseek-ai/DeepSeek-V3.2",
	"deepseek-ai/DeepSeek-R1",
	"ZhipuAI/GLM-4.5V",
	"ZhipuAI/GLM-4.6V",
	"HuggingFaceTB/SmolLM-135M-Instruct",
	"HuggingFaceTB/SmolVLM-256M-Instruct",
	"HuggingFaceTB/SmolLM2-135M-Instruct",
	"HuggingFaceTB/SmolLM3-3B",
	"google/gemma-3-4b-it",
	"google/gemma-3n-E4B-it",
	"mistralai/Ministral-3-3B-Instruct-2512",
	"LLM-Research/llama-2-7b",
	"LLM-Research/Meta-Llama-3-8B-Instruct",
	"LLM-Research/Llama-3.2-3B-Instruct",
	"LLM-Research/Phi-3.5-mini-instruct",
	"LLM-Research/Phi-3.5-vision-instruct",
	"LLM-Research/phi-4",
	"LLM-Research/Phi-4-mini-reasoning",
}

// Texts are encoded into basic records.
var Texts = []string{
	// basics and punctuation
	"Hello World",
	"Hello  World",
	" don't ",
	"The quick brown fox jumps over the lazy dog.",

	// multilingual
	"你好世界",
	"こんにちは世界",
	"안녕하세요",
	"I love 中国",
	"早C晚A",

	// code
	"def main():\n    print('hello world')",
	"#include <iostream>\nusing namespace std;",
	"const a = 10; // comment",
	"print(a_b_c)",

	// numbers and math
	"1234567890",
	"3.14159",
	"x^2 + y_2 = z",

	// emoji and symbols
	"😊 😂 🥺",
	"👨\u200d👩\u200d👧\u200d👦",
	"Hash#Tag $Price %Percent &And",

	// empty and whitespace
	"",
	"   ",
	"\n",
	"\t\n\r",
	"Hello\nWorld",

	// urls and email
	"https://github.com/google/gemini",
	"user.name@example.com",

	// rare characters, byte fallback
	"Ã",
	"é",
	"β",
	"①",
}

// Chat is a conversation rendered into a chat record.
type Chat struct {
	Name                string
	Messages            []template.Message
	AddGenerationPrompt bool
}

// Chats are rendered into chat records when the tokenizer has a chat
// template.
var Chats = []Chat{
	{
		Name:     "basic_user",
		Messages: []template.Message{
			{Role: "user", Content: "Hi"},
		},
	},
	{
		Name:     "system_user_assistant",
		Messages: []template.Message{
			{Role: "system", Content: "You are a helpful coding assistant specialized in Python."},
			{Role: "user", Content: "Who are you?"},
			{Role: "assistant", Content: "I am an AI assistant created to help you with Python programming."},
		},
	},
	{
		Name:     "consecutive_users",
		Messages: []template.Message{
			{Role: "user", Content: "Part 1: What is machine learning?"},
			{Role: "user", Content: "Part 2: Give me a simple example."},
		},
	},
	{
		Name:     "gen_prompt_true",
		Messages: []template.Message{
			{Role: "user", Content: "Hello, please help me."},
		},
		AddGenerationPrompt: true,
	},
	{
		Name:     "gen_prompt_false",
		Messages: []template.Message{
			{Role: "user", Content: "Hello, please help me."},
		},
	},
	{
		Name:     "multi_turn_code",
		Messages: []template.Message{
			{Role: "system", Content: "You are a senior software engineer."},
			{Role: "user", Content: "How do I reverse a string in Python?"},
			{Role: "assistant", Content: "You can use slicing: `s[::-1]` or `''.join(reversed(s))`"},
			{Role: "user", Content: "What about for a list?"},
			{Role: "assistant", Content: "For lists: `lst[::-1]`, `list(reversed(lst))`, or `lst.reverse()` (in-place)"},
			{Role: "user", Content: "Which one is fastest?"},
		},
		AddGenerationPrompt: true,
	},
	{
		Name:     "tool_call_weather",
		Messages: []template.Message{
			{Role: "user", Content: "What's the weather like in New York?"},
			{
				Role:      "assistant",
				Content:   "",
				ToolCalls: []template.ToolCall{
					{
						ID:       "call_abc123",
						Type:     "function",
						Function: template.ToolCallFunction{
							Name:      "get_weather",
							Arguments: "{\"location\": \"New York\", \"unit\": \"celsius\"}",
						},
					},
				},
			},
			{
				Role:       "tool",
				Content:    "{\"temperature\": 22, \"condition\": \"sunny\", \"humidity\": 45}",
				ToolCallID: "call_abc123",
				Name:       "get_weather",
			},
		},
		AddGenerationPrompt: true,
	},
	{
		Name:     "parallel_tool_calls",
		Messages: []template.Message{
			{Role: "user", Content: "Compare weather in Tokyo and London"},
			{
				Role:      "assistant",
				Content:   "",
				ToolCalls: []template.ToolCall{
					{
						ID:       "call_tokyo",
						Type:     "function",
						Function: template.ToolCallFunction{
							Name:      "get_weather",
							Arguments: "{\"location\": \"Tokyo\"}",
						},
					},
					{
						ID:       "call_london",
						Type:     "function",
						Function: template.ToolCallFunction{
							Name:      "get_weather",
							Arguments: "{\"location\": \"London\"}",
						},
					},
				},
			},
			{
				Role:       "tool",
				Content:    "{\"temp\": 28, \"condition\": \"humid\"}",
				ToolCallID: "call_tokyo",
				Name:       "get_weather",
			},
			{
				Role:       "tool",
				Content:    "{\"temp\": 15, \"condition\": \"rainy\"}",
				ToolCallID: "call_london",
				Name:       "get_weather",
			},
		},
		AddGenerationPrompt: true,
	},
	{
		Name:     "reasoning_content",
		Messages: []template.Message{
			{Role: "user", Content: "Solve: If a train travels 120km in 2 hours, what's the speed?"},
			{
				Role:             "assistant",
				Content:          "The speed is 60 km/h.",
				ReasoningContent: "Let me think step by step:\n1. Distance = 120 km\n2. Time = 2 hours\n3. Speed = Distance / Time = 120 / 2 = 60 km/h",
			},
		},
	},
	{
		Name:     "multilingual_complex",
		Messages: []template.Message{
			{Role: "system", Content: "你是一个多语言AI助手。You can speak multiple languages."},
			{Role: "user", Content: "Translate 'Hello World' to: 中文、日本語、한국어"},
			{Role: "assistant", Content: "Here are the translations:\n- 中文: 你好世界\n- 日本語: こんにちは世界\n- 한국어: 안녕하세요 세계"},
		},
	},
	{
		Name:     "escape_characters",
		Messages: []template.Message{
			{Role: "user", Content: "Explain these escape sequences: \\n \\t \\r \\\\ \\\""},
			{Role: "assistant", Content: "Here's what each means:\n- \\n = newline\n- \\t = tab\n- \\r = carriage return\n- \\\\ = backslash\n- \\\" = double quote"},
		},
	},
	{
		Name:     "code_with_special_chars",
		Messages: []template.Message{
			{Role: "user", Content: "Write a regex to match email addresses"},
			{Role: "assistant", Content: "```python\nimport re\npattern = r'^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\\.[a-zA-Z]{2,}$'\nemail = 'user@example.com'\nif re.match(pattern, email):\n    print('Valid!')\n```"},
		},
	},
	{
		Name:     "markdown_formatting",
		Messages: []template.Message{
			{Role: "user", Content: "Show me markdown formatting examples"},
			{Role: "assistant", Content: "# Heading 1\n## Heading 2\n\n**Bold** and *italic* text.\n\n- Bullet point 1\n- Bullet point 2\n\n```python\ndef hello():\n    return 'world'\n```\n\n| Col1 | Col2 |\n|------|------|\n| A    | B    |\n|------|------|\n| C    | D    |"},
		},
	},
	{
		Name:     "empty_assistant_content",
		Messages: []template.Message{
			{Role: "user", Content: "Say nothing"},
			{Role: "assistant", Content: ""},
		},
	},
	{
		Name:     "whitespace_only",
		Messages: []template.Message{
			{Role: "user", Content: "   \n\t   "},
		},
	},
	{
		Name:     "emoji_conversation",
		Messages: []template.Message{
			{Role: "user", Content: "Respond with emojis only: how are you?"},
			{Role: "assistant", Content: "😊👍✨🎉"},
		},
	},
	{
		Name:     "unicode_math_symbols",
		Messages: []template.Message{
			{Role: "user", Content: "Write the quadratic formula using Unicode"},
			{Role: "assistant", Content: "x = (-b ± √(b² - 4ac)) / 2a\n\nOr in fancy form:\n𝑥 = (−𝑏 ± √(𝑏² − 4𝑎𝑐)) / 2𝑎"},
		},
	},
	{
		Name:     "date_injection",
		Messages: []template.Message{
			{Role: "system", Content: "Current Date: 2025-12-17. You are a calendar assistant."},
			{Role: "user", Content: "What's today's date?"},
			{Role: "assistant", Content: "Today is December 17, 2025."},
		},
	},
	{
		Name:     "json_in_content",
		Messages: []template.Message{
			{Role: "user", Content: "Parse this JSON: {\"name\": \"John\", \"age\": 30, \"skills\": [\"python\", \"javascript\"]}"},
			{Role: "assistant", Content: "The JSON contains:\n- name: John\n- age: 30\n- skills: python, javascript"},
		},
	},
	{
		Name:     "long_system_prompt",
		Messages: []template.Message{
			{Role: "system", Content: "You are an expert AI assistant with the following capabilities:\n1. Code review and debugging\n2. Algorithm design and optimization\n3. System architecture consultation\n4. Technical documentation writing\n5. Best practices recommendation\n\nRules:\n- Always provide detailed explanations\n- Include code examples when relevant\n- Consider edge cases\n- Follow security best practices"},
			{Role: "user", Content: "Review my code"},
		},
		AddGenerationPrompt: true,
	},
}
