package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/tokfixtures/fixtures"
	"github.com/ollama/tokfixtures/template"
)

// byteTokenizer encodes every byte of the text as its own id.
type byteTokenizer struct{ shift uint32 }

func (b byteTokenizer) Encode(text string, addSpecial bool) ([]uint32, error) {
	ids := []uint32{}
	if addSpecial {
		ids = append(ids, 0)
	}
	for _, c := range []byte(text) {
		ids = append(ids, uint32(c)+b.shift)
	}
	return ids, nil
}

func (b byteTokenizer) IDsToTokens(ids []uint32) ([]*string, error) {
	tokens := make([]*string, len(ids))
	for i, id := range ids {
		s := string(rune(id))
		tokens[i] = &s
	}
	return tokens, nil
}

func (byteTokenizer) HasChatTemplate() bool { return false }

func (byteTokenizer) ApplyChatTemplate([]template.Message, bool) (string, error) {
	return "", errors.New("no chat template")
}

func (byteTokenizer) ApplyChatTemplateIDs([]template.Message, bool) ([]uint32, error) {
	return nil, errors.New("no chat template")
}

func (byteTokenizer) Close() error { return nil }

func withLoader(t *testing.T, tk fixtures.Tokenizer) {
	t.Helper()

	orig := loadTokenizer
	loadTokenizer = func(string) (fixtures.Tokenizer, error) { return tk, nil }
	t.Cleanup(func() { loadTokenizer = orig })
}

func writeFolder(t *testing.T, root, folder string) {
	t.Helper()

	dir := filepath.Join(root, folder)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := fixtures.GenerateFile(dir, byteTokenizer{}, []string{"hello", "world"}, nil)
	require.NoError(t, err)
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	cli := NewCLI()
	cli.SetArgs(args)
	cli.SetOut(&bytes.Buffer{})
	cli.SetErr(&bytes.Buffer{})
	return cli.ExecuteContext(context.Background())
}

func TestClosest(t *testing.T) {
	folders := []string{"Qwen3-4B", "Qwen2.5-7B-Instruct", "gpt2", "bert-base-uncased"}

	cases := map[string]string{
		"qwen3-4b":           "Qwen3-4B",
		"Qwen3-4":            "Qwen3-4B",
		"gpt-2":              "gpt2",
		"bert-base-cased":    "bert-base-uncased",
		"Qwen2.5-7B-Instruc": "Qwen2.5-7B-Instruct",
		"x":                  "",
		"":                   "",
		"completely-absent":  "",
	}

	for name, want := range cases {
		assert.Equal(t, want, closest(name, folders), name)
	}

	assert.Empty(t, closest("gpt2", nil))
}

func TestUnknownFolderError(t *testing.T) {
	err := unknownFolderError("gpt", []string{"gpt2", "Qwen3-4B"})
	assert.EqualError(t, err, `no test cases for "gpt", did you mean "gpt2"?`)

	err = unknownFolderError("gpt", nil)
	assert.EqualError(t, err, `no test cases for "gpt"`)
}

func TestVerifyCommand(t *testing.T) {
	root := t.TempDir()
	writeFolder(t, root, "gpt2")
	writeFolder(t, root, "Qwen3-4B")

	t.Run("reproduced", func(t *testing.T) {
		withLoader(t, byteTokenizer{})
		assert.NoError(t, execute(t, "verify", "--root", root))
		assert.NoError(t, execute(t, "verify", "--root", root, "gpt2"))
	})

	t.Run("drifted", func(t *testing.T) {
		withLoader(t, byteTokenizer{shift: 1})
		assert.EqualError(t, execute(t, "verify", "--root", root), "2 of 2 folders failed verification")
	})

	t.Run("unknown folder", func(t *testing.T) {
		withLoader(t, byteTokenizer{})
		assert.EqualError(t, execute(t, "verify", "--root", root, "qwen3-4"), `no test cases for "qwen3-4", did you mean "Qwen3-4B"?`)
	})

	t.Run("empty root", func(t *testing.T) {
		empty := t.TempDir()
		err := execute(t, "verify", "--root", empty)
		assert.ErrorContains(t, err, "no test_cases.jsonl found")
	})
}

func TestRenderReport(t *testing.T) {
	report := &fixtures.Report{Results: []fixtures.Result{
		{
			Model:  "Qwen/Qwen3-4B",
			Source: fixtures.SourceDownloaded,
			Counts: fixtures.Counts{Basic: 10, Chat: 3},
		},
		{
			Model:  "openai-community/gpt2",
			Source: fixtures.SourceConverted,
			Counts: fixtures.Counts{Basic: 10, ChatSkipped: true},
		},
		{
			Model:  "ZhipuAI/GLM-4.5V",
			Source: fixtures.SourceNone,
			Err:    fixtures.ErrNoFastTokenizer,
		},
	}}

	var b bytes.Buffer
	renderReport(&b, report)

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[0], "MODEL")
	assert.Contains(t, lines[0], "SOURCE")
	assert.Regexp(t, `^\s*Qwen/Qwen3-4B\s+Qwen3-4B\s+downloaded\s+10\s+3\s*$`, lines[1])
	assert.Regexp(t, `^\s*openai-community/gpt2\s+gpt2\s+converted\s+10\s+no template\s*$`, lines[2])
	assert.Regexp(t, `^\s*ZhipuAI/GLM-4\.5V\s+GLM-4\.5V\s+none\s+0\s+0\s+model does not support a fast tokenizer\s*$`, lines[3])
}

func TestList(t *testing.T) {
	root := t.TempDir()
	writeFolder(t, root, "Qwen3-4B")

	var b bytes.Buffer
	require.NoError(t, list(&b, root))

	out := b.String()
	assert.Regexp(t, `(?m)^\s*Qwen/Qwen3-4B\s+Qwen3-4B\s+yes\s*$`, out)
	assert.Contains(t, out, "TOKFIXTURES_BACKEND")
	assert.Contains(t, out, "models,")

	b.Reset()
	require.NoError(t, list(&b, filepath.Join(root, "missing")))
	assert.NotRegexp(t, `\byes\b`, b.String())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, ".env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOKFIXTURES_TEST_ONE=from-file\nTOKFIXTURES_TEST_TWO=from-file\n"), 0o644))

	t.Setenv("TOKFIXTURES_TEST_ONE", "")
	os.Unsetenv("TOKFIXTURES_TEST_ONE")
	t.Setenv("TOKFIXTURES_TEST_TWO", "from-env")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("TOKFIXTURES_TEST_ONE") })

	assert.Equal(t, "from-file", os.Getenv("TOKFIXTURES_TEST_ONE"))
	assert.Equal(t, "from-env", os.Getenv("TOKFIXTURES_TEST_TWO"))
}

func TestNewCLI(t *testing.T) {
	cli := NewCLI()

	var names []string
	for _, c := range cli.Commands() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"generate", "verify", "list", "config"}, names)

	assert.NotNil(t, cli.PersistentFlags().Lookup("root"))
	assert.Contains(t, cli.UsageTemplate(), "TOKFIXTURES_HUB")

	verify, _, err := cli.Find([]string{"verify"})
	require.NoError(t, err)
	assert.Contains(t, verify.UsageTemplate(), "Environment Variables:")
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("TOKFIXTURES_CONFIG", "/etc/tokfixtures.toml")

	var b bytes.Buffer
	cli := NewCLI()
	cli.SetArgs([]string{"config"})
	cli.SetOut(&b)
	require.NoError(t, cli.ExecuteContext(context.Background()))

	assert.True(t, strings.HasPrefix(b.String(), "# searched: /etc/tokfixtures.toml\n"))
	assert.Contains(t, b.String(), "[hub]")
}
