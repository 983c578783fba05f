package envconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// ignore any config.toml of the user running the tests
	os.Setenv("TOKFIXTURES_CONFIG", filepath.Join(os.TempDir(), "tokfixtures-missing", "config.toml"))
	os.Exit(m.Run())
}

func TestConfig(t *testing.T) {
	t.Setenv("TOKFIXTURES_DEBUG", "")
	LoadConfig()
	require.False(t, Debug)
	t.Setenv("TOKFIXTURES_DEBUG", "false")
	LoadConfig()
	require.False(t, Debug)
	t.Setenv("TOKFIXTURES_DEBUG", "1")
	LoadConfig()
	require.True(t, Debug)
	t.Setenv("TOKFIXTURES_DEBUG", "yes please")
	LoadConfig()
	require.True(t, Debug)
}

func TestHubDefaults(t *testing.T) {
	cases := map[string]struct {
		hub, revision         string
		wantHub, wantRevision string
	}{
		"empty":             {wantHub: HubModelScope, wantRevision: "master"},
		"modelscope":        {hub: "modelscope", wantHub: HubModelScope, wantRevision: "master"},
		"huggingface":       {hub: "HuggingFace", wantHub: HubHuggingFace, wantRevision: "main"},
		"explicit revision": {hub: "huggingface", revision: "refs/pr/1", wantHub: HubHuggingFace, wantRevision: "refs/pr/1"},
		"unknown hub":       {hub: "gitlab", wantHub: HubModelScope, wantRevision: "master"},
		"quoted":            {hub: "\"huggingface\"", wantHub: HubHuggingFace, wantRevision: "main"},
		"spaces and quotes": {hub: " ' modelscope ' ", wantHub: HubModelScope, wantRevision: "master"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("TOKFIXTURES_HUB", tt.hub)
			t.Setenv("TOKFIXTURES_REVISION", tt.revision)
			LoadConfig()
			assert.Equal(t, tt.wantHub, Hub)
			assert.Equal(t, tt.wantRevision, Revision)
		})
	}
}

func TestBackend(t *testing.T) {
	t.Setenv("TOKFIXTURES_BACKEND", "")
	LoadConfig()
	assert.Equal(t, BackendRust, Backend)

	t.Setenv("TOKFIXTURES_BACKEND", "Go")
	LoadConfig()
	assert.Equal(t, BackendGo, Backend)

	t.Setenv("TOKFIXTURES_BACKEND", "python")
	LoadConfig()
	assert.Equal(t, BackendRust, Backend)
}

func TestRootAndEndpoint(t *testing.T) {
	t.Setenv("TOKFIXTURES_ROOT", "")
	t.Setenv("TOKFIXTURES_ENDPOINT", "https://example.com/")
	LoadConfig()
	assert.Equal(t, "models", Root)
	assert.Equal(t, "https://example.com", Endpoint)
}

func TestTokensRedacted(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf_secret")
	t.Setenv("MODELSCOPE_API_TOKEN", "")
	LoadConfig()
	assert.Equal(t, "hf_secret", HuggingFaceToken)
	assert.Equal(t, "****", Values()["HF_TOKEN"])
	assert.Equal(t, "", Values()["MODELSCOPE_API_TOKEN"])
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
root = "fixtures"
backend = "go"
debug = true

[hub]
name = "huggingface"
endpoint = "https://mirror.example.com/"
`), 0o644))

	t.Setenv("TOKFIXTURES_CONFIG", path)
	t.Setenv("TOKFIXTURES_DEBUG", "")
	t.Setenv("TOKFIXTURES_ROOT", "")
	t.Setenv("TOKFIXTURES_HUB", "")
	t.Setenv("TOKFIXTURES_REVISION", "")
	t.Setenv("TOKFIXTURES_ENDPOINT", "")
	t.Setenv("TOKFIXTURES_BACKEND", "")
	LoadConfig()

	assert.True(t, Debug)
	assert.Equal(t, "fixtures", Root)
	assert.Equal(t, BackendGo, Backend)
	assert.Equal(t, HubHuggingFace, Hub)
	assert.Equal(t, "main", Revision)
	assert.Equal(t, "https://mirror.example.com", Endpoint)

	t.Run("environment takes precedence", func(t *testing.T) {
		t.Setenv("TOKFIXTURES_ROOT", "elsewhere")
		t.Setenv("TOKFIXTURES_DEBUG", "false")
		LoadConfig()
		assert.Equal(t, "elsewhere", Root)
		assert.False(t, Debug)
	})

	t.Run("invalid file is ignored", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("root = [unterminated"), 0o644))
		LoadConfig()
		assert.Equal(t, "models", Root)
		assert.Equal(t, HubModelScope, Hub)
	})
}

func TestConfigPaths(t *testing.T) {
	t.Setenv("TOKFIXTURES_CONFIG", "")
	for _, p := range ConfigPaths() {
		assert.Equal(t, "config.toml", filepath.Base(p))
	}

	t.Setenv("TOKFIXTURES_CONFIG", "/etc/tokfixtures.toml")
	assert.Equal(t, []string{"/etc/tokfixtures.toml"}, ConfigPaths())
}

func TestExampleFile(t *testing.T) {
	var f File
	_, err := toml.Decode(ExampleFile, &f)
	require.NoError(t, err)
	assert.Equal(t, "models", f.Root)
	assert.Equal(t, HubModelScope, f.Hub.Name)
	require.NotNil(t, f.Debug)
	assert.False(t, *f.Debug)
}
