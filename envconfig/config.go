package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// Set via TOKFIXTURES_DEBUG in the environment
	Debug bool
	// Set via TOKFIXTURES_ROOT in the environment
	Root string
	// Set via TOKFIXTURES_HUB in the environment
	Hub string
	// Set via TOKFIXTURES_REVISION in the environment
	Revision string
	// Set via TOKFIXTURES_ENDPOINT in the environment
	Endpoint string
	// Set via TOKFIXTURES_CACHE in the environment
	CacheDir string
	// Set via TOKFIXTURES_BACKEND in the environment
	Backend string
	// Set via HF_TOKEN in the environment
	HuggingFaceToken string
	// Set via MODELSCOPE_API_TOKEN in the environment
	ModelScopeToken string
)

const (
	HubModelScope  = "modelscope"
	HubHuggingFace = "huggingface"

	BackendRust = "rust"
	BackendGo   = "go"
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"TOKFIXTURES_CONFIG":   {"TOKFIXTURES_CONFIG", clean("TOKFIXTURES_CONFIG"), "Path to config.toml (default searches the user config directory)"},
		"TOKFIXTURES_DEBUG":    {"TOKFIXTURES_DEBUG", Debug, "Show additional debug information (e.g. TOKFIXTURES_DEBUG=1)"},
		"TOKFIXTURES_ROOT":     {"TOKFIXTURES_ROOT", Root, "Directory receiving one folder per model (default \"./models\")"},
		"TOKFIXTURES_HUB":      {"TOKFIXTURES_HUB", Hub, "Model hub to fetch from: modelscope or huggingface (default \"modelscope\")"},
		"TOKFIXTURES_REVISION": {"TOKFIXTURES_REVISION", Revision, "Repository revision (default \"master\" on modelscope, \"main\" on huggingface)"},
		"TOKFIXTURES_ENDPOINT": {"TOKFIXTURES_ENDPOINT", Endpoint, "Base URL of the modelscope hub"},
		"TOKFIXTURES_CACHE":    {"TOKFIXTURES_CACHE", CacheDir, "Download cache directory"},
		"TOKFIXTURES_BACKEND":  {"TOKFIXTURES_BACKEND", Backend, "Tokenizer backend: rust or go (default \"rust\")"},
		"HF_TOKEN":             {"HF_TOKEN", redact(HuggingFaceToken), "Hugging Face access token"},
		"MODELSCOPE_API_TOKEN": {"MODELSCOPE_API_TOKEN", redact(ModelScopeToken), "ModelScope access token"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

// file holds the config.toml read by the last LoadConfig.
var file *File

// value is the environment value of key, falling back to config.toml.
func value(key string) string {
	if v := clean(key); v != "" {
		return v
	}
	return strings.Trim(file.lookup(key), " ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	file = loadFile()

	Debug = false
	if debug := value("TOKFIXTURES_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	Root = value("TOKFIXTURES_ROOT")
	if Root == "" {
		Root = "models"
	}

	Hub = strings.ToLower(value("TOKFIXTURES_HUB"))
	switch Hub {
	case "":
		Hub = HubModelScope
	case HubModelScope, HubHuggingFace:
	default:
		slog.Error("invalid setting, using default", "TOKFIXTURES_HUB", Hub, "default", HubModelScope)
		Hub = HubModelScope
	}

	Revision = value("TOKFIXTURES_REVISION")
	if Revision == "" {
		Revision = defaultRevision(Hub)
	}

	Endpoint = strings.TrimSuffix(value("TOKFIXTURES_ENDPOINT"), "/")
	if Endpoint == "" {
		Endpoint = "https://modelscope.cn"
	}

	CacheDir = value("TOKFIXTURES_CACHE")
	if CacheDir == "" {
		CacheDir = defaultCacheDir()
	}

	Backend = strings.ToLower(value("TOKFIXTURES_BACKEND"))
	switch Backend {
	case "":
		Backend = BackendRust
	case BackendRust, BackendGo:
	default:
		slog.Error("invalid setting, using default", "TOKFIXTURES_BACKEND", Backend, "default", BackendRust)
		Backend = BackendRust
	}

	HuggingFaceToken = clean("HF_TOKEN")
	ModelScopeToken = clean("MODELSCOPE_API_TOKEN")
}

func defaultRevision(hub string) string {
	if hub == HubHuggingFace {
		return "main"
	}
	return "master"
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "tokfixtures")
	}
	return filepath.Join(os.TempDir(), "tokfixtures")
}
