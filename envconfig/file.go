package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// File is the optional config.toml. Environment variables take precedence
// over its values. Access tokens are read from the environment only.
type File struct {
	Debug   *bool  `toml:"debug"`
	Root    string `toml:"root"`
	Cache   string `toml:"cache"`
	Backend string `toml:"backend"`

	Hub struct {
		Name     string `toml:"name"`
		Revision string `toml:"revision"`
		Endpoint string `toml:"endpoint"`
	} `toml:"hub"`
}

// ConfigPaths returns the config.toml locations searched in order. When
// TOKFIXTURES_CONFIG is set, it is the only candidate.
func ConfigPaths() []string {
	if path := clean("TOKFIXTURES_CONFIG"); path != "" {
		return []string{path}
	}

	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "tokfixtures", "config.toml"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".tokfixtures", "config.toml"))
	}

	return paths
}

// readFile decodes the first config file found.
func readFile(paths []string) (*File, string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		var f File
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, "", fmt.Errorf("error parsing config file %s: %w", path, err)
		}
		return &f, path, nil
	}

	return nil, "", nil
}

func loadFile() *File {
	f, path, err := readFile(ConfigPaths())
	if err != nil {
		slog.Warn("failed to load config file", "error", err)
		return nil
	} else if f != nil {
		slog.Debug("loaded config file", "path", path)
	}
	return f
}

// lookup returns the file value for an environment variable key.
func (f *File) lookup(key string) string {
	if f == nil {
		return ""
	}

	switch key {
	case "TOKFIXTURES_DEBUG":
		if f.Debug != nil {
			return strconv.FormatBool(*f.Debug)
		}
	case "TOKFIXTURES_ROOT":
		return f.Root
	case "TOKFIXTURES_CACHE":
		return f.Cache
	case "TOKFIXTURES_BACKEND":
		return f.Backend
	case "TOKFIXTURES_HUB":
		return f.Hub.Name
	case "TOKFIXTURES_REVISION":
		return f.Hub.Revision
	case "TOKFIXTURES_ENDPOINT":
		return f.Hub.Endpoint
	}

	return ""
}

// ExampleFile is a commented config.toml listing every setting.
const ExampleFile = `# tokfixtures configuration
# Environment variables override every value in this file.

# Directory receiving one folder per model (default: "models")
root = "models"
# Download cache directory
# cache = "/path/to/cache"
# Tokenizer backend: "rust" or "go" (default: "rust")
backend = "rust"
# Enable debug logging (default: false)
debug = false

[hub]
# "modelscope" or "huggingface" (default: "modelscope")
name = "modelscope"
# Repository revision (default: "master" on modelscope, "main" on huggingface)
# revision = "master"
# Base URL of the modelscope hub
endpoint = "https://modelscope.cn"
`
