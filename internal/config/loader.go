package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	Interpreter string `json:"interpreter" yaml:"interpreter" toml:"interpreter"`
	// BackendsFile optionally overrides the built-in backend registry.
	BackendsFile string `json:"backends_file" yaml:"backends_file" toml:"backends_file"`
	// CorrectionModel is the local gguf used by the in-process correction
	// backend (llama builds only).
	CorrectionModel string `json:"correction_model" yaml:"correction_model" toml:"correction_model"`

	MaxWarmModels        int `json:"max_warm_models" yaml:"max_warm_models" toml:"max_warm_models"`
	TranscribeTimeoutSec int `json:"transcribe_timeout_sec" yaml:"transcribe_timeout_sec" toml:"transcribe_timeout_sec"`
	CorrectTimeoutSec    int `json:"correct_timeout_sec" yaml:"correct_timeout_sec" toml:"correct_timeout_sec"`
	ProbeTimeoutSec      int `json:"probe_timeout_sec" yaml:"probe_timeout_sec" toml:"probe_timeout_sec"`

	// Env entries are merged over the daemon environment for every spawned
	// interpreter process (e.g. SCRIBED_FFMPEG_PATH).
	Env map[string]string `json:"env" yaml:"env" toml:"env"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
