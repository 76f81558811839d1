// Package registry resolves the set of available backends: the built-in
// defaults, optionally overridden by a YAML file.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"scribed/internal/common/fsutil"
	"scribed/pkg/types"
)

// Builtin returns the default backend set. The correction backend runs in
// process when the llama runtime is built, out of process otherwise;
// inProcessCorrection selects between the two.
func Builtin(correctionModelPath string, inProcessCorrection bool) []types.Backend {
	backends := []types.Backend{
		{
			ID:        "parakeet-base",
			Name:      "Parakeet TDT 0.6B",
			Kind:      types.KindTranscribe,
			Mode:      types.ModeSubprocess,
			Module:    "parakeet_mlx",
			Script:    "transcribe.py",
			ModelRepo: "mlx-community/parakeet-tdt-0.6b-v2",
		},
		{
			ID:        "parakeet-large",
			Name:      "Parakeet TDT 1.1B",
			Kind:      types.KindTranscribe,
			Mode:      types.ModeSubprocess,
			Module:    "parakeet_mlx",
			Script:    "transcribe.py",
			ModelRepo: "mlx-community/parakeet-tdt-1.1b",
		},
	}
	if inProcessCorrection && correctionModelPath != "" {
		backends = append(backends, types.Backend{
			ID:        "local-correct",
			Name:      "Local correction model",
			Kind:      types.KindCorrect,
			Mode:      types.ModeInProcess,
			ModelPath: correctionModelPath,
		})
	} else {
		backends = append(backends, types.Backend{
			ID:        "mlx-correct",
			Name:      "MLX correction model",
			Kind:      types.KindCorrect,
			Mode:      types.ModeSubprocess,
			Module:    "mlx_lm",
			Script:    "correct.py",
			ModelRepo: "mlx-community/Llama-3.2-3B-Instruct-4bit",
		})
	}
	return backends
}

// fileSchema is the on-disk registry format.
type fileSchema struct {
	Backends []types.Backend `yaml:"backends"`
}

// LoadFile reads a backend registry from a YAML file and validates it.
func LoadFile(path string) ([]types.Backend, error) {
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read backends file: %w", err)
	}
	var f fileSchema
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse backends file: %w", err)
	}
	if len(f.Backends) == 0 {
		return nil, fmt.Errorf("backends file %s defines no backends", path)
	}
	seen := map[string]bool{}
	for i, be := range f.Backends {
		if be.ID == "" {
			return nil, fmt.Errorf("backend %d: missing id", i)
		}
		if seen[be.ID] {
			return nil, fmt.Errorf("duplicate backend id %q", be.ID)
		}
		seen[be.ID] = true
		switch be.Mode {
		case types.ModeSubprocess:
			if be.Script == "" || be.Module == "" {
				return nil, fmt.Errorf("backend %q: subprocess mode needs script and module", be.ID)
			}
		case types.ModeInProcess:
			if be.ModelPath == "" {
				return nil, fmt.Errorf("backend %q: inprocess mode needs model_path", be.ID)
			}
		default:
			return nil, fmt.Errorf("backend %q: unknown mode %q", be.ID, be.Mode)
		}
		switch be.Kind {
		case types.KindTranscribe, types.KindCorrect:
		default:
			return nil, fmt.Errorf("backend %q: unknown kind %q", be.ID, be.Kind)
		}
	}
	return f.Backends, nil
}

// Defaults picks the default backend per kind: the first of each kind wins.
func Defaults(backends []types.Backend) map[types.BackendKind]string {
	out := map[types.BackendKind]string{}
	for _, b := range backends {
		if _, ok := out[b.Kind]; !ok {
			out[b.Kind] = b.ID
		}
	}
	return out
}
