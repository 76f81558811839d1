package types

// BackendKind distinguishes what a backend produces.
type BackendKind string

const (
	KindTranscribe BackendKind = "transcribe"
	KindCorrect    BackendKind = "correct"
)

// BackendMode selects how inference runs.
type BackendMode string

const (
	// ModeInProcess keeps a warm model inside the daemon process.
	ModeInProcess BackendMode = "inprocess"
	// ModeSubprocess launches one external interpreter process per request.
	ModeSubprocess BackendMode = "subprocess"
)

// Backend describes one transcription or correction implementation.
type Backend struct {
	// Stable identifier, also the model-cache key for in-process backends.
	// example: parakeet-base
	ID string `json:"id" yaml:"id" example:"parakeet-base"`
	// Human-friendly name.
	// example: Parakeet TDT 0.6B
	Name string `json:"name" yaml:"name" example:"Parakeet TDT 0.6B"`
	// What this backend produces.
	// example: transcribe
	Kind BackendKind `json:"kind" yaml:"kind" example:"transcribe"`
	// How inference runs.
	// example: subprocess
	Mode BackendMode `json:"mode" yaml:"mode" example:"subprocess"`
	// Python module the subprocess mode depends on.
	// example: parakeet_mlx
	Module string `json:"module,omitempty" yaml:"module,omitempty" example:"parakeet_mlx"`
	// Embedded script name for subprocess mode.
	// example: transcribe.py
	Script string `json:"script,omitempty" yaml:"script,omitempty" example:"transcribe.py"`
	// Hugging Face repo passed to the script.
	// example: mlx-community/parakeet-tdt-0.6b-v2
	ModelRepo string `json:"model_repo,omitempty" yaml:"model_repo,omitempty" example:"mlx-community/parakeet-tdt-0.6b-v2"`
	// Local model file for in-process mode.
	// example: /home/user/models/correction.Q4_K_M.gguf
	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty" example:"/home/user/models/correction.Q4_K_M.gguf"`
}
