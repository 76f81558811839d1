package types

// TranscribeRequest asks the daemon to turn a recorded audio file into text.
// The audio path must already be validated by the caller.
type TranscribeRequest struct {
	// Absolute path to a local audio file.
	// example: /tmp/recording-8f2c.wav
	AudioPath string `json:"audio_path" example:"/tmp/recording-8f2c.wav"`
	// Optional backend identifier. If empty, the server default is used.
	// example: parakeet-base
	Backend string `json:"backend,omitempty" example:"parakeet-base"`
}

// CorrectRequest asks the daemon to rewrite a transcript for fluency.
type CorrectRequest struct {
	// Raw transcript text to correct.
	// example: um so the meeting is uh moved to thursday
	Text string `json:"text" example:"um so the meeting is uh moved to thursday"`
	// Optional backend identifier. If empty, the server default is used.
	// example: mlx-correct
	Backend string `json:"backend,omitempty" example:"mlx-correct"`
	// Optional system prompt overriding the built-in correction prompt.
	Prompt string `json:"prompt,omitempty"`
}

// ResultResponse is the normalized result of either backend path.
type ResultResponse struct {
	// Resulting text (transcript or corrected transcript).
	// example: The meeting is moved to Thursday.
	Text string `json:"text" example:"The meeting is moved to Thursday."`
	// Backend that produced the result.
	// example: parakeet-base
	Backend string `json:"backend" example:"parakeet-base"`
	// Server-assigned request identifier.
	// example: 9f3b1c2e-4a61-4a2e-9e9e-0f0d9a6b7c1d
	RequestID string `json:"request_id"`
	// Wall-clock duration of the request in milliseconds.
	// example: 1874
	DurationMs int64 `json:"duration_ms" example:"1874"`
}

// ProbeRequest checks whether a required capability is importable under the
// configured interpreter.
type ProbeRequest struct {
	// Python module to probe. If empty, every registered module is probed.
	// example: parakeet_mlx
	Module string `json:"module,omitempty" example:"parakeet_mlx"`
	// Re-run the check even if a cached result exists.
	Force bool `json:"force,omitempty"`
}

// ProbeResponse reports per-module availability.
type ProbeResponse struct {
	// Interpreter the probe ran under.
	// example: /usr/bin/python3
	Interpreter string `json:"interpreter" example:"/usr/bin/python3"`
	// Module availability by module name.
	Available map[string]bool `json:"available"`
}

// BackendsResponse wraps the registry listing returned by GET /v1/backends.
type BackendsResponse struct {
	Backends []Backend `json:"backends"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: dependency missing: parakeet_mlx
	Error string `json:"error" example:"dependency missing: parakeet_mlx"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
	// Actionable hint for recoverable failures, when known.
	// example: pip install parakeet-mlx
	Hint string `json:"hint,omitempty" example:"pip install parakeet-mlx"`
}

// CachedModelStatus summarizes one warm model for /v1/status.
type CachedModelStatus struct {
	// Backend identifier of the cached model.
	// example: mlx-correct
	Backend string `json:"backend" example:"mlx-correct"`
	// Last time the entry was used (unix seconds).
	// example: 1700000000
	LastUsedUnix int64 `json:"last_used_unix" example:"1700000000"`
	// False while the initial load is still in flight.
	Ready bool `json:"ready"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	// Warm in-process models currently held by the cache.
	CachedModels []CachedModelStatus `json:"cached_models"`
	// Maximum number of warm models kept simultaneously.
	// example: 2
	MaxWarmModels int `json:"max_warm_models" example:"2"`
	// Configured interpreter path.
	// example: /usr/bin/python3
	Interpreter string `json:"interpreter" example:"/usr/bin/python3"`
	// Cached dependency-probe results by module name.
	Probes map[string]bool `json:"probes"`
	// Total model loads performed.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total cache evictions (capacity plus pressure).
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total memory-pressure signals handled.
	// example: 2
	PressureEventsTotal uint64 `json:"pressure_events_total" example:"2"`
	// Total subprocess spawns.
	// example: 40
	SpawnsTotal uint64 `json:"spawns_total" example:"40"`
	// Total transcription requests accepted.
	// example: 30
	TranscribesTotal uint64 `json:"transcribes_total" example:"30"`
	// Total correction requests accepted.
	// example: 10
	CorrectionsTotal uint64 `json:"corrections_total" example:"10"`
	// Total requests that hit the timeout.
	// example: 1
	TimeoutsTotal uint64 `json:"timeouts_total" example:"1"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
