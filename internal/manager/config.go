package manager

import (
	"time"

	"github.com/rs/zerolog"

	"scribed/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxWarmModels      = 2
	defaultTranscribeTimeout  = 25 * time.Second
	defaultCorrectTimeout     = 25 * time.Second
	defaultProbeTimeout       = 8 * time.Second
	defaultPayloadInlineLimit = 16 * 1024 // beyond this, payloads go through a temp file
	defaultInterpreter        = "python3"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry       []types.Backend
	DefaultBackend map[types.BackendKind]string

	// Interpreter used for all subprocess backends.
	Interpreter string
	// Environment overrides merged over the daemon environment for every
	// spawned process (e.g. PARAKEET_FFMPEG_PATH).
	Env map[string]string

	MaxWarmModels      int
	TranscribeTimeout  time.Duration
	CorrectTimeout     time.Duration
	ProbeTimeout       time.Duration
	PayloadInlineLimit int

	// In-process model parameters (llama build only).
	CtxSize int
	Threads int

	Logger    zerolog.Logger
	Publisher EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig, applying defaults
// for unset fields.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.MaxWarmModels <= 0 {
		cfg.MaxWarmModels = defaultMaxWarmModels
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = defaultTranscribeTimeout
	}
	if cfg.CorrectTimeout <= 0 {
		cfg.CorrectTimeout = defaultCorrectTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.PayloadInlineLimit <= 0 {
		cfg.PayloadInlineLimit = defaultPayloadInlineLimit
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = defaultInterpreter
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	inv := &Invoker{log: cfg.Logger, publisher: cfg.Publisher}
	m := &Manager{
		cfg:       cfg,
		log:       cfg.Logger,
		publisher: cfg.Publisher,
		invoker:   inv,
		cache:     newModelCache(cfg.Publisher, cfg.Logger),
		probe:     newDepProbe(inv, cfg.ProbeTimeout, cfg.Logger),
		startTime: time.Now(),
	}
	return m
}
