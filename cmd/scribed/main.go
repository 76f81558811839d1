package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"scribed/internal/common/fsutil"
	"scribed/internal/config"
	"scribed/internal/httpapi"
	"scribed/internal/manager"
	"scribed/internal/pressure"
	"scribed/internal/registry"
	"scribed/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type serveFlags struct {
	addr            string
	configPath      string
	interpreter     string
	backendsFile    string
	correctionModel string
	maxWarmModels   int
	logLevel        string
}

func newRootCmd() *cobra.Command {
	var f serveFlags
	root := &cobra.Command{
		Use:           "scribed",
		Short:         "Local speech-to-text and transcript-correction daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	fl := root.Flags()
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address (default 127.0.0.1:8573)")
	fl.StringVar(&f.configPath, "config", "", "Config file (.yaml/.json/.toml)")
	fl.StringVar(&f.interpreter, "interpreter", "", "Python interpreter for subprocess backends (default python3)")
	fl.StringVar(&f.backendsFile, "backends", "", "YAML file overriding the built-in backend registry")
	fl.StringVar(&f.correctionModel, "correction-model", "", "Local gguf for in-process correction (llama builds)")
	fl.IntVar(&f.maxWarmModels, "max-warm-models", 0, "Maximum warm in-process models kept cached")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	return root
}

func runServe(f serveFlags) error {
	log := newLogger(f.logLevel)

	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			log.Error().Err(err).Str("path", f.configPath).Msg("load config")
			return err
		}
		cfg = loaded
	}
	// Flags override file values.
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.interpreter != "" {
		cfg.Interpreter = f.interpreter
	}
	if f.backendsFile != "" {
		cfg.BackendsFile = f.backendsFile
	}
	if f.correctionModel != "" {
		cfg.CorrectionModel = f.correctionModel
	}
	if f.maxWarmModels > 0 {
		cfg.MaxWarmModels = f.maxWarmModels
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8573"
	}

	interpreter, err := fsutil.ExpandHome(cfg.Interpreter)
	if err != nil {
		return err
	}

	var backends []types.Backend
	if cfg.BackendsFile != "" {
		backends, err = registry.LoadFile(cfg.BackendsFile)
		if err != nil {
			log.Error().Err(err).Msg("load backends file")
			return err
		}
	} else {
		backends = registry.Builtin(cfg.CorrectionModel, manager.LlamaBuilt())
	}

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Registry:          backends,
		DefaultBackend:    registry.Defaults(backends),
		Interpreter:       interpreter,
		Env:               cfg.Env,
		MaxWarmModels:     cfg.MaxWarmModels,
		TranscribeTimeout: time.Duration(cfg.TranscribeTimeoutSec) * time.Second,
		CorrectTimeout:    time.Duration(cfg.CorrectTimeoutSec) * time.Second,
		ProbeTimeout:      time.Duration(cfg.ProbeTimeoutSec) * time.Second,
		Logger:            log.With().Str("component", "manager").Logger(),
	})

	baseCtx, stopBase := context.WithCancel(context.Background())
	defer stopBase()

	mon := &pressure.Monitor{Log: log.With().Str("component", "pressure").Logger()}
	mon.Notify(mgr.HandleMemoryPressure)
	mon.Start(baseCtx)

	// SIGUSR1/SIGUSR2 inject warning/critical pressure: useful on platforms
	// without PSI and for operator-forced eviction.
	usr := make(chan os.Signal, 1)
	signal.Notify(usr, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for s := range usr {
			if s == syscall.SIGUSR2 {
				mon.Raise(pressure.LevelCritical)
			} else {
				mon.Raise(pressure.LevelWarning)
			}
		}
	}()

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(baseCtx)
	mux := httpapi.NewMux(mgr, httpapi.WithInterpreter(interpreter))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("interpreter", interpreter).Int("backends", len(backends)).Msg("scribed listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		return err
	case <-stop:
	}
	stopBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	// Dropping warm models on exit keeps llama teardown orderly.
	mgr.ClearCache(false)
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
