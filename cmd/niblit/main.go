package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aschepis/backscratcher/niblit/archive"
	"github.com/aschepis/backscratcher/niblit/capability"
	"github.com/aschepis/backscratcher/niblit/config"
	ctxpkg "github.com/aschepis/backscratcher/niblit/context"
	"github.com/aschepis/backscratcher/niblit/llm"
	niblitlogger "github.com/aschepis/backscratcher/niblit/logger"
	"github.com/aschepis/backscratcher/niblit/maintenance"
	"github.com/aschepis/backscratcher/niblit/memory"
	"github.com/aschepis/backscratcher/niblit/notify"
	"github.com/aschepis/backscratcher/niblit/research"
	"github.com/aschepis/backscratcher/niblit/router"
	"github.com/aschepis/backscratcher/niblit/runtime"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	var (
		configPath = flag.String("config", config.GetConfigPath(), "Path to YAML config file")
		envFile    = flag.String("env", ".env", "Path to .env file with provider credentials")
		logFile    = flag.String("logfile", "", "Path to log file (default: niblit.log next to the store)")
		pretty     = flag.Bool("pretty", false, "Log to stderr with pretty console output")
		trace      = flag.Bool("trace", false, "Print routing decisions to stderr")
		writeCfg   = flag.Bool("write-config", false, "Write the effective configuration to -config and exit")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *writeCfg {
		return writeConfig(cfg, *configPath, os.Stdout)
	}

	var (
		logger    zerolog.Logger
		logCloser io.Closer
	)
	if *logFile != "" || *pretty {
		logger, logCloser, err = niblitlogger.InitWithOptions(*logFile, *pretty)
	} else {
		logger, logCloser, err = niblitlogger.Init(filepath.Dir(cfg.Store.Path))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logCloser.Close() //nolint:errcheck // nothing left to log to

	logger.Info().Str("config", *configPath).Str("store", cfg.Store.Path).Msg("niblit starting")

	notifier := notify.New(logger, notify.WithDisabled(cfg.Notifications.Disabled))

	// ---------------------------
	// 1. Knowledge store
	// ---------------------------

	store, err := memory.Open(cfg.Store.Path,
		memory.WithLogger(logger),
		memory.WithMaxInteractions(cfg.Store.MaxInteractions),
		memory.WithWriteRetries(cfg.Store.WriteRetries),
	)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("Final knowledge store flush failed")
			if memory.IsWriteFailure(closeErr) {
				notifier.WriteFailure(closeErr)
			}
			err = errors.Join(err, fmt.Errorf("failed to save knowledge store: %w", closeErr))
		}
	}()

	// ---------------------------
	// 2. Retention maintainer (+ optional archive)
	// ---------------------------

	var (
		maintOpts []maintenance.Option
		history   capability.History
	)
	if cfg.Maintenance.ArchivePath != "" {
		arch, err := archive.Open(cfg.Maintenance.ArchivePath, logger)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer arch.Close() //nolint:errcheck // read-mostly; sweeps already committed
		maintOpts = append(maintOpts, maintenance.WithArchiver(arch))
		history = arch
	}
	maintainer := maintenance.New(store, maintenance.Config{
		RetentionDays:    cfg.Maintenance.RetentionDays,
		KeepTop:          cfg.Maintenance.KeepTop,
		ReplaceCondensed: cfg.Maintenance.ReplaceCondensed,
		Schedule:         cfg.Maintenance.Schedule,
	}, logger, maintOpts...)

	// ---------------------------
	// 3. Capabilities and research
	// ---------------------------

	registry := capability.NewRegistry(cfg.CapabilityTimeoutDuration(), logger)
	capability.RegisterBuiltins(registry, store, maintainer, history, time.Now)

	searcher := research.NewHTTPSearcher(logger,
		research.WithTimeout(cfg.Research.TimeoutDuration()),
		research.WithUserAgent(cfg.Research.UserAgent),
	)
	researcher := research.NewResearcher(registry, searcher, logger)

	// ---------------------------
	// 4. Language model collaborator (optional)
	// ---------------------------

	routerOpts := []router.Option{
		router.WithLogger(logger),
		router.WithModules(registry),
		router.WithResearcher(researcher),
		router.WithContextWindow(cfg.LLM.ContextWindow),
		router.WithMaxTokens(cfg.LLM.MaxTokens),
		router.WithLLMEnabled(!cfg.LLM.Disabled),
	}

	scheduler := runtime.NewScheduler(logger)
	if err := scheduler.RegisterJob(maintainer.Job()); err != nil {
		return err
	}

	collaborator := newCollaborator(cfg, logger)
	if collaborator != nil {
		routerOpts = append(routerOpts, router.WithCollaborator(collaborator))
		if err := scheduler.RegisterJob(runtime.NewProbeJob(collaborator, cfg.LLM.ProbeSchedule, logger)); err != nil {
			return err
		}
	}

	r := router.New(store, routerOpts...)

	// ---------------------------
	// 5. Background jobs and the input loop
	// ---------------------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := scheduler.Stop(stopCtx); stopErr != nil {
			logger.Warn().Err(stopErr).Msg("Scheduler did not stop cleanly")
		}
	}()

	if *trace {
		ctx = ctxpkg.WithTraceCallback(ctx, func(msg string) {
			fmt.Fprintf(os.Stderr, "[trace] %s\n", msg)
		})
	}

	return loop(ctx, r, notifier, os.Stdin, os.Stdout, logger)
}

// newCollaborator builds the collaborator for the preferred configured
// provider, or returns nil when none can be built.
// writeConfig persists cfg, defaults included, so it can be edited by hand.
func writeConfig(cfg *config.Config, path string, out io.Writer) error {
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	fmt.Fprintf(out, "Wrote configuration to %s\n", path)
	return nil
}

func newCollaborator(cfg *config.Config, logger zerolog.Logger) *llm.Collaborator {
	client, key, err := config.NewLLMClient(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("No language model available; running in raw data mode")
		return nil
	}
	logger.Info().Str("provider", key.Provider).Str("model", key.Model).Msg("Language model configured")

	client = llm.WrapWithMiddleware(client, llm.NewLoggingMiddleware(logger))
	client = llm.NewRetryingClient(client, llm.DefaultMaxRetries, logger)
	pinger, _ := client.(llm.Pinger)

	return llm.NewCollaborator(client, pinger, llm.CollaboratorConfig{
		Model:           key.Model,
		SystemPrompt:    cfg.LLM.SystemPrompt,
		AvailabilityTTL: cfg.LLM.AvailabilityTTLDuration(),
		Timeout:         cfg.LLM.TimeoutDuration(),
		HistoryWindow:   cfg.LLM.ContextWindow,
	}, logger)
}

// loop reads lines until exit, quit, EOF or cancellation.
func loop(ctx context.Context, r *router.Router, notifier *notify.Notifier, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	fmt.Fprintln(out, "Niblit ready. Type 'help' for commands, 'exit' to quit.")
	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			logger.Info().Msg("Interrupted, shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if lower := strings.ToLower(text); lower == "exit" || lower == "quit" {
				logger.Info().Msg("Exit requested")
				return nil
			}

			response, err := r.Handle(ctx, text)
			fmt.Fprintln(out, response)
			if err != nil {
				logger.Error().Err(err).Msg("Knowledge store write failed; will retry on next write")
				notifier.WriteFailure(err)
				fmt.Fprintln(out, "[WARNING] Memory could not be saved to disk.")
			}
		}
	}
}
