package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	domainimage "imgrelay-server-go/internal/domain/image"
	domainrelay "imgrelay-server-go/internal/domain/relay"
	"imgrelay-server-go/internal/domain/eventbus"
	platformconfig "imgrelay-server-go/internal/platform/config"
	platformerrors "imgrelay-server-go/internal/platform/errors"
	platformlogging "imgrelay-server-go/internal/platform/logging"
	platformobservability "imgrelay-server-go/internal/platform/observability"
	platformstorage "imgrelay-server-go/internal/platform/storage"
	httptransport "imgrelay-server-go/internal/transport/http"
	httprelay "imgrelay-server-go/internal/transport/http/relay"
	httpstats "imgrelay-server-go/internal/transport/http/stats"
	"imgrelay-server-go/internal/utils"
)

const (
	eventWorkers         = 2
	journalPruneInterval = time.Hour
	serverShutdownWindow = 10 * time.Second
	overallShutdownLimit = 15 * time.Second
)

// Options are the command-line inputs of the server.
type Options struct {
	ConfigPath string
	DotEnv     bool
	DotEnvFile []string
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	options               Options
	config                *platformconfig.Config
	configPath            string
	logProvider           *platformlogging.Logger
	logger                *utils.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	events                *eventbus.AsyncEventBus
	db                    *gorm.DB
	journal               *platformstorage.EventRepository
	pipeline              *domainimage.Pipeline
}

// Run loads configuration, wires the relay and serves HTTP until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	state := &appState{options: opts}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("start http server: %w", err)
	}
	startJournalPruner(state, group, groupCtx)

	return waitForShutdown(signalCtx, groupCtx, cancel, logger, group)
}

// close releases everything the init steps created, in reverse order.
func (s *appState) close() {
	if s.events != nil {
		s.events.Stop()
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil && s.logger != nil {
			s.logger.WarnTag("STORAGE", "journal did not close cleanly: %v", err)
		}
	}
	if shutdown := s.observabilityShutdown; shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil && s.logger != nil {
			s.logger.WarnTag("BOOT", "observability did not shut down cleanly: %v", err)
		}
	}
	if s.logProvider != nil {
		s.logProvider.Close()
	}
}

func logBootstrapGraph(steps []initStep, logger *utils.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "initialisation graph")
	for _, step := range steps {
		deps := "none"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		logger.InfoTag("BOOT", "  %s: %s (after %s)", step.ID, step.Title, deps)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "events:setup",
			Title:     "Start relay event bus",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupEventsStep,
		},
		{
			ID:        "storage:init-journal",
			Title:     "Open relay event journal",
			DependsOn: []string{"config:load", "events:setup"},
			Kind:      platformerrors.KindStorage,
			Execute:   initJournalStep,
		},
		{
			ID:        "codec:init-pipeline",
			Title:     "Initialise transcode pipeline",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPipelineStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().
		WithPath(state.options.ConfigPath).
		WithDotEnv(state.options.DotEnv, state.options.DotEnvFile...)

	result, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}

	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults+env"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logProvider, err := platformlogging.New(platformlogging.FromConfig(state.config.Log))
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logProvider = logProvider
	state.logger = logProvider.Tagged()
	state.slogger = logProvider.Slog()
	utils.DefaultLogger = state.logger

	state.logger.InfoTag("BOOT", "logging ready [%s] config=%s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	slogger := state.slogger
	if slogger == nil {
		slogger = state.logger.Slog()
	}

	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled || strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func setupEventsStep(_ context.Context, state *appState) error {
	if state == nil || state.logger == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "events:setup", "logger not initialised")
	}

	bus := eventbus.NewAsyncEventBus(eventWorkers, state.logger)
	if err := eventbus.SetupEventHandlers(bus, eventbus.NewLogEventHandler(state.logger)); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:setup", "failed to subscribe event handlers", err)
	}
	bus.Start()
	state.events = bus
	return nil
}

// initJournalStep is a no-op unless storage is enabled.
func initJournalStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.events == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "storage:init-journal", "config/events not initialised")
	}
	cfg := state.config.Storage
	if !cfg.Enabled {
		state.logger.InfoTag("STORAGE", "relay event journal disabled")
		return nil
	}

	db, err := platformstorage.Open(cfg.Path)
	if err != nil {
		return err
	}
	state.db = db
	state.journal = platformstorage.NewEventRepository(db)

	handler := platformstorage.NewJournalHandler(state.journal, state.logger)
	if err := eventbus.SetupEventHandlers(state.events, handler); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "storage:init-journal", "failed to subscribe journal", err)
	}

	state.logger.InfoTag("STORAGE", "relay event journal at %s (retention %s)", cfg.Path, cfg.Retention)
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "codec:init-pipeline", "config/logger not initialised")
	}

	pipeline, err := domainimage.NewPipeline(domainimage.Options{
		Codec:         domainimage.NewImagingCodec(state.logger),
		Logger:        state.logger,
		Timeout:       state.config.Relay.TranscodeTimeout,
		MaxConcurrent: state.config.Relay.MaxConcurrentTranscodes,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "codec:init-pipeline", "failed to create transcode pipeline", err)
	}
	state.pipeline = pipeline
	return nil
}

// newHTTPHandler assembles the router and the relay routes from state.
func newHTTPHandler(ctx context.Context, state *appState) (http.Handler, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	relayService, err := domainrelay.NewService(domainrelay.Options{
		Config:   &config.Relay,
		Fetcher:  domainrelay.NewFetcher(&config.Relay, newUpstreamClient(), logger),
		Pipeline: state.pipeline,
		Logger:   logger,
		Events:   state.events,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindBootstrap, "relay:new-service", "failed to create relay service", err)
	}

	relayHTTP, err := httprelay.NewService(&config.Relay, logger, relayService)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "relay:new-http", "failed to create relay handler", err)
	}
	if err := relayHTTP.Register(ctx, httpRouter.Root); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "relay:register", "failed to register relay routes", err)
	}

	var journal httpstats.Reader
	if state.journal != nil {
		journal = state.journal
	}
	statsHTTP, err := httpstats.NewService(logger, httpstats.NewHostSampler(), journal)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "stats:new-http", "failed to create stats handler", err)
	}
	if err := statsHTTP.Register(ctx, httpRouter.Root); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "stats:register", "failed to register stats routes", err)
	}

	return httpRouter.Engine, nil
}

// newUpstreamClient carries no Timeout; the fetcher bounds each phase by context.
func newUpstreamClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	transport.ResponseHeaderTimeout = 30 * time.Second
	return &http.Client{Transport: transport}
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	handler, err := newHTTPHandler(groupCtx, state)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownWindow := config.Server.ShutdownTimeout
	if shutdownWindow <= 0 {
		shutdownWindow = serverShutdownWindow
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "relay listening on http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "http server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "http server stopped gracefully")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "http server failed: %v", err)
			return platformerrors.Wrap(platformerrors.KindTransport, "http:listen", "http server failed", err)
		}
		return nil
	})

	return httpServer, nil
}

// startJournalPruner drops journal rows older than the retention window,
// once at startup and then every journalPruneInterval.
func startJournalPruner(state *appState, g *errgroup.Group, groupCtx context.Context) {
	retention := state.config.Storage.Retention
	if state.journal == nil || retention <= 0 {
		return
	}

	prune := func() {
		removed, err := state.journal.Prune(groupCtx, time.Now().Add(-retention))
		switch {
		case err != nil && groupCtx.Err() == nil:
			state.logger.WarnTag("STORAGE", "journal prune failed: %v", err)
		case removed > 0:
			state.logger.InfoTag("STORAGE", "pruned %d journal rows older than %s", removed, retention)
		}
	}

	g.Go(func() error {
		prune()
		ticker := time.NewTicker(journalPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				prune()
			}
		}
	})
}

// waitForShutdown returns once a signal arrives or a server goroutine fails,
// giving the group overallShutdownLimit to drain.
func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *utils.Logger,
	g *errgroup.Group,
) error {
	select {
	case <-signalCtx.Done():
		logger.InfoTag("BOOT", "received %v, shutting down", context.Cause(signalCtx))
	case <-groupCtx.Done():
		logger.WarnTag("BOOT", "a server stopped unexpectedly, shutting down")
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(overallShutdownLimit):
		logger.ErrorTag("BOOT", "shutdown timed out after %s", overallShutdownLimit)
		return platformerrors.New(platformerrors.KindBootstrap, "shutdown", "shutdown timed out")
	}
	return nil
}
