package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchboard-cli/switchboard/internal/config"
	"github.com/switchboard-cli/switchboard/internal/eval"
	"github.com/switchboard-cli/switchboard/internal/executorlog"
	"github.com/switchboard-cli/switchboard/internal/host"
	"github.com/switchboard-cli/switchboard/internal/liverun"
	"github.com/switchboard-cli/switchboard/internal/media"
	"github.com/switchboard-cli/switchboard/internal/memoryctx"
	"github.com/switchboard-cli/switchboard/internal/messenger"
	"github.com/switchboard-cli/switchboard/internal/paths"
	"github.com/switchboard-cli/switchboard/internal/pipeline"
	"github.com/switchboard-cli/switchboard/internal/provider"
	"github.com/switchboard-cli/switchboard/internal/router"
	"github.com/switchboard-cli/switchboard/internal/telemetry"
)

// app bundles every long-lived collaborator the REPL's command table reaches
// into. Built once in main, passed by reference into the cobra tree and the
// REPL loop.
type app struct {
	cwd            string
	routerStore    *config.Store[config.RouterConfig, *config.RouterConfig]
	schedulerStore *config.Store[config.SchedulerConfig, *config.SchedulerConfig]
	policyStore    *config.Store[config.PolicyConfig, *config.PolicyConfig]
	telemetryStore *telemetry.Store
	evalHistory    *eval.History
	logMgr         *executorlog.Manager
	router         *router.Router
	pipeline       *pipeline.Pipeline
	liveRegistry   *liverun.Registry
	liveServer     *liverun.Server
}

func newApp() (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	routerStore, err := config.NewStore[config.RouterConfig, *config.RouterConfig]("ai-router.json", *config.DefaultRouterConfig())
	if err != nil {
		return nil, fmt.Errorf("router config: %w", err)
	}
	schedulerStore, err := config.NewStore[config.SchedulerConfig, *config.SchedulerConfig]("scheduler-config.json", *config.DefaultSchedulerConfig())
	if err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}
	policyStore, err := config.NewStore[config.PolicyConfig, *config.PolicyConfig]("policy-config.json", *config.DefaultPolicyConfig(cwd))
	if err != nil {
		return nil, fmt.Errorf("policy config: %w", err)
	}

	telemetryStore, err := telemetry.NewStore("telemetry.jsonl")
	if err != nil {
		return nil, fmt.Errorf("telemetry store: %w", err)
	}
	evalHistory, err := eval.NewHistory("eval-runs.jsonl")
	if err != nil {
		return nil, fmt.Errorf("eval history: %w", err)
	}

	homeDir := paths.GetGlobalDir()
	rt := router.New(routerStore, schedulerStore, envCredentialResolver{}, envEndpointResolver{}, telemetryStore, homeDir)

	logMgr := executorlog.NewManager()
	nativeHost := host.NewNativeHost(cwd)
	procExecAdapter := provider.NewProcExecAdapterFor(homeDir)
	procExecCred := procExecCredential()
	sessionStore := memoryctx.NewSessionStore()

	p := &pipeline.Pipeline{
		Host:          nativeHost,
		Router:        rt,
		PolicyStore:   policyStore,
		Log:           logMgr,
		ProcExec:      procExecAdapter,
		ProcExecCred:  procExecCred,
		ProcExecModel: "",
		Planner:       routerPlanner{router: rt},
		MemoryCtx:     &memoryctx.Builder{Session: sessionStore},
		TurnSaver:     sessionStore,
	}

	registry := liverun.NewRegistry()
	server := liverun.NewServer(registry)

	return &app{
		cwd:            cwd,
		routerStore:    routerStore,
		schedulerStore: schedulerStore,
		policyStore:    policyStore,
		telemetryStore: telemetryStore,
		evalHistory:    evalHistory,
		logMgr:         logMgr,
		router:         rt,
		pipeline:       p,
		liveRegistry:   registry,
		liveServer:     server,
	}, nil
}

// startLiveServer starts the live-run HTTP server in the background and
// shuts it down once ctx is cancelled. Listen errors are logged, not fatal: the live-run
// share links are a convenience feature, not load-bearing for the CLI/bot.
func (a *app) startLiveServer(ctx context.Context) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", a.liveServer.Port), Handler: a.liveServer.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "live-run server: %v\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// startMessenger spins up the Telegram long-poll loop when a bot token is
// configured. It runs in its own goroutine for the process lifetime.
func (a *app) startMessenger(ctx context.Context) {
	token := os.Getenv("SWITCHBOARD_TELEGRAM_TOKEN")
	if token == "" {
		return
	}
	m, err := messenger.New(token, a.pipeline, a.liveRegistry, a.liveServer, a.routerStore, envCredentialResolver{},
		transcriberFor(os.Getenv("SWITCHBOARD_WHISPER_API_KEY")), media.NoopImageAnalyzer{}, media.NoopVideoDecoder{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "telegram messenger disabled: %v\n", err)
		return
	}
	go m.Run(ctx)
}

type noopTranscriber struct{}

func (noopTranscriber) Transcribe([]byte) (string, error) {
	return "", fmt.Errorf("voice transcription is not configured (set SWITCHBOARD_WHISPER_API_KEY)")
}

// transcriberFor wires the OpenAI-hosted whisper transcriber when an API key
// is configured, falling back to the noop collaborator otherwise.
func transcriberFor(apiKey string) media.Transcriber {
	if apiKey == "" {
		return noopTranscriber{}
	}
	return media.NewOpenAIWhisperTranscriber(apiKey)
}

func main() {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.startLiveServer(ctx)
	a.startMessenger(ctx)

	root := &cobra.Command{
		Use:   "switchboard",
		Short: "Multi-provider AI command-line assistant",
	}
	root.AddCommand(newChatCmd(ctx, a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newEvalCmd(a))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
