// Command meshd wires every core component into one runnable process:
// event bus, agent runtime, capability registry, correlation tracker,
// fallback/health monitor, and the orchestrator. It registers a pair of
// demonstration agents so the mesh answers end to end out of the box,
// optionally opens a relay listener so external agent processes (see
// cmd/weatheragent) can join over gRPC, and answers one query passed on
// the command line or read from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentmesh/amcp/bus"
	"github.com/agentmesh/amcp/correlation"
	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/fallback"
	"github.com/agentmesh/amcp/identity"
	"github.com/agentmesh/amcp/internal/config"
	"github.com/agentmesh/amcp/internal/observability"
	"github.com/agentmesh/amcp/llm"
	"github.com/agentmesh/amcp/orchestrator"
	"github.com/agentmesh/amcp/planner"
	"github.com/agentmesh/amcp/prompt"
	"github.com/agentmesh/amcp/registry"
	"github.com/agentmesh/amcp/runtime"
	grpctransport "github.com/agentmesh/amcp/transport/grpc"
)

func main() {
	query := flag.String("query", "", "natural-language request to process; reads stdin if empty")
	model := flag.String("model", "", "model profile name (empty uses the default profile)")
	llmEndpoint := flag.String("llm-endpoint", "", "HTTP text-completion endpoint; empty runs a canned demo LLM")
	relayListen := flag.String("relay-listen", "", "address to accept relay connections from other mesh processes (e.g. :50051); empty disables it")
	healthPort := flag.String("health-port", "8080", "port for the observability health/metrics server")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("meshd: shutting down")
		cancel()
	}()

	obsConfig := observability.DefaultConfig("amcp-meshd")
	obs, err := observability.NewObservability(obsConfig)
	if err != nil {
		logger.Error("meshd: observability init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("meshd: observability shutdown failed", "error", err)
		}
	}()
	logger = obs.Logger

	metricsManager, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		logger.Error("meshd: metrics manager init failed", "error", err)
		os.Exit(1)
	}
	traceManager := observability.NewTraceManager(obsConfig.ServiceName)

	healthServer := observability.NewHealthServer(*healthPort, obsConfig.ServiceName, obsConfig.ServiceVersion)
	healthServer.AddChecker("self", observability.NewBasicHealthChecker("self", func(ctx context.Context) error { return nil }))
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Warn("meshd: health server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}()

	localBus := bus.NewInProcess(logger,
		bus.WithObservability(traceManager, metricsManager),
		bus.WithDeadLetter(cfg.DeadletterEnabled))
	meshBus := grpctransport.NewPeerBus(localBus, logger)
	meshBus.RelayTopic(event.MustCompilePattern("orchestrator.task.request"))
	meshBus.RelayTopic(event.MustCompilePattern("orchestrator.task.response"))
	meshBus.RelayTopic(event.MustCompilePattern("agent.register.**"))

	if err := meshBus.Start(ctx); err != nil {
		logger.Error("meshd: bus start failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		meshBus.Shutdown(shutdownCtx)
	}()

	if *relayListen != "" {
		if err := meshBus.Listen(*relayListen); err != nil {
			logger.Error("meshd: relay listen failed", "error", err)
			os.Exit(1)
		}
	}

	rt := runtime.New(meshBus, logger)
	reg := registry.New(meshBus, logger, registry.WithStaleSeconds(cfg.HeartbeatStaleSec))
	if err := reg.Start(ctx); err != nil {
		logger.Error("meshd: registry start failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		reg.Shutdown(shutdownCtx)
	}()

	tracker := correlation.New(logger, correlation.WithSweepInterval(time.Duration(cfg.CorrelationSweepMs)*time.Millisecond))
	if err := tracker.Start(ctx); err != nil {
		logger.Error("meshd: correlation tracker start failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		tracker.Shutdown(shutdownCtx)
	}()

	if cfg.EnableHealthMonitoring {
		health := fallback.NewHealthMonitor(logger,
			fallback.WithAlertBus(meshBus),
			fallback.WithStaleAfter(time.Duration(cfg.HeartbeatStaleSec)*time.Second))
		if err := health.Start(ctx); err != nil {
			logger.Error("meshd: health monitor start failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			health.Shutdown(shutdownCtx)
		}()
	}

	var fallbackOpts []fallback.Option
	if !cfg.EnableFallbackStrategies {
		fallbackOpts = append(fallbackOpts, fallback.WithMaxAttempts(1))
	}
	fallbackMgr := fallback.New(logger, fallbackOpts...)
	engine := prompt.NewEngine()

	var llmClient llm.Client
	if *llmEndpoint != "" {
		llmClient = llm.NewHTTPClient(*llmEndpoint, nil)
	} else {
		logger.Info("meshd: no --llm-endpoint given, running the canned demo LLM")
		llmClient = demoLLM()
	}

	pl := planner.New(engine, llmClient, logger)

	orchCfg := orchestrator.Config{
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		DefaultTimeoutMs:      cfg.DefaultTimeoutMs,
		TaskTimeoutMs:         cfg.TaskTimeoutMs,
		LLMTimeoutMs:          cfg.LLMTimeoutMs,
	}
	orch := orchestrator.New(meshBus, tracker, pl, engine, llmClient, fallbackMgr, logger, orchCfg,
		orchestrator.WithObservability(traceManager, metricsManager))
	if err := orch.Start(ctx); err != nil {
		logger.Error("meshd: orchestrator start failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		orch.Shutdown(shutdownCtx)
	}()

	registerDemoAgents(ctx, rt, meshBus, logger, cfg)

	q := *query
	if q == "" {
		q = readQueryFromStdin(logger)
	}
	if q == "" {
		logger.Info("meshd: no query given, mesh is up; press Ctrl-C to exit")
		<-ctx.Done()
		return
	}

	resp, err := orch.ProcessRequest(ctx, orchestrator.Request{
		TaskDescription:   q,
		Model:             *model,
		AgentCapabilities: demoAgentSummaries(),
	})
	if err != nil {
		logger.Error("meshd: ProcessRequest failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("status: %s\n", resp.Status)
	fmt.Printf("response: %s\n", resp.ResponseText)
	for taskID, outcome := range resp.Results {
		if outcome.Success {
			fmt.Printf("  task %s (%s): ok\n", taskID, outcome.Capability)
		} else {
			fmt.Printf("  task %s (%s): failed — %s\n", taskID, outcome.Capability, outcome.Error.Message)
		}
	}
}

func readQueryFromStdin(logger *slog.Logger) string {
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return ""
	}
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

func demoAgentSummaries() []prompt.AgentSummary {
	return []prompt.AgentSummary{
		{AgentID: "weather@local", AgentType: "weather", Capabilities: []string{"weather.lookup"}, Description: "Reports a weather forecast for a named city."},
		{AgentID: "general@local", AgentType: "general", Capabilities: []string{"general.fallback"}, Description: "Handles requests with no specific capability match."},
	}
}

// registerDemoAgents wires up the weather and general-fallback agents
// in-process, so the mesh answers end to end without any external agent
// process running.
func registerDemoAgents(ctx context.Context, rt *runtime.Runtime, b bus.Bus, logger *slog.Logger, cfg *config.AppConfig) {
	weather := newInlineAgent(identity.New("default", "weather"), b, "weather.lookup", func(req event.TaskRequest) event.TaskResponse {
		city, _ := req.Parameters["city"].(string)
		if city == "" {
			city = "your area"
		}
		return event.TaskResponse{
			Capability: req.Capability,
			Success:    true,
			Result:     map[string]any{"city": city, "forecast": "sunny", "highCelsius": 24},
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}
	})
	general := newInlineAgent(identity.New("default", "general"), b, "general.fallback", func(req event.TaskRequest) event.TaskResponse {
		return event.TaskResponse{
			Capability: req.Capability,
			Success:    true,
			Result:     map[string]any{"note": "handled by the general-purpose fallback agent"},
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}
	})

	for _, a := range []*inlineAgent{weather, general} {
		if err := rt.RegisterAgent(ctx, a); err != nil {
			logger.Error("meshd: register demo agent failed", "agent", a.Identity().String(), "error", err)
			continue
		}
		if err := rt.Subscribe(a.Identity(), event.MustCompilePattern("orchestrator.task.request"),
			bus.WithQueueCap(cfg.SubscriptionQueueCap), bus.WithConcurrency(cfg.SubscriptionConcurrency)); err != nil {
			logger.Error("meshd: subscribe demo agent failed", "agent", a.Identity().String(), "error", err)
			continue
		}
		if err := rt.ActivateAgent(ctx, a.Identity()); err != nil {
			logger.Error("meshd: activate demo agent failed", "agent", a.Identity().String(), "error", err)
		}
	}
}

// inlineAgent is a minimal runtime.Agent backing meshd's built-in demo
// capabilities: it answers exactly one capability with a handler
// function, ignoring every other task request.
type inlineAgent struct {
	runtime.BaseAgent
	bus        bus.Bus
	capability string
	handle     func(event.TaskRequest) event.TaskResponse
}

func newInlineAgent(id identity.AgentID, b bus.Bus, capability string, handle func(event.TaskRequest) event.TaskResponse) *inlineAgent {
	return &inlineAgent{BaseAgent: runtime.NewBaseAgent(id), bus: b, capability: capability, handle: handle}
}

func (a *inlineAgent) HandleEvent(ctx context.Context, evt event.Event) error {
	req, err := event.As[event.TaskRequest](evt.Payload())
	if err != nil {
		return nil
	}
	if req.Capability != a.capability {
		return nil
	}
	resp := a.handle(req)
	respEvt := event.New("orchestrator.task.response", resp,
		event.WithSender(a.Identity()),
		event.WithCorrelationID(evt.CorrelationID()))
	return a.bus.Publish(ctx, respEvt)
}

// demoLLM returns a deterministic llm.Client standing in for a real model
// endpoint: it recognizes the task-planning and response-synthesis
// prompts by their instruction text and answers each with a single-task
// plan (weather.lookup if the prompt text mentions weather anywhere,
// general.fallback otherwise), or a short canned summary, respectively.
func demoLLM() llm.Client {
	return llm.NewMockWithFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		if strings.Contains(req.Prompt, "Decompose the user's request") {
			capability := "general.fallback"
			if strings.Contains(strings.ToLower(req.Prompt), "weather") {
				capability = "weather.lookup"
			}
			plan := fmt.Sprintf(`{"tasks":[{"id":"t1","capability":%q,"agent":"","parameters":{},"priority":5,"dependencies":[]}],"confidence":0.5}`, capability)
			return llm.Response{Text: plan}, nil
		}
		return llm.Response{Text: "Here is what the mesh found for your request."}, nil
	})
}
