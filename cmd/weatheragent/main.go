// Command weatheragent is a minimal domain agent exercising the
// runtime.Agent contract end to end: it registers the weather.lookup
// capability, answers orchestrator.task.request events naming that
// capability with a canned forecast, and reports an EXECUTION_FAILED
// TaskError for anything else it's asked to do.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentmesh/amcp/bus"
	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/identity"
	grpctransport "github.com/agentmesh/amcp/transport/grpc"
)

const weatherCapability = "weather.lookup"

// weatherAgent implements runtime.Agent directly: its lifecycle callbacks
// are no-ops and only HandleEvent does work.
type weatherAgent struct {
	id     identity.AgentID
	bus    bus.Bus
	logger *slog.Logger
}

func (a *weatherAgent) Identity() identity.AgentID                 { return a.id }
func (a *weatherAgent) OnActivate(ctx context.Context) error       { return nil }
func (a *weatherAgent) OnDeactivate(ctx context.Context) error     { return nil }
func (a *weatherAgent) OnDestroy(ctx context.Context) error        { return nil }
func (a *weatherAgent) OnBeforeMigration(ctx context.Context) error { return nil }
func (a *weatherAgent) OnAfterMigration(ctx context.Context) error  { return nil }

func (a *weatherAgent) HandleEvent(ctx context.Context, evt event.Event) error {
	req, err := event.As[event.TaskRequest](evt.Payload())
	if err != nil {
		return nil
	}

	start := time.Now()
	var resp event.TaskResponse
	if req.Capability != weatherCapability {
		resp = event.TaskResponse{
			Capability: req.Capability,
			Success:    false,
			Error:      &event.TaskError{Code: event.ErrCodeExecutionFailed, Message: fmt.Sprintf("weatheragent does not offer %q", req.Capability)},
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}
	} else {
		city, _ := req.Parameters["city"].(string)
		if city == "" {
			city = "your area"
		}
		resp = event.TaskResponse{
			Capability:      weatherCapability,
			Success:         true,
			Result:          map[string]any{"city": city, "forecast": "sunny", "highCelsius": 24},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
		}
	}

	respEvt := event.New("orchestrator.task.response", resp,
		event.WithSender(a.id),
		event.WithCorrelationID(evt.CorrelationID()))
	return a.bus.Publish(ctx, respEvt)
}

func main() {
	relayAddr := flag.String("relay", "", "address of a meshd relay server to dial (host:port); empty runs standalone")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("weatheragent: shutting down")
		cancel()
	}()

	local := bus.NewInProcess(logger)
	peerBus := grpctransport.NewPeerBus(local, logger)
	peerBus.RelayTopic(event.MustCompilePattern("orchestrator.task.request"))
	peerBus.RelayTopic(event.MustCompilePattern("orchestrator.task.response"))

	if err := peerBus.Start(ctx); err != nil {
		logger.Error("weatheragent: bus start failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		peerBus.Shutdown(shutdownCtx)
	}()

	if *relayAddr != "" {
		if err := peerBus.Dial(ctx, *relayAddr); err != nil {
			logger.Error("weatheragent: failed to dial relay", "addr", *relayAddr, "error", err)
			os.Exit(1)
		}
		logger.Info("weatheragent: connected to mesh relay", "addr", *relayAddr)
	} else {
		logger.Info("weatheragent: running standalone (no relay configured)")
	}

	agent := &weatherAgent{id: identity.New("default", "weather"), bus: peerBus, logger: logger}

	if _, err := peerBus.Subscribe(agent.id.String(), event.MustCompilePattern("orchestrator.task.request"), func(ctx context.Context, evt event.Event) error {
		return agent.HandleEvent(ctx, evt)
	}); err != nil {
		logger.Error("weatheragent: subscribe failed", "error", err)
		os.Exit(1)
	}

	capEvt := event.New("agent.register."+agent.id.String(), event.CapabilityRegistration{
		AgentID:      agent.id.String(),
		AgentType:    "weather",
		Capabilities: []string{weatherCapability},
		Description:  "Reports a canned weather forecast for a named city.",
	}, event.WithSender(agent.id))
	if err := peerBus.Publish(ctx, capEvt); err != nil {
		logger.Warn("weatheragent: failed to publish capability registration", "error", err)
	}

	logger.Info("weatheragent: ready", "agentId", agent.id.String(), "capability", weatherCapability)
	<-ctx.Done()
}
