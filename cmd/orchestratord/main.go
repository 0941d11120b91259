// Command orchestratord hosts the orchestrator behind the example HTTP
// facade, wiring together the queue, registry, broker, monitor, store and
// event sinks.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/quantumlayer-dev/agentmesh/internal/agents"
	"github.com/quantumlayer-dev/agentmesh/internal/broker"
	"github.com/quantumlayer-dev/agentmesh/internal/config"
	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/eventsink"
	"github.com/quantumlayer-dev/agentmesh/internal/httpapi"
	"github.com/quantumlayer-dev/agentmesh/internal/monitor"
	"github.com/quantumlayer-dev/agentmesh/internal/orchestrator"
	"github.com/quantumlayer-dev/agentmesh/internal/queue"
	"github.com/quantumlayer-dev/agentmesh/internal/registry"
	"github.com/quantumlayer-dev/agentmesh/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load("agentmesh", os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	clock := domain.SystemClock{}
	taskStore := buildTaskStore(cfg, logger)
	sink := buildEventSink(cfg, logger)

	q := queue.New(clock, cfg.QueueMaxLen)
	reg := registry.New(clock, sink)
	msgBroker := broker.New(clock, sink)
	mon := monitor.New(clock, sink, monitor.WithPrometheus(prometheus.DefaultRegisterer))

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.MaxAgents = cfg.MaxAgents
	orchCfg.QueueMaxLen = cfg.QueueMaxLen
	orchCfg.RetryPolicy = domain.RetryPolicy{
		MaxRetries:        cfg.RetryMaxRetries,
		BackoffMs:         cfg.RetryBackoffMs,
		BackoffMultiplier: cfg.RetryBackoffMult,
	}
	orchCfg.AgentStaleAfter = time.Duration(cfg.AgentStaleAfterMs) * time.Millisecond
	orchCfg.DrainDeadline = time.Duration(cfg.DrainDeadlineMs) * time.Millisecond
	orchCfg.ErrorBurstThreshold = cfg.ErrorBurstThreshold
	orchCfg.ErrorBurstWindow = time.Duration(cfg.ErrorBurstWindowMs) * time.Millisecond
	orchCfg.SweepDispatchCron = cfg.SweepDispatchCron
	orchCfg.SweepHealthCron = cfg.SweepHealthCron
	orchCfg.SweepCleanupCron = cfg.SweepCleanupCron

	orch := orchestrator.New(orchCfg, orchestrator.Dependencies{
		Clock: clock, Sink: sink, Store: taskStore, Broker: msgBroker, Monitor: mon, Logger: logger,
		Queue: q, Registry: reg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		logger.Fatal("failed to start orchestrator", zap.Error(err))
	}

	llm := agents.NewLLMClient(os.Getenv("LLM_ROUTER_URL"))
	registerStockAgents(ctx, orch, llm, logger)

	server := httpapi.New(cfg.HTTPAddr, orch, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()

	logger.Info("orchestratord started", zap.String("addr", cfg.HTTPAddr), zap.Int("maxAgents", cfg.MaxAgents))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	_ = orch.Stop(shutdownCtx)
	_ = taskStore.Close()
}

func buildTaskStore(cfg *config.Config, logger *zap.Logger) store.TaskStore {
	if cfg.RedisAddr == "" {
		return store.NewMemoryTaskStore()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logger.Info("using redis task store", zap.String("addr", cfg.RedisAddr))
	return store.NewRedisTaskStore(client)
}

func buildEventSink(cfg *config.Config, logger *zap.Logger) domain.EventSink {
	sinks := []domain.EventSink{eventsink.NewLogSink(logger)}
	if cfg.TemporalHost != "" {
		c, err := client.NewClient(client.Options{HostPort: cfg.TemporalHost})
		if err != nil {
			logger.Warn("temporal client unavailable, continuing with log sink only", zap.Error(err))
		} else {
			sinks = append(sinks, eventsink.NewTemporalSink(c, "agentmesh-events", "orchestrator-event", logger))
		}
	}
	return domain.MultiSink{Sinks: sinks}
}

func registerStockAgents(ctx context.Context, orch *orchestrator.Orchestrator, llm *agents.LLMClient, logger *zap.Logger) {
	stock := []domain.AgentInterface{
		agents.NewGeneratorAgent("generator-1", llm, logger),
		agents.NewValidatorAgent("validator-1", logger),
		agents.NewTesterAgent("tester-1", logger),
	}
	for _, a := range stock {
		if err := orch.RegisterAgent(ctx, a); err != nil {
			logger.Warn("failed to register stock agent", zap.String("agentId", a.ID()), zap.Error(err))
		}
	}
}
