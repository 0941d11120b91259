package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/quantumlayer-dev/agentmesh/internal/broker"
	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/httpapi"
	"github.com/quantumlayer-dev/agentmesh/internal/monitor"
	"github.com/quantumlayer-dev/agentmesh/internal/orchestrator"
	"github.com/quantumlayer-dev/agentmesh/internal/queue"
	"github.com/quantumlayer-dev/agentmesh/internal/registry"
	"github.com/quantumlayer-dev/agentmesh/internal/store"
)

func TestHealthzRouteRespondsOK(t *testing.T) {
	logger := zaptest.NewLogger(t)
	clock := domain.SystemClock{}
	sink := domain.NopSink{}

	orch := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Dependencies{
		Clock: clock, Sink: sink, Logger: logger,
		Queue:    queue.New(clock, 100),
		Registry: registry.New(clock, sink),
		Broker:   broker.New(clock, sink),
		Monitor:  monitor.New(clock, sink),
		Store:    store.NewMemoryTaskStore(),
	})

	srv := httpapi.New(":0", orch, logger)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAgentsRouteRespondsOK(t *testing.T) {
	logger := zaptest.NewLogger(t)
	clock := domain.SystemClock{}
	sink := domain.NopSink{}

	orch := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Dependencies{
		Clock: clock, Sink: sink, Logger: logger,
		Queue:    queue.New(clock, 100),
		Registry: registry.New(clock, sink),
		Broker:   broker.New(clock, sink),
		Monitor:  monitor.New(clock, sink),
		Store:    store.NewMemoryTaskStore(),
	})

	srv := httpapi.New(":0", orch, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
