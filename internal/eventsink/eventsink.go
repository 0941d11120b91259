// Package eventsink implements the EventSink port: a zap-backed default
// that mirrors every lifecycle event to structured logs, and an optional
// adapter that signals a long-lived Temporal workflow.
package eventsink

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

const defaultSignalTimeout = 5 * time.Second

// LogSink mirrors events to a zap logger at debug level. It is the
// always-on default sink; every other sink is layered alongside it via
// domain.MultiSink.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(name string, payload map[string]interface{}) {
	fields := make([]zap.Field, 0, len(payload)+1)
	fields = append(fields, zap.String("event", name))
	for k, v := range payload {
		fields = append(fields, zap.Any(k, v))
	}
	s.logger.Debug("orchestrator event", fields...)
}

// TemporalSink signals a running Temporal workflow for every event,
// fire-and-forget: a down or unconfigured Temporal backend must never
// block or fail the caller, so signal errors are only logged.
type TemporalSink struct {
	client     client.Client
	workflowID string
	signalName string
	logger     *zap.Logger
}

func NewTemporalSink(c client.Client, workflowID, signalName string, logger *zap.Logger) *TemporalSink {
	return &TemporalSink{client: c, workflowID: workflowID, signalName: signalName, logger: logger}
}

func (s *TemporalSink) Emit(name string, payload map[string]interface{}) {
	if s.client == nil {
		return
	}
	body := map[string]interface{}{"event": name, "data": payload}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSignalTimeout)
		defer cancel()
		if err := s.client.SignalWorkflow(ctx, s.workflowID, "", s.signalName, body); err != nil {
			s.logger.Warn("temporal signal failed", zap.String("event", name), zap.Error(err))
		}
	}()
}
