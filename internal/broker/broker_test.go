package broker_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumlayer-dev/agentmesh/internal/broker"
	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

// recordingSink captures every emitted event for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name    string
	payload map[string]interface{}
}

func (s *recordingSink) Emit(name string, payload map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{name: name, payload: payload})
}

func (s *recordingSink) find(name string) []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedEvent
	for _, e := range s.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

func TestSendMessageDirectRouting(t *testing.T) {
	b := broker.New(domain.NewFixedClock(time.Now()), nil)
	b.RegisterAgent("agent-1")

	_, err := b.SendMessage(domain.Message{From: "agent-2", To: "agent-1", Type: "ping", Priority: domain.PriorityNormal})
	require.NoError(t, err)

	msgs := b.GetMessages("agent-1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "ping", msgs[0].Type)
	assert.Empty(t, b.GetMessages("agent-1"), "drained inbox stays empty")
}

func TestSendMessageUnknownTargetErrors(t *testing.T) {
	b := broker.New(domain.NewFixedClock(time.Now()), nil)
	_, err := b.SendMessage(domain.Message{To: "ghost", Type: "ping"})
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestBroadcastFansOutToSubscribers(t *testing.T) {
	b := broker.New(domain.NewFixedClock(time.Now()), nil)
	b.RegisterAgent("agent-1")
	b.RegisterAgent("agent-2")
	b.Subscribe("agent-1", "status")
	b.Subscribe("agent-2", "status")

	_, err := b.SendMessage(domain.Message{Type: "status", Priority: domain.PriorityNormal})
	require.NoError(t, err)

	assert.Len(t, b.GetMessages("agent-1"), 1)
	assert.Len(t, b.GetMessages("agent-2"), 1)
}

func TestBroadcastExcludesSender(t *testing.T) {
	b := broker.New(domain.NewFixedClock(time.Now()), nil)
	b.RegisterAgent("agent-1")
	b.RegisterAgent("agent-2")
	b.Subscribe("agent-1", "heartbeat")
	b.Subscribe("agent-2", "heartbeat")

	_, err := b.SendMessage(domain.Message{From: "agent-1", Type: "heartbeat", Priority: domain.PriorityNormal})
	require.NoError(t, err)

	assert.Empty(t, b.GetMessages("agent-1"), "sender must not receive its own broadcast")
	assert.Len(t, b.GetMessages("agent-2"), 1)
}

func TestInboxOverflowEvictsOldestAndEmits(t *testing.T) {
	sink := &recordingSink{}
	b := broker.New(domain.NewFixedClock(time.Now()), sink, broker.WithInboxCapacity(2))
	b.RegisterAgent("agent-1")

	m1, err := b.SendMessage(domain.Message{To: "agent-1", Type: "m1", Priority: domain.PriorityNormal})
	require.NoError(t, err)
	_, err = b.SendMessage(domain.Message{To: "agent-1", Type: "m2", Priority: domain.PriorityNormal})
	require.NoError(t, err)
	_, err = b.SendMessage(domain.Message{To: "agent-1", Type: "m3", Priority: domain.PriorityNormal})
	require.NoError(t, err)

	msgs := b.PeekMessages("agent-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].Type)
	assert.Equal(t, "m3", msgs[1].Type)

	overflows := sink.find(domain.EventQueueOverflow)
	require.Len(t, overflows, 1)
	assert.Equal(t, m1.ID, overflows[0].payload["droppedMessageId"])
	assert.Equal(t, "agent-1", overflows[0].payload["agentId"])
}

func TestPriorityOrderingWithinInbox(t *testing.T) {
	b := broker.New(domain.NewFixedClock(time.Now()), nil)
	b.RegisterAgent("agent-1")

	_, err := b.SendMessage(domain.Message{To: "agent-1", Type: "a", Priority: domain.PriorityLow})
	require.NoError(t, err)
	_, err = b.SendMessage(domain.Message{To: "agent-1", Type: "b", Priority: domain.PriorityCritical})
	require.NoError(t, err)

	msgs := b.GetMessages("agent-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].Type)
	assert.Equal(t, "a", msgs[1].Type)
}

func TestRequestResponseCorrelation(t *testing.T) {
	b := broker.New(domain.NewFixedClock(time.Now()), nil)
	b.RegisterAgent("agent-1")

	sent, err := b.SendMessage(domain.Message{From: "caller", To: "agent-1", Type: "work", Kind: domain.MessageRequest, Priority: domain.PriorityNormal})
	require.NoError(t, err)
	require.NotEmpty(t, sent.CorrelationID)

	go func() {
		_, _ = b.SendMessage(domain.Message{From: "agent-1", To: "caller", Type: "work.reply", Kind: domain.MessageResponse, CorrelationID: sent.CorrelationID, Priority: domain.PriorityNormal})
	}()

	reply, err := b.AwaitResponse(sent.CorrelationID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "work.reply", reply.Type)
}

func TestAwaitResponseTimesOut(t *testing.T) {
	b := broker.New(domain.NewFixedClock(time.Now()), nil)
	b.RegisterAgent("agent-1")
	sent, err := b.SendMessage(domain.Message{To: "agent-1", Type: "work", Kind: domain.MessageRequest, Priority: domain.PriorityNormal})
	require.NoError(t, err)

	_, err = b.AwaitResponse(sent.CorrelationID, 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
}

func TestSweepHistoryRemovesExpiredEntries(t *testing.T) {
	clock := domain.NewFixedClock(time.Now())
	b := broker.New(clock, nil)
	b.RegisterAgent("agent-1")
	_, err := b.SendMessage(domain.Message{To: "agent-1", Type: "ping", Priority: domain.PriorityNormal})
	require.NoError(t, err)

	assert.Equal(t, 0, b.SweepHistory())
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, b.SweepHistory())
}
