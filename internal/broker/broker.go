// Package broker implements the MessageBroker: per-agent priority inboxes,
// topic pub/sub fan-out, and request/response correlation between agents.
package broker

import (
	"sync"
	"time"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/ids"
)

const defaultInboxCapacity = 256

// inbox is a per-agent priority-ordered mailbox with bounded capacity;
// once full, the oldest message of the lowest non-empty priority lane is
// evicted to admit the new message, whatever the new message's priority.
type inbox struct {
	lanes map[domain.Priority][]*domain.Message
	size  int
}

func newInbox() *inbox {
	lanes := make(map[domain.Priority][]*domain.Message, len(domain.Priorities))
	for _, p := range domain.Priorities {
		lanes[p] = nil
	}
	return &inbox{lanes: lanes}
}

// push admits msg, evicting the lowest-priority queued message first if the
// inbox is already at capacity. It returns the message that was dropped as
// a result (either the evicted incumbent, or msg itself if the inbox could
// not evict anything to make room), or nil if nothing was dropped.
func (b *inbox) push(msg *domain.Message, capacity int) (dropped *domain.Message) {
	if b.size >= capacity {
		evicted, ok := b.evictLowest()
		if !ok {
			return msg
		}
		dropped = evicted
	}
	b.lanes[msg.Priority] = append(b.lanes[msg.Priority], msg)
	b.size++
	return dropped
}

func (b *inbox) evictLowest() (*domain.Message, bool) {
	for _, p := range reversePriorities() {
		lane := b.lanes[p]
		if len(lane) > 0 {
			evicted := lane[0]
			b.lanes[p] = lane[1:]
			b.size--
			return evicted, true
		}
	}
	return nil, false
}

func reversePriorities() []domain.Priority {
	out := make([]domain.Priority, len(domain.Priorities))
	for i, p := range domain.Priorities {
		out[len(out)-1-i] = p
	}
	return out
}

func (b *inbox) drain() []*domain.Message {
	out := make([]*domain.Message, 0, b.size)
	for _, p := range domain.Priorities {
		out = append(out, b.lanes[p]...)
		b.lanes[p] = nil
	}
	b.size = 0
	return out
}

func (b *inbox) peek() []*domain.Message {
	out := make([]*domain.Message, 0, b.size)
	for _, p := range domain.Priorities {
		out = append(out, b.lanes[p]...)
	}
	return out
}

// pendingRequest tracks an in-flight request awaiting its correlated reply.
type pendingRequest struct {
	reply   chan *domain.Message
	created time.Time
}

// Broker is safe for concurrent use.
type Broker struct {
	mu          sync.RWMutex
	inboxes     map[string]*inbox
	subscribers map[string]domain.StringSet // topic -> set of agentIDs
	history     []*domain.Message
	pending     map[string]*pendingRequest
	clock       domain.Clock
	sink        domain.EventSink
	capacity    int
	historyTTL  time.Duration
}

// Option configures optional Broker behavior at construction time.
type Option func(*Broker)

// WithInboxCapacity overrides the default per-agent inbox capacity.
func WithInboxCapacity(n int) Option {
	return func(b *Broker) { b.capacity = n }
}

func New(clock domain.Clock, sink domain.EventSink, opts ...Option) *Broker {
	if sink == nil {
		sink = domain.NopSink{}
	}
	b := &Broker{
		inboxes:     make(map[string]*inbox),
		subscribers: make(map[string]domain.StringSet),
		pending:     make(map[string]*pendingRequest),
		clock:       clock,
		sink:        sink,
		capacity:    defaultInboxCapacity,
		historyTTL:  time.Hour,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) RegisterAgent(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inboxes[agentID]; !ok {
		b.inboxes[agentID] = newInbox()
	}
}

func (b *Broker) UnregisterAgent(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inboxes, agentID)
	for topic, subs := range b.subscribers {
		delete(subs, agentID)
		if len(subs) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

func (b *Broker) Subscribe(agentID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[topic]
	if !ok {
		subs = domain.NewStringSet()
		b.subscribers[topic] = subs
	}
	subs.Add(agentID)
}

func (b *Broker) Unsubscribe(agentID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[topic]; ok {
		delete(subs, agentID)
	}
}

// SendMessage routes msg to msg.To directly, or fans it out to every
// subscriber of msg.Type other than the sender when msg.To is empty
// (broadcast). It stamps ID and Timestamp, and records a request in the
// correlation table when msg.Kind is MessageRequest. A queue.overflow
// event fires for every message dropped to make room in a recipient's
// inbox.
func (b *Broker) SendMessage(msg domain.Message) (*domain.Message, error) {
	msg.ID = ids.New(ids.KindMessage)
	msg.Timestamp = b.clock.Now()

	b.mu.Lock()

	b.history = append(b.history, &msg)

	if msg.Kind == domain.MessageRequest {
		msg.CorrelationID = msg.ID
		b.pending[msg.CorrelationID] = &pendingRequest{reply: make(chan *domain.Message, 1), created: b.clock.Now()}
	}
	if msg.Kind == domain.MessageResponse && msg.CorrelationID != "" {
		if p, ok := b.pending[msg.CorrelationID]; ok {
			select {
			case p.reply <- &msg:
			default:
			}
		}
	}

	var dropped []overflowDrop

	if msg.To != "" {
		box, ok := b.inboxes[msg.To]
		if !ok {
			b.mu.Unlock()
			return nil, domain.New("SendMessage", domain.KindNotFound, "agent %s not registered", msg.To)
		}
		if d := box.push(&msg, b.capacity); d != nil {
			dropped = append(dropped, overflowDrop{agentID: msg.To, msg: d})
		}
	} else {
		subs := b.subscribers[msg.Type]
		for agentID := range subs {
			if agentID == msg.From {
				continue
			}
			if box, ok := b.inboxes[agentID]; ok {
				if d := box.push(&msg, b.capacity); d != nil {
					dropped = append(dropped, overflowDrop{agentID: agentID, msg: d})
				}
			}
		}
	}

	b.mu.Unlock()

	for _, d := range dropped {
		b.sink.Emit(domain.EventQueueOverflow, map[string]interface{}{
			"agentId":          d.agentID,
			"droppedMessageId": d.msg.ID,
		})
	}

	return &msg, nil
}

type overflowDrop struct {
	agentID string
	msg     *domain.Message
}

// AwaitResponse blocks until a response correlated to correlationID arrives
// or timeout elapses.
func (b *Broker) AwaitResponse(correlationID string, timeout time.Duration) (*domain.Message, error) {
	b.mu.RLock()
	p, ok := b.pending[correlationID]
	b.mu.RUnlock()
	if !ok {
		return nil, domain.New("AwaitResponse", domain.KindNotFound, "no pending request %s", correlationID)
	}
	select {
	case msg := <-p.reply:
		b.mu.Lock()
		delete(b.pending, correlationID)
		b.mu.Unlock()
		return msg, nil
	case <-time.After(timeout):
		b.mu.Lock()
		delete(b.pending, correlationID)
		b.mu.Unlock()
		return nil, domain.New("AwaitResponse", domain.KindTimeout, "no response for %s within %s", correlationID, timeout)
	}
}

// GetMessages drains an agent's inbox (priority order, oldest-first within
// a lane).
func (b *Broker) GetMessages(agentID string) []*domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	box, ok := b.inboxes[agentID]
	if !ok {
		return nil
	}
	return box.drain()
}

// PeekMessages returns an agent's pending messages without removing them.
func (b *Broker) PeekMessages(agentID string) []*domain.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	box, ok := b.inboxes[agentID]
	if !ok {
		return nil
	}
	return box.peek()
}

// AcknowledgeMessage removes one specific message from an agent's inbox
// without draining the rest, used when an agent processes messages
// out of strict FIFO order.
func (b *Broker) AcknowledgeMessage(agentID, messageID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	box, ok := b.inboxes[agentID]
	if !ok {
		return false
	}
	for p, lane := range box.lanes {
		for i, m := range lane {
			if m.ID == messageID {
				box.lanes[p] = append(lane[:i], lane[i+1:]...)
				box.size--
				return true
			}
		}
	}
	return false
}

func (b *Broker) GetMessage(messageID string) (*domain.Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.history {
		if m.ID == messageID {
			return m, true
		}
	}
	return nil, false
}

type Stats struct {
	HistorySize    int
	PendingInboxes int
	PendingReplies int
}

func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, box := range b.inboxes {
		total += box.size
	}
	return Stats{HistorySize: len(b.history), PendingInboxes: total, PendingReplies: len(b.pending)}
}

// SweepHistory drops history entries and abandoned pending requests older
// than the broker's historyTTL. Intended to be driven by a periodic sweep.
func (b *Broker) SweepHistory() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	kept := b.history[:0]
	removed := 0
	for _, m := range b.history {
		if now.Sub(m.Timestamp) > b.historyTTL {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	b.history = kept

	for id, p := range b.pending {
		if now.Sub(p.created) > b.historyTTL {
			delete(b.pending, id)
		}
	}
	return removed
}
