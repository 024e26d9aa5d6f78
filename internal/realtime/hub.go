package realtime

import (
	"sync"
)

// Metrics is implemented by observability.Prom.
type Metrics interface {
	SubscriberAdded(table string)
	SubscriberRemoved(table string)
	ChangePublished(table string)
	ChangeDropped(table, reason string)
}

type nopMetrics struct{}

func (nopMetrics) SubscriberAdded(string)       {}
func (nopMetrics) SubscriberRemoved(string)     {}
func (nopMetrics) ChangePublished(string)       {}
func (nopMetrics) ChangeDropped(string, string) {}

const (
	DropDuplicate = "duplicate"
	DropSlow      = "slow_subscriber"
)

// Hub delivers each change to every subscription of its table. Publish never
// blocks: a subscriber whose buffer is full misses the change.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*Subscription]struct{}
	seen    *idWindow
	buffer  int
	metrics Metrics
	closed  bool
}

type Option func(*Hub)

func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithDedupWindow sets how many recent change ids are remembered.
func WithDedupWindow(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.seen = newIDWindow(n)
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:    make(map[string]map[*Subscription]struct{}),
		seen:    newIDWindow(4096),
		buffer:  64,
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type Subscription struct {
	table string
	ch    chan Change
	hub   *Hub
	once  sync.Once
}

func (s *Subscription) Table() string { return s.table }

// Changes is closed when the subscription or the hub is closed.
func (s *Subscription) Changes() <-chan Change { return s.ch }

func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (h *Hub) Subscribe(table string) (*Subscription, error) {
	if !KnownTable(table) {
		return nil, ErrUnknownTable
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	s := &Subscription{table: table, ch: make(chan Change, h.buffer), hub: h}
	if h.subs[table] == nil {
		h.subs[table] = make(map[*Subscription]struct{})
	}
	h.subs[table][s] = struct{}{}
	h.metrics.SubscriberAdded(table)

	return s, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s.table][s]; !ok {
		return
	}
	delete(h.subs[s.table], s)
	h.metrics.SubscriberRemoved(s.table)
	s.once.Do(func() { close(s.ch) })
}

func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	if c.ChangeID != "" && !h.seen.add(c.ChangeID) {
		h.metrics.ChangeDropped(c.Table, DropDuplicate)
		return
	}
	h.metrics.ChangePublished(c.Table)

	for s := range h.subs[c.Table] {
		select {
		case s.ch <- c:
		default:
			h.metrics.ChangeDropped(c.Table, DropSlow)
		}
	}
}

// Subscribers returns the number of live subscriptions for table.
func (h *Hub) Subscribers(table string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[table])
}

// Close ends every subscription. Later Publish calls are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for table, set := range h.subs {
		for s := range set {
			h.metrics.SubscriberRemoved(table)
			s.once.Do(func() { close(s.ch) })
		}
	}
	h.subs = nil
}

// idWindow remembers the last n ids in insertion order.
type idWindow struct {
	ring []string
	next int
	set  map[string]struct{}
}

func newIDWindow(n int) *idWindow {
	return &idWindow{ring: make([]string, n), set: make(map[string]struct{}, n)}
}

// add reports false if id is already in the window.
func (w *idWindow) add(id string) bool {
	if _, dup := w.set[id]; dup {
		return false
	}
	if old := w.ring[w.next]; old != "" {
		delete(w.set, old)
	}
	w.ring[w.next] = id
	w.set[id] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
	return true
}
