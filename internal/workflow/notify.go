package workflow

import "sync"

// StateChange is an explicit state-change notification. Subscribers
// receive one per transition, stamped with a logical clock value, so any
// UI binding (or none) can observe the workflow without the workflow
// knowing about it.
type StateChange struct {
	From string `json:"from"`
	To   string `json:"to"`
	Seq  int64  `json:"seq"`
}

// Notifier fans state changes out to subscribers.
//
// Delivery is best-effort: a subscriber that falls behind its channel
// buffer misses notifications rather than blocking the workflow's writer.
// Subscribers needing a consistent view should query the workflow
// directly after waking.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan StateChange
	next int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan StateChange)}
}

// Subscribe registers a subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (n *Notifier) Subscribe() (<-chan StateChange, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan StateChange, 16)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish sends a change to all subscribers without blocking.
func (n *Notifier) publish(change StateChange) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- change:
		default:
			// Subscriber buffer full - drop rather than block the writer.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
// Used for testing.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
