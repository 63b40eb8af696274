package storage

import "sync"

// Notifier is the store's change-notification feed. It emits whenever the
// item or item-authorization collections change, regardless of which
// component caused the change.
//
// Subscriber channels have a buffer of one and notifications are coalesced:
// a subscriber that has not drained its channel yet will see pending
// notifications collapse into a single wakeup. Registration and removal are
// synchronized internally, so many concurrent listeners are safe.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[chan struct{}]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[chan struct{}]struct{})}
}

// Subscribe registers a listener and returns its channel together with an
// unsubscribe function. The unsubscribe function is idempotent.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	n.subscribers[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subscribers, ch)
			n.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// Notify wakes all current subscribers without blocking.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
