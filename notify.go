package amigos

import "sync"

// NotificationCounter tracks the number of unseen events (new matches and
// messages) for badge display, independent of which conversation is open.
// It is safe for concurrent use: live events arrive on the realtime read
// loop while reseeds and view resets come from the caller's goroutines.
type NotificationCounter struct {
	mu       sync.Mutex
	count    int
	onChange func(int)
}

func NewNotificationCounter() *NotificationCounter {
	return &NotificationCounter{}
}

// OnChange sets an observer invoked with the new value after every mutation.
// The observer runs under the counter's lock and must not call back in.
func (n *NotificationCounter) OnChange(h func(count int)) {
	n.mu.Lock()
	n.onChange = h
	n.mu.Unlock()
}

// Reseed overwrites the counter with a server-authoritative count. Called
// once after the session establishes.
func (n *NotificationCounter) Reseed(count int) {
	if count < 0 {
		count = 0
	}
	n.set(count)
}

// Bump increments the counter by exactly one. Invoked once per live event,
// regardless of the event's content.
func (n *NotificationCounter) Bump() {
	n.mu.Lock()
	n.count++
	c, h := n.count, n.onChange
	if h != nil {
		h(c)
	}
	n.mu.Unlock()
}

// MarkViewed resets the counter to zero. Called when the user navigates into
// the view that consumes the notifications.
func (n *NotificationCounter) MarkViewed() {
	n.set(0)
}

// Value returns the current count.
func (n *NotificationCounter) Value() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func (n *NotificationCounter) set(count int) {
	n.mu.Lock()
	n.count = count
	c, h := n.count, n.onChange
	if h != nil {
		h(c)
	}
	n.mu.Unlock()
}
