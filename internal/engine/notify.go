package engine

import (
	"sync"

	"github.com/millbrook-data/strata/pkg/core"
)

// Notifier broadcasts run snapshots to all subscribed listeners.
// The runner publishes a full-graph snapshot on every status
// transition; listeners that fall behind miss intermediate snapshots
// but never observe state out of order.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan core.RunSnapshot]struct{}
}

// NewNotifier creates a new Notifier instance.
func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[chan core.RunSnapshot]struct{}),
	}
}

// Subscribe returns a channel that receives snapshots as the run
// progresses. The caller must call Unsubscribe when done to prevent
// goroutine leaks.
func (n *Notifier) Subscribe() chan core.RunSnapshot {
	ch := make(chan core.RunSnapshot, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan core.RunSnapshot) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Broadcast sends a snapshot to all listeners.
// Non-blocking: if a listener's channel is full, the stale snapshot is
// replaced with the current one so slow listeners always see the most
// recent state.
func (n *Notifier) Broadcast(snap core.RunSnapshot) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot and try once more.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
