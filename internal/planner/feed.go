package planner

import "sync"

// Event reports one finished planning run.
type Event struct {
	RegionID string `json:"region"`
	RunID    string `json:"run_id,omitempty"`
	Outcome  string `json:"outcome"` // "ok" or "failed"
	Detail   string `json:"detail,omitempty"`
	Levels   int    `json:"levels,omitempty"`
	At       int64  `json:"at"`
}

// Feed fans run events out to subscribers. Slow subscribers miss events
// rather than stall a planner.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// Subscribe registers a listener with room for buffer pending events.
func (f *Feed) Subscribe(buffer int) (int, <-chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]chan Event)
	}
	f.nextID++
	ch := make(chan Event, buffer)
	f.subs[f.nextID] = ch
	return f.nextID, ch
}

// Unsubscribe removes a listener and closes its channel.
func (f *Feed) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of registered listeners.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Publish delivers e to every listener with buffer space and returns how
// many were skipped.
func (f *Feed) Publish(e Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	dropped := 0
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	return dropped
}
