package events

import (
	"sync"

	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// Log is a bounded in-memory event recorder. When full, the oldest
// events are discarded. It replaces the free-form text communication
// logs the reference experiments appended per message.
type Log struct {
	mu       sync.Mutex
	capacity int
	events   []types.Event
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 256
	}
	return &Log{
		capacity: capacity,
		events:   make([]types.Event, 0, capacity),
	}
}

func (l *Log) Record(event types.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= l.capacity {
		l.events = l.events[1:]
	}
	l.events = append(l.events, event)
}

// Events returns a copy of the recorded events in arrival order.
func (l *Log) Events() []types.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Event, len(l.events))
	copy(out, l.events)
	return out
}

// CountByType tallies recorded events per type.
func (l *Log) CountByType() map[types.EventType]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[types.EventType]int)
	for _, e := range l.events {
		counts[e.Type]++
	}
	return counts
}
