package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Local is an in-process bus. Slow subscribers lose events rather than
// stall the publisher.
type Local struct {
	buffer int

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event

	dropped atomic.Int64
}

func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 64
	}
	return &Local{buffer: buffer, subs: make(map[int]chan Event)}
}

func (l *Local) Publish(ctx context.Context, e Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
			l.dropped.Add(1)
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, l.buffer)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		close(ch)
		l.mu.Unlock()
	}()
	return ch, nil
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (l *Local) Dropped() int64 {
	return l.dropped.Load()
}
