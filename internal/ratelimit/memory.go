package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold is the tracked key count above which finished windows are dropped.
const pruneThreshold = 4096

type memoryWindow struct {
	start time.Time
	hits  int
}

// memoryCounter keeps windows in process. It never fails.
type memoryCounter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{windows: make(map[string]memoryWindow)}
}

func (m *memoryCounter) incr(_ context.Context, key string, start time.Time, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.windows) > pruneThreshold {
		for k, w := range m.windows {
			if w.start.Before(start) {
				delete(m.windows, k)
			}
		}
	}
	w := m.windows[key]
	if !w.start.Equal(start) {
		w = memoryWindow{start: start}
	}
	w.hits++
	m.windows[key] = w
	return w.hits, nil
}

func (m *memoryCounter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
