package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/reel/internal/shared"
)

// memoryArea is the data shared by sibling [Memory] handles.
type memoryArea struct {
	mu       sync.Mutex
	data     map[string]string
	used     int
	quota    int
	watchers map[*watcher]struct{}
}

type watcher struct {
	origin string
	ch     chan Event
}

// Memory is an in-process [Storage]. Handles returned by [Memory.Sibling] share data and
// receive each other's change events.
type Memory struct {
	area   *memoryArea
	origin string

	mu       sync.Mutex
	closed   bool
	done     chan struct{}
	watchers []*watcher
}

var _ Storage = (*Memory)(nil)

// NewMemory creates an empty area and returns its first handle.
func NewMemory(opts Options) *Memory {
	area := &memoryArea{
		data:     make(map[string]string),
		quota:    opts.QuotaBytes,
		watchers: make(map[*watcher]struct{}),
	}
	return &Memory{area: area, origin: shared.GenerateID(), done: make(chan struct{})}
}

// Sibling returns a new handle on the same area, like a second browser tab.
func (m *Memory) Sibling() *Memory {
	return &Memory{area: m.area, origin: shared.GenerateID(), done: make(chan struct{})}
}

// Origin identifies this handle in the events it causes.
func (m *Memory) Origin() string { return m.origin }

// Get returns the value stored at key.
func (m *Memory) Get(key string) (string, bool, error) {
	if err := m.checkOpen(); err != nil {
		return "", false, err
	}

	m.area.mu.Lock()
	defer m.area.mu.Unlock()

	v, ok := m.area.data[key]
	return v, ok, nil
}

// Set stores value at key, failing with [shared.ErrQuotaExceeded] when the area would
// exceed its quota. Writing an unchanged value raises no event.
func (m *Memory) Set(key, value string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	a := m.area
	a.mu.Lock()
	defer a.mu.Unlock()

	old, exists := a.data[key]
	if exists && old == value {
		return nil
	}

	used := a.used + len(value)
	if exists {
		used -= len(old)
	} else {
		used += len(key)
	}
	if a.quota > 0 && used > a.quota {
		return fmt.Errorf("%w: %d of %d bytes", shared.ErrQuotaExceeded, used, a.quota)
	}

	a.data[key] = value
	a.used = used
	a.broadcast(Event{Key: key, Value: value, Origin: m.origin})
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(key string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	a := m.area
	a.mu.Lock()
	defer a.mu.Unlock()

	old, exists := a.data[key]
	if !exists {
		return nil
	}

	delete(a.data, key)
	a.used -= len(key) + len(old)
	a.broadcast(Event{Key: key, Removed: true, Origin: m.origin})
	return nil
}

// Keys lists every key in lexical order.
func (m *Memory) Keys() ([]string, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	m.area.mu.Lock()
	defer m.area.mu.Unlock()
	return sortedKeys(m.area.data), nil
}

// Watch streams events from sibling handles until ctx is done or the handle is closed.
func (m *Memory) Watch(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, shared.ErrStorageClosed
	}

	w := &watcher{origin: m.origin, ch: make(chan Event, eventBuffer)}
	m.area.mu.Lock()
	m.area.watchers[w] = struct{}{}
	m.area.mu.Unlock()
	m.watchers = append(m.watchers, w)

	go func() {
		select {
		case <-ctx.Done():
		case <-m.done:
		}
		m.area.unregister(w)
	}()

	return w.ch, nil
}

// Close ends this handle's watchers. The area stays usable through other handles.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)

	for _, w := range m.watchers {
		m.area.unregister(w)
	}
	m.watchers = nil
	return nil
}

func (m *Memory) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return shared.ErrStorageClosed
	}
	return nil
}

// broadcast must be called with a.mu held.
func (a *memoryArea) broadcast(ev Event) {
	for w := range a.watchers {
		if w.origin != ev.Origin {
			notify(w.ch, ev)
		}
	}
}

func (a *memoryArea) unregister(w *watcher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.watchers[w]; ok {
		delete(a.watchers, w)
		close(w.ch)
	}
}
