package docstore

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Store. Used by tests and by peers that do not need
// signaling state to survive a restart.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Doc
	hub  *hub
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]Doc),
		hub:  newHub(),
	}
}

func (m *Memory) Get(_ context.Context, key string) (Doc, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return doc.Clone(), true, nil
}

func (m *Memory) Put(_ context.Context, key string, doc Doc) error {
	// publish runs while mu is held so watcher queues see mutations of one
	// key in map order; enqueue never blocks, so this is safe.
	m.mu.Lock()
	m.docs[key] = doc.Clone()
	m.hub.publish(key, m.docs[key])
	m.mu.Unlock()
	return nil
}

func (m *Memory) Merge(_ context.Context, key string, fields Doc) error {
	m.mu.Lock()
	m.docs[key] = merged(m.docs[key], fields)
	m.hub.publish(key, m.docs[key])
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	_, existed := m.docs[key]
	delete(m.docs, key)
	if existed {
		m.hub.publish(key, nil)
	}
	m.mu.Unlock()
	return existed, nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for key := range m.docs {
		if strings.HasPrefix(key, prefix) {
			delete(m.docs, key)
			m.hub.publish(key, nil)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListPrefix(_ context.Context, prefix string) (map[string]Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Doc)
	for key, doc := range m.docs {
		if strings.HasPrefix(key, prefix) {
			out[key] = doc.Clone()
		}
	}
	return out, nil
}

func (m *Memory) Watch(key string, fn func(Doc)) (cancel func()) {
	return m.hub.watch(key, false, func(_ string, doc Doc) { fn(doc) })
}

func (m *Memory) WatchPrefix(prefix string, fn func(key string, doc Doc)) (cancel func()) {
	return m.hub.watch(prefix, true, fn)
}

func (m *Memory) Close() error {
	m.hub.close()
	return nil
}
