package docstore

import (
	"strings"
	"sync"
)

// hub fans document change events out to watchers. Each watcher gets its own
// ordered queue drained by a dedicated goroutine, so delivery to one slow
// watcher never blocks the writer or reorders events for another watcher.
// The memory and SQLite backends share this; the Redis backend gets the same
// behaviour from pub/sub connections.
type hub struct {
	mu   sync.Mutex
	subs map[*watcher]struct{}
}

type watcher struct {
	key      string
	isPrefix bool
	fn       func(key string, doc Doc)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []docEvent
	closed bool
}

type docEvent struct {
	key string
	doc Doc
}

func newHub() *hub {
	return &hub{subs: make(map[*watcher]struct{})}
}

func (h *hub) watch(key string, isPrefix bool, fn func(key string, doc Doc)) (cancel func()) {
	w := &watcher{key: key, isPrefix: isPrefix, fn: fn}
	w.cond = sync.NewCond(&w.mu)

	h.mu.Lock()
	h.subs[w] = struct{}{}
	h.mu.Unlock()

	go w.drain()

	return func() {
		h.mu.Lock()
		delete(h.subs, w)
		h.mu.Unlock()
		w.close()
	}
}

// publish queues the event for every matching watcher. Each watcher receives
// its own clone of the document.
func (h *hub) publish(key string, doc Doc) {
	h.mu.Lock()
	targets := make([]*watcher, 0, len(h.subs))
	for w := range h.subs {
		if w.matches(key) {
			targets = append(targets, w)
		}
	}
	h.mu.Unlock()

	for _, w := range targets {
		w.enqueue(docEvent{key: key, doc: doc.Clone()})
	}
}

func (h *hub) close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*watcher]struct{})
	h.mu.Unlock()

	for w := range subs {
		w.close()
	}
}

func (w *watcher) matches(key string) bool {
	if w.isPrefix {
		return strings.HasPrefix(key, w.key)
	}
	return key == w.key
}

func (w *watcher) enqueue(ev docEvent) {
	w.mu.Lock()
	if !w.closed {
		w.queue = append(w.queue, ev)
		w.cond.Signal()
	}
	w.mu.Unlock()
}

func (w *watcher) close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Signal()
	w.mu.Unlock()
}

// drain delivers queued events in order until the watcher is closed. The
// callback runs outside the lock, so it may call back into the store.
func (w *watcher) drain() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		ev := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.fn(ev.key, ev.doc)
	}
}
