// Package docstore provides a small keyed document store with per-document
// change notification. Documents are flat JSON objects addressed by
// slash-separated string keys ("calls/<user>", "calls/<user>/candidates/...").
//
// Three backends exist: an in-memory store (tests, single-process dev), a
// SQLite-backed store (persistent, single-process), and a Redis-backed store
// (shared between processes, change push via pub/sub). The signaling layer
// only depends on the Store interface.
package docstore

import "context"

// Doc holds one document's fields. Values are whatever encoding/json produces
// for the stored object (string, float64, bool, nested map). A nil Doc
// delivered to a watcher means the document was deleted.
type Doc map[string]any

// Clone returns a shallow copy of the document. Watchers receive clones so a
// receiver mutating its snapshot cannot corrupt the store or other watchers.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Store is a push-notify document store.
//
// Watch delivers every future mutation of the addressed document, in write
// order, as a full snapshot (nil on delete). There is no ordering guarantee
// between different documents. Delete and DeletePrefix are no-ops when
// nothing matches.
type Store interface {
	Get(ctx context.Context, key string) (Doc, bool, error)
	Put(ctx context.Context, key string, doc Doc) error

	// Merge upserts the given fields into the document, leaving unrelated
	// fields untouched.
	Merge(ctx context.Context, key string, fields Doc) error

	// Delete reports whether a document was actually removed. Watchers see
	// a nil snapshot only in that case, so a caller watching its own key
	// knows whether its delete will echo back.
	Delete(ctx context.Context, key string) (bool, error)
	DeletePrefix(ctx context.Context, prefix string) error
	ListPrefix(ctx context.Context, prefix string) (map[string]Doc, error)

	Watch(key string, fn func(Doc)) (cancel func())
	WatchPrefix(prefix string, fn func(key string, doc Doc)) (cancel func())

	Close() error
}

// merged returns base with the fields of overlay applied on top.
// Used by the backends to implement Merge's upsert semantics.
func merged(base, overlay Doc) Doc {
	out := base.Clone()
	if out == nil {
		out = make(Doc, len(overlay))
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
