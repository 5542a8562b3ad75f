package docstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	if _, ok, err := m.Get(ctx, "calls/alice"); err != nil || ok {
		t.Fatalf("expected missing doc, got ok=%v err=%v", ok, err)
	}

	if err := m.Put(ctx, "calls/alice", Doc{"kind": "offer", "caller_id": "bob"}); err != nil {
		t.Fatal(err)
	}
	doc, ok, err := m.Get(ctx, "calls/alice")
	if err != nil || !ok {
		t.Fatalf("get after put: ok=%v err=%v", ok, err)
	}
	if doc["kind"] != "offer" {
		t.Fatalf("kind = %v", doc["kind"])
	}

	// Merge leaves absent fields alone.
	if err := m.Merge(ctx, "calls/alice", Doc{"kind": "answer"}); err != nil {
		t.Fatal(err)
	}
	doc, _, _ = m.Get(ctx, "calls/alice")
	if doc["kind"] != "answer" || doc["caller_id"] != "bob" {
		t.Fatalf("merge result = %v", doc)
	}

	removed, err := m.Delete(ctx, "calls/alice")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("Delete did not report the removal")
	}
	if _, ok, _ := m.Get(ctx, "calls/alice"); ok {
		t.Fatal("doc survived delete")
	}
	if removed, _ := m.Delete(ctx, "calls/alice"); removed {
		t.Fatal("second delete reported a removal")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	m.Put(ctx, "k", Doc{"n": 1})
	doc, _, _ := m.Get(ctx, "k")
	doc["n"] = 99

	again, _, _ := m.Get(ctx, "k")
	if again["n"] != 1 {
		t.Fatalf("stored doc mutated through a returned copy: %v", again["n"])
	}
}

func TestMemoryPrefixOps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	m.Put(ctx, "calls/a/candidates/b/1", Doc{"candidate": "one"})
	m.Put(ctx, "calls/a/candidates/b/2", Doc{"candidate": "two"})
	m.Put(ctx, "calls/other", Doc{"kind": "offer"})

	docs, err := m.ListPrefix(ctx, "calls/a/candidates/")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("ListPrefix returned %d docs", len(docs))
	}

	if err := m.DeletePrefix(ctx, "calls/a/candidates/"); err != nil {
		t.Fatal(err)
	}
	docs, _ = m.ListPrefix(ctx, "calls/a/candidates/")
	if len(docs) != 0 {
		t.Fatalf("%d docs survived DeletePrefix", len(docs))
	}
	if _, ok, _ := m.Get(ctx, "calls/other"); !ok {
		t.Fatal("unrelated doc was deleted")
	}
}

func TestMemoryWatchOrderAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	got := make(chan Doc, 16)
	cancel := m.Watch("calls/alice", func(doc Doc) { got <- doc })
	defer cancel()

	for i := 1; i <= 3; i++ {
		if err := m.Merge(ctx, "calls/alice", Doc{"seq": i}); err != nil {
			t.Fatal(err)
		}
	}
	m.Delete(ctx, "calls/alice")

	// Mutations of one key must arrive in write order, deletion as nil.
	for want := 1; want <= 3; want++ {
		doc := recvDoc(t, got)
		if doc == nil || doc["seq"] != want {
			t.Fatalf("event %d = %v", want, doc)
		}
	}
	if doc := recvDoc(t, got); doc != nil {
		t.Fatalf("expected nil for deletion, got %v", doc)
	}
}

func TestMemoryWatchPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	type ev struct {
		key string
		doc Doc
	}
	got := make(chan ev, 16)
	cancel := m.WatchPrefix("calls/a/candidates/", func(key string, doc Doc) {
		got <- ev{key, doc}
	})
	defer cancel()

	m.Put(ctx, "calls/a/candidates/b/1", Doc{"candidate": "x"})
	m.Put(ctx, "calls/b", Doc{"kind": "offer"}) // outside the prefix

	select {
	case e := <-got:
		if e.key != "calls/a/candidates/b/1" {
			t.Fatalf("key = %s", e.key)
		}
	case <-time.After(time.Second):
		t.Fatal("no prefix event")
	}

	select {
	case e := <-got:
		t.Fatalf("unexpected event for %s", e.key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryConcurrentWritersDeliverFinalState(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	const writers, writes = 8, 50
	got := make(chan Doc, writers*writes)
	cancel := m.Watch("calls/alice", func(doc Doc) { got <- doc })
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				m.Put(ctx, "calls/alice", Doc{"writer": w, "seq": i})
			}
		}(w)
	}
	wg.Wait()

	// Snapshots are queued while the store lock is held, so the last one
	// delivered must be the document the store ended up with.
	var last Doc
	for i := 0; i < writers*writes; i++ {
		last = recvDoc(t, got)
	}
	final, _, _ := m.Get(ctx, "calls/alice")
	if last["writer"] != final["writer"] || last["seq"] != final["seq"] {
		t.Fatalf("last delivered %v, stored %v", last, final)
	}
}

func TestMemoryWatchCancel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	got := make(chan Doc, 16)
	cancel := m.Watch("k", func(doc Doc) { got <- doc })

	m.Put(ctx, "k", Doc{"n": 1})
	recvDoc(t, got)

	cancel()
	m.Put(ctx, "k", Doc{"n": 2})

	select {
	case doc := <-got:
		t.Fatalf("event after cancel: %v", doc)
	case <-time.After(50 * time.Millisecond):
	}
}

func recvDoc(t *testing.T, ch chan Doc) Doc {
	t.Helper()
	select {
	case doc := <-ch:
		return doc
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch event")
		return nil
	}
}
