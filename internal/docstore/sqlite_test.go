package docstore

import (
	"context"
	"testing"
	"time"
)

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenSQLite(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "calls/alice", Doc{"kind": "offer", "caller_id": "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenSQLite(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	doc, ok, err := s.Get(ctx, "calls/alice")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if doc["kind"] != "offer" || doc["caller_id"] != "bob" {
		t.Fatalf("doc = %v", doc)
	}
}

func TestSQLiteMergeAndNumbers(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Put(ctx, "k", Doc{"kind": "offer", "ts": int64(1234)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Merge(ctx, "k", Doc{"kind": "answer"}); err != nil {
		t.Fatal(err)
	}

	doc, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if doc["kind"] != "answer" {
		t.Fatalf("kind = %v", doc["kind"])
	}
	// Numbers come back as float64 after the JSON round trip.
	if ts, ok := doc["ts"].(float64); !ok || ts != 1234 {
		t.Fatalf("ts = %#v", doc["ts"])
	}
}

func TestSQLiteMergeIntoMissingDoc(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Merge(ctx, "fresh", Doc{"kind": "offer"}); err != nil {
		t.Fatal(err)
	}
	doc, ok, _ := s.Get(ctx, "fresh")
	if !ok || doc["kind"] != "offer" {
		t.Fatalf("merge did not create doc: ok=%v doc=%v", ok, doc)
	}
}

func TestSQLitePrefixAndWatch(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got := make(chan Doc, 16)
	cancel := s.Watch("calls/alice", func(doc Doc) { got <- doc })
	defer cancel()

	s.Put(ctx, "calls/alice", Doc{"kind": "offer"})
	s.Put(ctx, "calls/alice/candidates/bob/1", Doc{"candidate": "x"})
	s.Put(ctx, "calls/alice/candidates/bob/2", Doc{"candidate": "y"})

	select {
	case doc := <-got:
		if doc["kind"] != "offer" {
			t.Fatalf("watched doc = %v", doc)
		}
	case <-time.After(time.Second):
		t.Fatal("no watch event")
	}

	docs, err := s.ListPrefix(ctx, "calls/alice/candidates/")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("ListPrefix returned %d docs", len(docs))
	}

	if err := s.DeletePrefix(ctx, "calls/alice/candidates/"); err != nil {
		t.Fatal(err)
	}
	docs, _ = s.ListPrefix(ctx, "calls/alice/candidates/")
	if len(docs) != 0 {
		t.Fatalf("%d docs survived DeletePrefix", len(docs))
	}

	// The exact-key watch must not have seen the candidate keys.
	select {
	case doc := <-got:
		t.Fatalf("unexpected event: %v", doc)
	case <-time.After(50 * time.Millisecond):
	}

	// Deleting the watched doc delivers nil.
	s.Delete(ctx, "calls/alice")
	select {
	case doc := <-got:
		if doc != nil {
			t.Fatalf("expected nil on delete, got %v", doc)
		}
	case <-time.After(time.Second):
		t.Fatal("no delete event")
	}
}

func TestSQLiteDeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	removed, err := s.Delete(ctx, "never-written")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Fatal("Delete reported removing a doc that never existed")
	}
	if err := s.DeletePrefix(ctx, "no/such/prefix/"); err != nil {
		t.Fatal(err)
	}
}
