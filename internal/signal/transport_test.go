package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avdwoude/callbox/internal/docstore"
)

func TestPublishWatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	defer store.Close()
	tr := NewTransport(store)

	got := make(chan *CallRecord, 16)
	cancel := tr.Watch("bob", func(rec *CallRecord) { got <- rec })
	defer cancel()

	err := tr.Publish(ctx, "bob", CallRecord{
		Kind:        KindOffer,
		CallerID:    "alice",
		MediaKind:   MediaVideo,
		Description: &SessionDescription{Type: "offer", SDP: "v=0\r\n"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := recvRecord(t, got)
	if rec == nil {
		t.Fatal("got nil record")
	}
	if rec.Kind != KindOffer || rec.CallerID != "alice" || rec.MediaKind != MediaVideo {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Description == nil || rec.Description.SDP != "v=0\r\n" {
		t.Fatalf("description = %+v", rec.Description)
	}
	if rec.Timestamp == 0 {
		t.Fatal("timestamp was not defaulted")
	}
}

func TestPublishOrderPerMailbox(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	defer store.Close()
	tr := NewTransport(store)

	got := make(chan *CallRecord, 16)
	cancel := tr.Watch("bob", func(rec *CallRecord) { got <- rec })
	defer cancel()

	kinds := []RecordKind{KindOffer, KindAnswer, KindEnded}
	for _, k := range kinds {
		if err := tr.Publish(ctx, "bob", CallRecord{Kind: k, CallerID: "alice"}); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range kinds {
		rec := recvRecord(t, got)
		if rec == nil || rec.Kind != want {
			t.Fatalf("expected %s, got %+v", want, rec)
		}
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	defer store.Close()
	tr := NewTransport(store)

	type ev struct {
		sender string
		cand   Candidate
	}
	got := make(chan ev, 16)
	cancel := tr.WatchCandidates("bob", func(sender string, c Candidate) {
		got <- ev{sender, c}
	})
	defer cancel()

	mid := "0"
	idx := uint16(0)
	cand := Candidate{Candidate: "candidate:1 1 UDP 2130706431 127.0.0.1 50000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}
	if err := tr.PublishCandidate(ctx, "bob", "alice", cand); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-got:
		if e.sender != "alice" {
			t.Fatalf("sender = %s", e.sender)
		}
		if e.cand.Candidate != cand.Candidate {
			t.Fatalf("candidate = %s", e.cand.Candidate)
		}
		if e.cand.SDPMid == nil || *e.cand.SDPMid != "0" {
			t.Fatalf("sdp_mid = %v", e.cand.SDPMid)
		}
		if e.cand.SDPMLineIndex == nil || *e.cand.SDPMLineIndex != 0 {
			t.Fatalf("sdp_mline_index = %v", e.cand.SDPMLineIndex)
		}
	case <-time.After(time.Second):
		t.Fatal("no candidate event")
	}
}

func TestCandidatesAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	defer store.Close()
	tr := NewTransport(store)

	// Two identical publishes must land under distinct keys.
	c := Candidate{Candidate: "candidate:1 1 UDP 2130706431 127.0.0.1 50000 typ host"}
	tr.PublishCandidate(ctx, "bob", "alice", c)
	tr.PublishCandidate(ctx, "bob", "alice", c)

	docs, err := store.ListPrefix(ctx, "calls/bob/candidates/alice/")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 candidate docs, got %d", len(docs))
	}
}

func TestClearRemovesMailboxAndCandidates(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	defer store.Close()
	tr := NewTransport(store)

	got := make(chan *CallRecord, 16)
	cancel := tr.Watch("bob", func(rec *CallRecord) { got <- rec })
	defer cancel()

	tr.Publish(ctx, "bob", CallRecord{Kind: KindOffer, CallerID: "alice"})
	tr.PublishCandidate(ctx, "bob", "alice", Candidate{Candidate: "candidate:1"})
	recvRecord(t, got) // the offer

	removed, err := tr.Clear(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("Clear did not report the mailbox record removal")
	}

	// Deletion surfaces as a nil record to the mailbox watcher.
	if rec := recvRecord(t, got); rec != nil {
		t.Fatalf("expected nil after clear, got %+v", rec)
	}

	docs, _ := store.ListPrefix(ctx, "calls/bob/")
	if len(docs) != 0 {
		t.Fatalf("%d docs survived clear", len(docs))
	}

	// Clearing an empty mailbox is fine — and must not claim a removal.
	removed, err = tr.Clear(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Fatal("Clear reported a removal on an empty mailbox")
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &TransportError{Op: "publish", Mailbox: "bob", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("Unwrap lost the inner error")
	}
}

func recvRecord(t *testing.T, ch chan *CallRecord) *CallRecord {
	t.Helper()
	select {
	case rec := <-ch:
		return rec
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for record")
		return nil
	}
}
