package signal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avdwoude/callbox/internal/docstore"
)

// Transport publishes and watches call mailboxes on a document store.
type Transport struct {
	store docstore.Store
}

func NewTransport(store docstore.Store) *Transport {
	return &Transport{store: store}
}

func mailboxKey(mailbox string) string {
	return "calls/" + mailbox
}

func candidatePrefix(mailbox string) string {
	return "calls/" + mailbox + "/candidates/"
}

// Publish merges rec into the addressed mailbox. Upsert semantics: fields the
// record does not carry are left untouched, so a bare "ended" record does not
// clobber diagnostics a reader may still want.
func (t *Transport) Publish(ctx context.Context, mailbox string, rec CallRecord) error {
	fields := docstore.Doc{
		"kind": string(rec.Kind),
		"ts":   rec.Timestamp,
	}
	if rec.Timestamp == 0 {
		fields["ts"] = time.Now().UnixMilli()
	}
	if rec.CallerID != "" {
		fields["caller_id"] = rec.CallerID
	}
	if rec.MediaKind != "" {
		fields["media_kind"] = string(rec.MediaKind)
	}
	if rec.Description != nil {
		fields["description"] = map[string]any{
			"type": rec.Description.Type,
			"sdp":  rec.Description.SDP,
		}
	}

	if err := t.store.Merge(ctx, mailboxKey(mailbox), fields); err != nil {
		return &TransportError{Op: "publish", Mailbox: mailbox, Err: err}
	}
	return nil
}

// Watch delivers every future mutation of the mailbox as a decoded record,
// in write order; nil means the mailbox document was deleted. Returns the
// unsubscribe function.
func (t *Transport) Watch(mailbox string, fn func(*CallRecord)) (cancel func()) {
	return t.store.Watch(mailboxKey(mailbox), func(doc docstore.Doc) {
		fn(decodeRecord(doc))
	})
}

// PublishCandidate appends one candidate record to the mailbox's candidate
// scope. Records are append-only during negotiation and removed by Clear.
func (t *Transport) PublishCandidate(ctx context.Context, mailbox, sender string, c Candidate) error {
	fields := docstore.Doc{
		"candidate": c.Candidate,
		"sender":    sender,
		"ts":        time.Now().UnixMilli(),
	}
	if c.SDPMid != nil {
		fields["sdp_mid"] = *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		fields["sdp_mline_index"] = float64(*c.SDPMLineIndex)
	}

	key := candidatePrefix(mailbox) + sender + "/" + uuid.NewString()
	if err := t.store.Put(ctx, key, fields); err != nil {
		return &TransportError{Op: "publish-candidate", Mailbox: mailbox, Err: err}
	}
	return nil
}

// WatchCandidates delivers every candidate appended to the mailbox's
// candidate scope, in write order per sender. Deletions are not forwarded —
// a removed candidate set just means the session is gone.
func (t *Transport) WatchCandidates(mailbox string, fn func(sender string, c Candidate)) (cancel func()) {
	return t.store.WatchPrefix(candidatePrefix(mailbox), func(_ string, doc docstore.Doc) {
		if doc == nil {
			return
		}
		sender, _ := doc["sender"].(string)
		fn(sender, decodeCandidate(doc))
	})
}

// Clear deletes the mailbox record and every candidate scoped to it. Safe to
// call on a mailbox that does not exist. The returned bool reports whether a
// mailbox record was actually removed — when it was, the store will deliver
// one nil snapshot to that mailbox's watchers.
func (t *Transport) Clear(ctx context.Context, mailbox string) (bool, error) {
	removed, err := t.store.Delete(ctx, mailboxKey(mailbox))
	if err != nil {
		return removed, &TransportError{Op: "clear", Mailbox: mailbox, Err: err}
	}
	if err := t.store.DeletePrefix(ctx, candidatePrefix(mailbox)); err != nil {
		return removed, &TransportError{Op: "clear-candidates", Mailbox: mailbox, Err: err}
	}
	return removed, nil
}

func decodeRecord(doc docstore.Doc) *CallRecord {
	if doc == nil {
		return nil
	}
	rec := &CallRecord{}
	if kind, ok := doc["kind"].(string); ok {
		rec.Kind = RecordKind(kind)
	}
	if caller, ok := doc["caller_id"].(string); ok {
		rec.CallerID = caller
	}
	if mk, ok := doc["media_kind"].(string); ok {
		rec.MediaKind = MediaKind(mk)
	}
	if ts, ok := doc["ts"].(float64); ok {
		rec.Timestamp = int64(ts)
	} else if ts, ok := doc["ts"].(int64); ok {
		rec.Timestamp = ts
	}
	if desc, ok := doc["description"].(map[string]any); ok {
		sd := &SessionDescription{}
		sd.Type, _ = desc["type"].(string)
		sd.SDP, _ = desc["sdp"].(string)
		rec.Description = sd
	}
	return rec
}

func decodeCandidate(doc docstore.Doc) Candidate {
	c := Candidate{}
	c.Candidate, _ = doc["candidate"].(string)
	if mid, ok := doc["sdp_mid"].(string); ok {
		c.SDPMid = &mid
	}
	if idx, ok := doc["sdp_mline_index"].(float64); ok {
		v := uint16(idx)
		c.SDPMLineIndex = &v
	}
	return c
}
