// Package signal implements the mailbox-based call signaling transport.
// Each user owns exactly one mailbox document in the document store; writing
// a CallRecord into a mailbox is how its owner learns about offers, answers,
// rejections and hang-ups. ICE candidates are appended as separate documents
// under the mailbox's candidate scope and removed together with the mailbox
// record on Clear.
package signal

import "fmt"

// MediaKind is the requested call modality, fixed for a call's lifetime.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Valid reports whether k is a known modality.
func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

// RecordKind discriminates what a CallRecord means to the mailbox owner.
type RecordKind string

const (
	KindOffer    RecordKind = "offer"
	KindAnswer   RecordKind = "answer"
	KindRejected RecordKind = "rejected"
	KindEnded    RecordKind = "ended"
)

// SessionDescription is the opaque connection-parameter payload exchanged
// during negotiation.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is one discovered network path, forwarded to the counterpart as
// it is found (trickle ICE).
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}

// CallRecord is the persisted signaling message stored in a mailbox.
// Description is present when Kind is offer or answer. Timestamp is the
// writer's wall clock in milliseconds, kept for diagnostics only — each
// party writes into the counterpart's mailbox, so last-write-wins is fine.
type CallRecord struct {
	Kind        RecordKind          `json:"kind"`
	CallerID    string              `json:"caller_id,omitempty"`
	MediaKind   MediaKind           `json:"media_kind,omitempty"`
	Description *SessionDescription `json:"description,omitempty"`
	Timestamp   int64               `json:"ts"`
}

// TransportError wraps a document store failure. The caller decides whether
// to retry; local call state is never rolled back automatically.
type TransportError struct {
	Op      string
	Mailbox string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("signal %s %s: %v", e.Op, e.Mailbox, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
