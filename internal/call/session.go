package call

import (
	"time"

	"github.com/avdwoude/callbox/internal/rtc"
	"github.com/avdwoude/callbox/internal/signal"
)

// Phase is the engine's lifecycle position. Exactly one phase is current at
// any time; every transition happens on the engine loop.
type Phase int

const (
	// PhaseIdle: no call activity.
	PhaseIdle Phase = iota
	// PhaseOutgoingPending: offer published, waiting for answer or reject.
	PhaseOutgoingPending
	// PhaseIncomingPending: offer received, waiting for local answer or reject.
	PhaseIncomingPending
	// PhaseConnected: negotiation finished; media flowing (or recovering).
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOutgoingPending:
		return "outgoing-pending"
	case PhaseIncomingPending:
		return "incoming-pending"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Active reports whether a call session exists in any form.
func (p Phase) Active() bool {
	return p != PhaseIdle
}

// Snapshot is the externally visible call state, published to subscribers on
// every transition. It is a value copy — safe to hold across transitions.
type Snapshot struct {
	Phase        string           `json:"phase"`
	RemoteID     string           `json:"remote_id,omitempty"`
	MediaKind    signal.MediaKind `json:"media_kind,omitempty"`
	Health       rtc.Health       `json:"health,omitempty"`
	AudioSending bool             `json:"audio_sending"`
	VideoSending bool             `json:"video_sending"`
	StartedAt    time.Time        `json:"started_at,omitzero"`
	ConnectedAt  time.Time        `json:"connected_at,omitzero"`
}
