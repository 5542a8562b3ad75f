// Package rtc wraps a single pion PeerConnection for one call. It owns the
// offer/answer dance and trickle-ICE plumbing; candidates that arrive before
// the remote description are buffered and flushed in arrival order once the
// description lands.
package rtc

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// Health is the coarse link state reported to the call layer.
type Health string

const (
	HealthConnecting Health = "connecting"
	HealthConnected  Health = "connected"
	HealthDegraded   Health = "degraded"
	HealthFailed     Health = "failed"
	HealthClosed     Health = "closed"
)

// NegotiationError reports a local WebRTC failure: SDP create/apply or
// candidate handling. The session that hit it is torn down.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("rtc: %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// Config carries per-connection setup. RegisterCodecs populates the media
// engine — the capture side supplies it so encoder and transceiver codec
// lists agree.
type Config struct {
	ICEServers     []string
	RegisterCodecs func(*webrtc.MediaEngine) error
}

// Hooks are the connection's upcalls. They fire on pion's internal
// goroutines; receivers must hand off quickly and never call back into the
// PeerConn from inside the hook.
type Hooks struct {
	OnCandidate   func(webrtc.ICECandidateInit)
	OnRemoteTrack func(*RemoteTrack)
	OnHealth      func(Health)
}

// PeerConn is one call's peer connection.
type PeerConn struct {
	pc    *webrtc.PeerConnection
	hooks Hooks

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	senders   map[webrtc.RTPCodecType]*senderSlot

	closeOnce sync.Once
	closeErr  error
}

// senderSlot remembers the original outgoing track so a muted sender can be
// restored.
type senderSlot struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
	muted  bool
}

// New builds a peer connection from cfg and wires hooks.
func New(cfg Config, hooks Hooks) (*PeerConn, error) {
	me := &webrtc.MediaEngine{}
	if cfg.RegisterCodecs != nil {
		if err := cfg.RegisterCodecs(me); err != nil {
			return nil, &NegotiationError{Op: "register codecs", Err: err}
		}
	} else if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, &NegotiationError{Op: "register codecs", Err: err}
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, &NegotiationError{Op: "register interceptors", Err: err}
	}

	// Generous ICE timeouts: disconnected after 30s of silence, failed
	// after 120s, keepalives every 2s. Flaky home networks recover within
	// the disconnected window instead of dropping the call.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)

	var servers []webrtc.ICEServer
	for _, u := range cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, &NegotiationError{Op: "new peer connection", Err: err}
	}

	p := &PeerConn{
		pc:      pc,
		hooks:   hooks,
		senders: make(map[webrtc.RTPCodecType]*senderSlot),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end-of-gathering marker
		}
		if p.hooks.OnCandidate != nil {
			p.hooks.OnCandidate(c.ToJSON())
		}
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		// Wrap immediately so the drain starts before the handler runs.
		if p.hooks.OnRemoteTrack != nil {
			p.hooks.OnRemoteTrack(NewRemoteTrack(p, tr))
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("RTC: ICE state %s", state)
		if p.hooks.OnHealth == nil {
			return
		}
		switch state {
		case webrtc.ICEConnectionStateChecking:
			p.hooks.OnHealth(HealthConnecting)
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			p.hooks.OnHealth(HealthConnected)
		case webrtc.ICEConnectionStateDisconnected:
			p.hooks.OnHealth(HealthDegraded)
		case webrtc.ICEConnectionStateFailed:
			p.hooks.OnHealth(HealthFailed)
		case webrtc.ICEConnectionStateClosed:
			p.hooks.OnHealth(HealthClosed)
		}
	})

	return p, nil
}

// AddTrack attaches an outgoing track. One slot per codec type; adding a
// second track of the same type replaces the slot.
func (p *PeerConn) AddTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return &NegotiationError{Op: "add track", Err: err}
	}
	p.mu.Lock()
	p.senders[track.Kind()] = &senderSlot{sender: sender, track: track}
	p.mu.Unlock()
	return nil
}

// SetSending mutes or unmutes the outgoing track of the given codec type by
// detaching it from (or reattaching it to) its sender. The capture keeps
// running; only transmission stops. Unknown type is a no-op.
func (p *PeerConn) SetSending(kind webrtc.RTPCodecType, enabled bool) error {
	p.mu.Lock()
	slot, ok := p.senders[kind]
	p.mu.Unlock()
	if !ok || slot.muted != enabled {
		return nil
	}
	var next webrtc.TrackLocal
	if enabled {
		next = slot.track
	}
	if err := slot.sender.ReplaceTrack(next); err != nil {
		return &NegotiationError{Op: "replace track", Err: err}
	}
	p.mu.Lock()
	slot.muted = !enabled
	p.mu.Unlock()
	return nil
}

// Sending reports whether the outgoing track of the given type is live.
func (p *PeerConn) Sending(kind webrtc.RTPCodecType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.senders[kind]
	return ok && !slot.muted
}

// CreateOffer produces the local offer and applies it as the local
// description, which starts ICE gathering. Candidates trickle out through
// Hooks.OnCandidate.
func (p *PeerConn) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, &NegotiationError{Op: "create offer", Err: err}
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, &NegotiationError{Op: "create offer", Err: err}
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, &NegotiationError{Op: "set local description", Err: err}
	}
	return offer, nil
}

// CreateAnswer produces the local answer to a previously applied remote
// offer and applies it as the local description.
func (p *PeerConn) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, &NegotiationError{Op: "create answer", Err: err}
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, &NegotiationError{Op: "create answer", Err: err}
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, &NegotiationError{Op: "set local description", Err: err}
	}
	return answer, nil
}

// SetRemoteDescription applies the remote SDP and flushes any candidates
// that arrived early, in the order they were buffered.
func (p *PeerConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return &NegotiationError{Op: "set remote description", Err: err}
	}

	p.mu.Lock()
	p.remoteSet = true
	buffered := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range buffered {
		if err := p.pc.AddICECandidate(c); err != nil {
			// One bad candidate must not sink the rest of the batch.
			log.Printf("RTC: buffered candidate rejected: %v", err)
		}
	}
	if len(buffered) > 0 {
		log.Printf("RTC: flushed %d buffered candidate(s)", len(buffered))
	}
	return nil
}

// AddCandidate feeds a remote ICE candidate. Candidates arriving before the
// remote description are buffered, never dropped.
func (p *PeerConn) AddCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(c); err != nil {
		return &NegotiationError{Op: "add candidate", Err: err}
	}
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (p *PeerConn) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}
