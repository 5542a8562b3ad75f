// Package call implements the call state machine. One Engine per identity:
// it owns the phase, the peer connection and the captured devices, and it
// serializes every transition through a single event loop. Signaling records
// and ICE candidates arrive through the Signaler; commands arrive through
// the exported methods; both are funneled onto the loop so no state is ever
// touched from two goroutines.
package call

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/avdwoude/callbox/internal/media"
	"github.com/avdwoude/callbox/internal/rtc"
	"github.com/avdwoude/callbox/internal/signal"
	"github.com/avdwoude/callbox/internal/util"
)

var (
	// ErrNoCall: the command needs a session in a phase that is not current.
	ErrNoCall = errors.New("call: no call in the required phase")
	// ErrClosed: the engine has shut down.
	ErrClosed = errors.New("call: engine closed")
)

// Signaler is the slice of the signaling transport the engine needs.
// *signal.Transport satisfies it; tests substitute an in-process fake.
type Signaler interface {
	Publish(ctx context.Context, mailbox string, rec signal.CallRecord) error
	PublishCandidate(ctx context.Context, mailbox, sender string, c signal.Candidate) error
	Watch(mailbox string, fn func(*signal.CallRecord)) (cancel func())
	WatchCandidates(mailbox string, fn func(sender string, c signal.Candidate)) (cancel func())
	Clear(ctx context.Context, mailbox string) (removed bool, err error)
}

// Devices is the slice of the media manager the engine needs.
type Devices interface {
	Acquire(kind media.Kind) ([]media.Track, error)
	Register(t media.Track)
	ReleaseAll()
	RegisterCodecs(me *webrtc.MediaEngine) error
}

// PeerLink is one call's peer connection as the engine sees it.
// *rtc.PeerConn satisfies it.
type PeerLink interface {
	AddTrack(track webrtc.TrackLocal) error
	SetSending(kind webrtc.RTPCodecType, enabled bool) error
	Sending(kind webrtc.RTPCodecType) bool
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddCandidate(c webrtc.ICECandidateInit) error
	Close() error
}

// Options configures an Engine.
type Options struct {
	SelfID   string
	Signaler Signaler
	Devices  Devices

	// ICEServers seeds the per-call connection config; UpdateICEServers
	// replaces it for subsequent calls.
	ICEServers []string

	// RingTimeout bounds how long an outgoing call may stay unanswered.
	// Zero disables the timeout.
	RingTimeout time.Duration

	// NewPeer builds the per-call peer connection. Nil means pion via
	// rtc.New; tests inject fakes here.
	NewPeer func(cfg rtc.Config, hooks rtc.Hooks) (PeerLink, error)
}

type event struct {
	// epoch scopes the event to one session; zero means unscoped. Events
	// from a session that has since ended are dropped at the loop.
	epoch uint64
	fn    func()
}

// Engine is the call state machine. All fields below loopState are owned by
// the loop goroutine exclusively.
type Engine struct {
	selfID  string
	sig     Signaler
	devices Devices
	newPeer func(cfg rtc.Config, hooks rtc.Hooks) (PeerLink, error)
	ringFor time.Duration

	iceMu      sync.Mutex
	iceServers []string

	events   chan event
	done     chan struct{}
	loopDone chan struct{}
	closing  sync.Once

	cancelWatch func()
	cancelCands func()

	lmu       sync.Mutex
	listeners map[chan Snapshot]struct{}

	snapMu sync.Mutex
	last   Snapshot

	// loop-owned state
	epoch        uint64
	selfClears   int
	phase        Phase
	remoteID     string
	mediaKind    signal.MediaKind
	health       rtc.Health
	peer         PeerLink
	pendingOffer *signal.CallRecord
	pendingCands []signal.Candidate
	remoteTracks []*rtc.RemoteTrack
	ringTimer    *time.Timer
	audioOn      bool
	videoOn      bool
	startedAt    time.Time
	connectedAt  time.Time
}

// New builds the engine, purges any stale mailbox left by a previous run,
// subscribes to the identity's mailbox and candidate scope, and starts the
// loop.
func New(opts Options) (*Engine, error) {
	if opts.SelfID == "" {
		return nil, fmt.Errorf("call: empty self id")
	}
	if opts.Signaler == nil || opts.Devices == nil {
		return nil, fmt.Errorf("call: signaler and devices are required")
	}

	e := &Engine{
		selfID:     opts.SelfID,
		sig:        opts.Signaler,
		devices:    opts.Devices,
		ringFor:    opts.RingTimeout,
		iceServers: opts.ICEServers,
		events:     make(chan event, 256),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		listeners:  make(map[chan Snapshot]struct{}),
	}
	e.newPeer = opts.NewPeer
	if e.newPeer == nil {
		e.newPeer = func(cfg rtc.Config, hooks rtc.Hooks) (PeerLink, error) {
			return rtc.New(cfg, hooks)
		}
	}

	// A mailbox surviving a crash would replay a dead call at us — and
	// make every caller believe we are ringing. This runs before Watch,
	// so the deletion never echoes into the loop.
	ctx, cancel := context.WithTimeout(context.Background(), util.DefaultPublishTimeout)
	if _, err := e.sig.Clear(ctx, e.selfID); err != nil {
		log.Printf("CALL [%s]: stale mailbox purge: %v", e.selfID, err)
	}
	cancel()

	e.cancelWatch = e.sig.Watch(e.selfID, func(rec *signal.CallRecord) {
		e.post(0, func() { e.handleRecord(rec) })
	})
	e.cancelCands = e.sig.WatchCandidates(e.selfID, func(sender string, c signal.Candidate) {
		e.post(0, func() { e.handleCandidate(sender, c) })
	})

	e.last = Snapshot{Phase: PhaseIdle.String()}
	go e.loop()
	return e, nil
}

func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.done:
			if e.phase.Active() {
				e.teardown(true, "engine closing")
			}
			return
		case ev := <-e.events:
			if ev.epoch != 0 && ev.epoch != e.epoch {
				continue // stale session event
			}
			ev.fn()
		}
	}
}

// post queues an asynchronous event. The queue is bounded; when a burst
// outruns the loop the event is dropped with a log line rather than
// blocking a pion or store callback.
func (e *Engine) post(epoch uint64, fn func()) {
	select {
	case e.events <- event{epoch: epoch, fn: fn}:
	case <-e.done:
	default:
		log.Printf("CALL [%s]: event queue full, dropping event", e.selfID)
	}
}

// run executes fn on the loop and waits for its result.
func (e *Engine) run(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case e.events <- event{fn: func() { errc <- fn() }}:
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-e.loopDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartCall places an outgoing call. An existing session is torn down first:
// redialing supersedes, it never stacks. Fails with *media.DeviceError when
// capture fails and with *signal.TransportError when the offer cannot be
// published — in which case everything acquired is released again.
func (e *Engine) StartCall(ctx context.Context, calleeID string, kind signal.MediaKind) error {
	if calleeID == "" || calleeID == e.selfID {
		return fmt.Errorf("call: invalid callee %q", calleeID)
	}
	if !kind.Valid() {
		return fmt.Errorf("call: invalid media kind %q", kind)
	}
	return e.run(ctx, func() error { return e.startCall(ctx, calleeID, kind) })
}

func (e *Engine) startCall(ctx context.Context, calleeID string, kind signal.MediaKind) error {
	if e.phase != PhaseIdle {
		// The old session fully ends, devices included, before the new
		// capture starts. Two device grants are never held at once.
		e.teardown(true, "superseded by new call")
	}

	tracks, err := e.devices.Acquire(media.Kind(kind))
	if err != nil {
		return err
	}

	e.epoch++
	ep := e.epoch
	peer, err := e.newPeer(e.peerConfig(), e.peerHooks(ep))
	if err != nil {
		e.devices.ReleaseAll()
		return err
	}
	for _, t := range tracks {
		if err := peer.AddTrack(t.Local()); err != nil {
			peer.Close()
			e.devices.ReleaseAll()
			return err
		}
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		peer.Close()
		e.devices.ReleaseAll()
		return err
	}

	rec := signal.CallRecord{
		Kind:      signal.KindOffer,
		CallerID:  e.selfID,
		MediaKind: kind,
		Description: &signal.SessionDescription{
			Type: offer.Type.String(),
			SDP:  offer.SDP,
		},
	}
	if err := e.sig.Publish(ctx, calleeID, rec); err != nil {
		peer.Close()
		e.devices.ReleaseAll()
		return err
	}

	e.phase = PhaseOutgoingPending
	e.peer = peer
	e.remoteID = calleeID
	e.mediaKind = kind
	e.audioOn = true
	e.videoOn = kind == signal.MediaVideo
	e.startedAt = time.Now()
	if e.ringFor > 0 {
		e.ringTimer = time.AfterFunc(e.ringFor, func() {
			e.post(ep, e.ringExpired)
		})
	}
	log.Printf("CALL [%s]: calling %s (%s)", e.selfID, calleeID, kind)
	e.notify()
	return nil
}

// AnswerCall accepts the pending incoming call. Device failure aborts back
// to idle; the caller is not notified and either times out or gives up. A
// publish failure keeps the call ringing so AnswerCall can be retried.
func (e *Engine) AnswerCall(ctx context.Context) error {
	return e.run(ctx, func() error { return e.answerCall(ctx) })
}

func (e *Engine) answerCall(ctx context.Context) error {
	if e.phase != PhaseIncomingPending || e.pendingOffer == nil {
		return ErrNoCall
	}
	offer := e.pendingOffer

	tracks, err := e.devices.Acquire(media.Kind(offer.MediaKind))
	if err != nil {
		e.clearOwnMailbox(ctx, "device failure")
		e.epoch++
		e.resetSession()
		e.notify()
		return err
	}

	e.epoch++
	ep := e.epoch
	peer, err := e.newPeer(e.peerConfig(), e.peerHooks(ep))
	if err != nil {
		e.teardown(true, "peer setup failed")
		return err
	}
	e.peer = peer

	remote := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(offer.Description.Type),
		SDP:  offer.Description.SDP,
	}
	if err := peer.SetRemoteDescription(remote); err != nil {
		e.teardown(true, "offer rejected by local rtc")
		return err
	}
	for _, t := range tracks {
		if err := peer.AddTrack(t.Local()); err != nil {
			e.teardown(true, "track attach failed")
			return err
		}
	}

	answer, err := peer.CreateAnswer(ctx)
	if err != nil {
		e.teardown(true, "answer creation failed")
		return err
	}

	rec := signal.CallRecord{
		Kind:     signal.KindAnswer,
		CallerID: e.selfID,
		Description: &signal.SessionDescription{
			Type: answer.Type.String(),
			SDP:  answer.SDP,
		},
	}
	if err := e.sig.Publish(ctx, e.remoteID, rec); err != nil {
		// Not delivered: unwind to ringing so the user can retry or
		// reject. Buffered candidates are untouched.
		peer.Close()
		e.devices.ReleaseAll()
		e.peer = nil
		e.epoch++
		return err
	}

	// Candidates that trickled in while the call was ringing.
	buffered := e.pendingCands
	e.pendingCands = nil
	for _, c := range buffered {
		if err := peer.AddCandidate(toICEInit(c)); err != nil {
			log.Printf("CALL [%s]: ringing-phase candidate rejected: %v", e.selfID, err)
		}
	}

	e.phase = PhaseConnected
	e.pendingOffer = nil
	e.audioOn = true
	e.videoOn = e.mediaKind == signal.MediaVideo
	e.connectedAt = time.Now()
	log.Printf("CALL [%s]: answered %s", e.selfID, e.remoteID)
	e.notify()
	return nil
}

// RejectCall declines the pending incoming call. No devices were acquired,
// so only signaling state is touched.
func (e *Engine) RejectCall(ctx context.Context) error {
	return e.run(ctx, func() error { return e.rejectCall(ctx) })
}

func (e *Engine) rejectCall(ctx context.Context) error {
	if e.phase != PhaseIncomingPending {
		return ErrNoCall
	}
	caller := e.remoteID
	rec := signal.CallRecord{Kind: signal.KindRejected, CallerID: e.selfID}
	if err := e.sig.Publish(ctx, caller, rec); err != nil {
		log.Printf("CALL [%s]: publish reject: %v", e.selfID, err)
	}
	e.clearOwnMailbox(ctx, "reject")
	e.epoch++
	e.resetSession()
	log.Printf("CALL [%s]: rejected %s", e.selfID, caller)
	e.notify()
	return nil
}

// EndCall hangs up whatever session exists. Idle is a no-op: the hang-up
// button races hang-ups from the other side all the time.
func (e *Engine) EndCall(ctx context.Context) error {
	return e.run(ctx, func() error {
		if e.phase == PhaseIdle {
			return nil
		}
		e.teardown(true, "local hangup")
		return nil
	})
}

// ToggleAudio flips outgoing audio and reports the new sending state.
func (e *Engine) ToggleAudio(ctx context.Context) (bool, error) {
	return e.toggle(ctx, webrtc.RTPCodecTypeAudio)
}

// ToggleVideo flips outgoing video and reports the new sending state.
func (e *Engine) ToggleVideo(ctx context.Context) (bool, error) {
	return e.toggle(ctx, webrtc.RTPCodecTypeVideo)
}

func (e *Engine) toggle(ctx context.Context, kind webrtc.RTPCodecType) (bool, error) {
	var after bool
	err := e.run(ctx, func() error {
		if e.peer == nil {
			return ErrNoCall
		}
		on := &e.audioOn
		if kind == webrtc.RTPCodecTypeVideo {
			on = &e.videoOn
		}
		if err := e.peer.SetSending(kind, !*on); err != nil {
			return err
		}
		*on = !*on
		after = *on
		log.Printf("CALL [%s]: %s sending=%v", e.selfID, kind, after)
		e.notify()
		return nil
	})
	return after, err
}

// Snapshot returns the most recently published state.
func (e *Engine) Snapshot() Snapshot {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return e.last
}

// Stats collects receive counters for the current remote tracks.
func (e *Engine) Stats(ctx context.Context) ([]rtc.TrackStats, error) {
	var out []rtc.TrackStats
	err := e.run(ctx, func() error {
		for _, rt := range e.remoteTracks {
			out = append(out, rt.Stats())
		}
		return nil
	})
	return out, err
}

// Subscribe registers a state listener. The channel is buffered; a listener
// that falls behind misses intermediate snapshots, never blocks the engine.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	e.lmu.Lock()
	e.listeners[ch] = struct{}{}
	e.lmu.Unlock()

	ch <- e.Snapshot()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.lmu.Lock()
			delete(e.listeners, ch)
			e.lmu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// UpdateICEServers swaps the server list used by calls placed from now on.
// The current call keeps its connection.
func (e *Engine) UpdateICEServers(servers []string) {
	e.iceMu.Lock()
	e.iceServers = append([]string(nil), servers...)
	e.iceMu.Unlock()
	log.Printf("CALL [%s]: ICE servers updated (%d entries)", e.selfID, len(servers))
}

// Close hangs up, unsubscribes from signaling and stops the loop.
func (e *Engine) Close() {
	e.closing.Do(func() {
		e.cancelWatch()
		e.cancelCands()
		close(e.done)
	})
	<-e.loopDone
}

func (e *Engine) peerConfig() rtc.Config {
	e.iceMu.Lock()
	servers := append([]string(nil), e.iceServers...)
	e.iceMu.Unlock()
	return rtc.Config{
		ICEServers:     servers,
		RegisterCodecs: e.devices.RegisterCodecs,
	}
}

func (e *Engine) peerHooks(ep uint64) rtc.Hooks {
	return rtc.Hooks{
		OnCandidate: func(c webrtc.ICECandidateInit) {
			e.post(ep, func() { e.publishCandidate(c) })
		},
		OnRemoteTrack: func(rt *rtc.RemoteTrack) {
			e.post(ep, func() {
				e.remoteTracks = append(e.remoteTracks, rt)
				e.devices.Register(rt)
				log.Printf("CALL [%s]: remote %s track", e.selfID, rt.Kind())
			})
		},
		OnHealth: func(h rtc.Health) {
			e.post(ep, func() { e.handleHealth(h) })
		},
	}
}

func (e *Engine) publishCandidate(c webrtc.ICECandidateInit) {
	if !e.phase.Active() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), util.DefaultPublishTimeout)
	defer cancel()
	if err := e.sig.PublishCandidate(ctx, e.remoteID, e.selfID, fromICEInit(c)); err != nil {
		log.Printf("CALL [%s]: publish candidate: %v", e.selfID, err)
	}
}

// handleRecord processes a mutation of our own mailbox. nil means the
// document was deleted — during an active session that is an implicit
// hang-up (the counterpart, or an operator, cleaned the mailbox).
func (e *Engine) handleRecord(rec *signal.CallRecord) {
	if rec == nil {
		if e.selfClears > 0 {
			// The echo of our own cleanup, not somebody else's hang-up.
			e.selfClears--
			return
		}
		if e.phase.Active() {
			// Whoever wiped the mailbox did not tell the counterpart:
			// publish ended so they do not hang on a dead session.
			log.Printf("CALL [%s]: mailbox cleared remotely, ending", e.selfID)
			e.teardown(true, "mailbox cleared")
		}
		return
	}

	switch rec.Kind {
	case signal.KindOffer:
		e.handleOffer(rec)

	case signal.KindAnswer:
		if e.phase != PhaseOutgoingPending || rec.CallerID != e.remoteID {
			log.Printf("CALL [%s]: stray answer from %s ignored", e.selfID, rec.CallerID)
			return
		}
		if rec.Description == nil {
			log.Printf("CALL [%s]: answer without description ignored", e.selfID)
			return
		}
		remote := webrtc.SessionDescription{
			Type: webrtc.NewSDPType(rec.Description.Type),
			SDP:  rec.Description.SDP,
		}
		if err := e.peer.SetRemoteDescription(remote); err != nil {
			log.Printf("CALL [%s]: apply answer: %v", e.selfID, err)
			e.teardown(true, "answer rejected by local rtc")
			return
		}
		e.stopRingTimer()
		e.phase = PhaseConnected
		e.connectedAt = time.Now()
		log.Printf("CALL [%s]: %s answered", e.selfID, e.remoteID)
		e.notify()

	case signal.KindRejected:
		if e.phase != PhaseOutgoingPending || rec.CallerID != e.remoteID {
			return
		}
		log.Printf("CALL [%s]: %s rejected the call", e.selfID, e.remoteID)
		e.teardown(false, "rejected")

	case signal.KindEnded:
		if !e.phase.Active() || rec.CallerID != e.remoteID {
			return
		}
		log.Printf("CALL [%s]: %s hung up", e.selfID, e.remoteID)
		e.teardown(false, "remote hangup")

	default:
		log.Printf("CALL [%s]: unknown record kind %q ignored", e.selfID, rec.Kind)
	}
}

func (e *Engine) handleOffer(rec *signal.CallRecord) {
	if rec.CallerID == "" || rec.Description == nil || !rec.MediaKind.Valid() {
		log.Printf("CALL [%s]: malformed offer ignored", e.selfID)
		return
	}
	if e.phase != PhaseIdle {
		// Busy: decline without disturbing the current session.
		log.Printf("CALL [%s]: busy, rejecting offer from %s", e.selfID, rec.CallerID)
		ctx, cancel := context.WithTimeout(context.Background(), util.DefaultPublishTimeout)
		defer cancel()
		busy := signal.CallRecord{Kind: signal.KindRejected, CallerID: e.selfID}
		if err := e.sig.Publish(ctx, rec.CallerID, busy); err != nil {
			log.Printf("CALL [%s]: publish busy reject: %v", e.selfID, err)
		}
		return
	}

	e.epoch++
	e.phase = PhaseIncomingPending
	e.remoteID = rec.CallerID
	e.mediaKind = rec.MediaKind
	e.pendingOffer = rec
	e.startedAt = time.Now()
	log.Printf("CALL [%s]: incoming %s call from %s", e.selfID, rec.MediaKind, rec.CallerID)
	e.notify()
}

// handleCandidate routes a remote candidate. While ringing there is no peer
// connection yet, so candidates are held in arrival order.
func (e *Engine) handleCandidate(sender string, c signal.Candidate) {
	if !e.phase.Active() || sender != e.remoteID {
		return
	}
	if e.peer == nil {
		e.pendingCands = append(e.pendingCands, c)
		return
	}
	if err := e.peer.AddCandidate(toICEInit(c)); err != nil {
		log.Printf("CALL [%s]: candidate from %s rejected: %v", e.selfID, sender, err)
	}
}

func (e *Engine) handleHealth(h rtc.Health) {
	if !e.phase.Active() {
		return
	}
	e.health = h
	if h == rtc.HealthFailed {
		// The media path is gone but the store usually is not: tell the
		// counterpart instead of leaving them on a frozen frame.
		log.Printf("CALL [%s]: connection failed, ending", e.selfID)
		e.teardown(true, "connection failed")
		return
	}
	e.notify()
}

func (e *Engine) ringExpired() {
	if e.phase != PhaseOutgoingPending {
		return
	}
	log.Printf("CALL [%s]: %s did not answer within %s", e.selfID, e.remoteID, e.ringFor)
	e.teardown(true, "ring timeout")
}

// teardown releases everything the session holds: peer connection, devices,
// own mailbox, and optionally a parting "ended" record for the counterpart.
// Always lands in PhaseIdle.
func (e *Engine) teardown(notifyPeer bool, reason string) {
	e.stopRingTimer()
	if e.peer != nil {
		if err := e.peer.Close(); err != nil {
			log.Printf("CALL [%s]: close peer: %v", e.selfID, err)
		}
	}
	e.devices.ReleaseAll()

	ctx, cancel := context.WithTimeout(context.Background(), util.DefaultPublishTimeout)
	defer cancel()
	if notifyPeer && e.remoteID != "" {
		// Write ended, then delete the whole mailbox: a counterpart that is
		// online reacts to the record, one that is offline finds nothing to
		// replay on reconnect. Either way no record survives the session.
		rec := signal.CallRecord{Kind: signal.KindEnded, CallerID: e.selfID}
		if err := e.sig.Publish(ctx, e.remoteID, rec); err != nil {
			log.Printf("CALL [%s]: publish ended: %v", e.selfID, err)
		}
		if _, err := e.sig.Clear(ctx, e.remoteID); err != nil {
			log.Printf("CALL [%s]: clear %s mailbox: %v", e.selfID, e.remoteID, err)
		}
	}
	e.clearOwnMailbox(ctx, reason)

	log.Printf("CALL [%s]: ended (%s)", e.selfID, reason)
	e.epoch++ // invalidate in-flight session events
	e.resetSession()
	e.notify()
}

// clearOwnMailbox wipes our mailbox and counts the deletion when one actually
// happened. The store echoes every real deletion back through our own watcher
// as a nil snapshot; without the count, handleRecord would read that echo as
// a remote hang-up and kill whatever session exists by then — a fresh offer
// that raced into the mailbox, for instance. Runs on the loop.
func (e *Engine) clearOwnMailbox(ctx context.Context, why string) {
	removed, err := e.sig.Clear(ctx, e.selfID)
	if err != nil {
		log.Printf("CALL [%s]: clear mailbox (%s): %v", e.selfID, why, err)
	}
	if removed {
		e.selfClears++
	}
}

func (e *Engine) resetSession() {
	e.phase = PhaseIdle
	e.remoteID = ""
	e.mediaKind = ""
	e.health = ""
	e.peer = nil
	e.pendingOffer = nil
	e.pendingCands = nil
	e.remoteTracks = nil
	e.audioOn = false
	e.videoOn = false
	e.startedAt = time.Time{}
	e.connectedAt = time.Time{}
}

func (e *Engine) stopRingTimer() {
	if e.ringTimer != nil {
		e.ringTimer.Stop()
		e.ringTimer = nil
	}
}

// notify publishes the current state to every subscriber. Runs on the loop.
func (e *Engine) notify() {
	snap := Snapshot{
		Phase:        e.phase.String(),
		RemoteID:     e.remoteID,
		MediaKind:    e.mediaKind,
		Health:       e.health,
		AudioSending: e.audioOn,
		VideoSending: e.videoOn,
		StartedAt:    e.startedAt,
		ConnectedAt:  e.connectedAt,
	}
	e.snapMu.Lock()
	e.last = snap
	e.snapMu.Unlock()

	e.lmu.Lock()
	for ch := range e.listeners {
		select {
		case ch <- snap:
		default:
		}
	}
	e.lmu.Unlock()
}

func toICEInit(c signal.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

func fromICEInit(c webrtc.ICECandidateInit) signal.Candidate {
	return signal.Candidate{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}
