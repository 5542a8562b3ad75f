// Package media owns the local camera and microphone. Every live track —
// captured locally or received from the remote peer — is registered with the
// Manager, so one ReleaseAll call can force the hardware free on any teardown
// path regardless of which call created the tracks.
package media

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Kind is a track modality.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one live media track under the Manager's control. Local returns
// the underlying sendable track for wiring into a peer connection, nil for
// tracks received from the remote side.
type Track interface {
	ID() string
	Kind() Kind
	Stop() error
	Local() webrtc.TrackLocal
}

// DeviceError reports that camera/microphone capture failed: hardware
// missing, permission denied, or device busy. The call attempt that needed
// the device is aborted, never retried automatically.
type DeviceError struct {
	Reason string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media: %s: %v", e.Reason, e.Err)
	}
	return "media: " + e.Reason
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Manager tracks every live media track. The platform capture backend is in
// capture_linux.go / capture_other.go.
type Manager struct {
	mu     sync.Mutex
	tracks map[string]Track

	// lastSelector is the codec selector of the most recent capture; the
	// peer connection's media engine must be populated from the same
	// selector or the captured tracks cannot be bound.
	selMu        sync.Mutex
	lastSelector *codecSelector
}

func NewManager() *Manager {
	return &Manager{tracks: make(map[string]Track)}
}

// Acquire captures local audio (always) plus video when kind is video.
// Every returned track is registered. Fails with *DeviceError; on partial
// failure any track captured so far is stopped before returning.
func (m *Manager) Acquire(kind Kind) ([]Track, error) {
	tracks, err := m.capture(kind)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	for _, t := range tracks {
		m.tracks[t.ID()] = t
	}
	m.mu.Unlock()
	log.Printf("MEDIA: acquired %d track(s) for %s call", len(tracks), kind)
	return tracks, nil
}

// Register adds an externally created track (a received remote track) to the
// tracked set so ReleaseAll stops it too.
func (m *Manager) Register(t Track) {
	m.mu.Lock()
	m.tracks[t.ID()] = t
	m.mu.Unlock()
}

// Unregister removes a track without stopping it (used when a track ends on
// its own).
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	delete(m.tracks, id)
	m.mu.Unlock()
}

// LiveCount returns the number of tracked live tracks.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

// ReleaseAll stops and unregisters every tracked track, then runs the
// platform's hardware-release confirmation. Idempotent: with nothing tracked
// it is a no-op. Failures are logged, never returned — teardown paths must
// not be interrupted by a device that is already gone.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	tracks := m.tracks
	m.tracks = make(map[string]Track)
	m.mu.Unlock()

	if len(tracks) == 0 {
		return
	}
	for _, t := range tracks {
		if err := t.Stop(); err != nil {
			log.Printf("MEDIA: stopping track %s: %v", t.ID(), err)
		}
	}
	log.Printf("MEDIA: released %d track(s)", len(tracks))

	m.forceRelease()
}
