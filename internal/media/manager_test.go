package media

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

type fakeTrack struct {
	id      string
	kind    Kind
	stops   int
	stopErr error
}

func (f *fakeTrack) ID() string               { return f.id }
func (f *fakeTrack) Kind() Kind               { return f.kind }
func (f *fakeTrack) Stop() error              { f.stops++; return f.stopErr }
func (f *fakeTrack) Local() webrtc.TrackLocal { return nil }

func TestManagerRegisterAndRelease(t *testing.T) {
	m := NewManager()
	a := &fakeTrack{id: "a", kind: KindAudio}
	v := &fakeTrack{id: "v", kind: KindVideo}

	m.Register(a)
	m.Register(v)
	if n := m.LiveCount(); n != 2 {
		t.Fatalf("LiveCount = %d", n)
	}

	m.ReleaseAll()
	if a.stops != 1 || v.stops != 1 {
		t.Fatalf("stops = %d/%d", a.stops, v.stops)
	}
	if n := m.LiveCount(); n != 0 {
		t.Fatalf("LiveCount after release = %d", n)
	}
}

func TestReleaseAllIdempotent(t *testing.T) {
	m := NewManager()
	tr := &fakeTrack{id: "a", kind: KindAudio}
	m.Register(tr)

	m.ReleaseAll()
	m.ReleaseAll()
	m.ReleaseAll()

	if tr.stops != 1 {
		t.Fatalf("track stopped %d times", tr.stops)
	}
}

func TestReleaseAllSwallowsStopErrors(t *testing.T) {
	m := NewManager()
	m.Register(&fakeTrack{id: "a", kind: KindAudio, stopErr: errors.New("already gone")})
	m.Register(&fakeTrack{id: "b", kind: KindVideo})

	// Must not panic or skip the second track.
	m.ReleaseAll()
	if n := m.LiveCount(); n != 0 {
		t.Fatalf("LiveCount = %d", n)
	}
}

func TestUnregisterRemovesWithoutStopping(t *testing.T) {
	m := NewManager()
	tr := &fakeTrack{id: "a", kind: KindAudio}
	m.Register(tr)

	m.Unregister("a")
	if n := m.LiveCount(); n != 0 {
		t.Fatalf("LiveCount = %d", n)
	}

	m.ReleaseAll()
	if tr.stops != 0 {
		t.Fatalf("unregistered track was stopped %d times", tr.stops)
	}
}

func TestDeviceErrorMessage(t *testing.T) {
	err := &DeviceError{Reason: "camera busy", Err: errors.New("EBUSY")}
	if got := err.Error(); got != "media: camera busy: EBUSY" {
		t.Fatalf("Error() = %q", got)
	}
	bare := &DeviceError{Reason: "no capture backend"}
	if got := bare.Error(); got != "media: no capture backend" {
		t.Fatalf("Error() = %q", got)
	}
}
