//go:build !linux || !cgo

package media

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

type codecSelector struct{}

func (m *Manager) capture(Kind) ([]Track, error) {
	return nil, &DeviceError{
		Reason: "no media capture backend on this platform",
		Err:    errors.New("capture requires linux"),
	}
}

// RegisterCodecs registers the default codec set; there is no capture
// pipeline on this platform to align with.
func (m *Manager) RegisterCodecs(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (m *Manager) forceRelease() {}
