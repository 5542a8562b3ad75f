//go:build linux && cgo

package media

import (
	"log"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

type codecSelector = mediadevices.CodecSelector

// localTrack adapts a mediadevices capture track to the Manager's Track.
type localTrack struct {
	t    mediadevices.Track
	kind Kind
}

func (l *localTrack) ID() string { return l.t.ID() }
func (l *localTrack) Kind() Kind { return l.kind }
func (l *localTrack) Stop() error { return l.t.Close() }
func (l *localTrack) Local() webrtc.TrackLocal { return l.t }

// capture opens the microphone (always) and the camera (video calls) via
// pion/mediadevices (V4L2 + malgo).
func (m *Manager) capture(kind Kind) ([]Track, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, &DeviceError{Reason: "vp8 encoder unavailable", Err: err}
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, &DeviceError{Reason: "opus encoder unavailable", Err: err}
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	m.selMu.Lock()
	m.lastSelector = selector
	m.selMu.Unlock()

	constraints := mediadevices.MediaStreamConstraints{
		Codec: selector,
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
	}
	if kind == KindVideo {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Exclude MJPEG — some cameras expose an MJPEG V4L2 node that
			// produces malformed JPEG frames, which poisons the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			// Cap at 640×480 — higher resolutions increase VP8 encoding latency.
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, &DeviceError{Reason: "camera/microphone unavailable or busy", Err: err}
	}

	var out []Track
	for _, t := range stream.GetTracks() {
		k := KindAudio
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			k = KindVideo
		}
		lt := &localTrack{t: t, kind: k}
		id := lt.ID()
		t.OnEnded(func(err error) {
			if err != nil {
				log.Printf("MEDIA: local %s track ended: %v", k, err)
			}
			m.Unregister(id)
		})
		out = append(out, lt)
	}
	return out, nil
}

// RegisterCodecs populates the peer connection's media engine from the codec
// selector of the most recent capture, so captured tracks can be bound. With
// no capture yet (receive-only session) the default codecs are registered.
func (m *Manager) RegisterCodecs(me *webrtc.MediaEngine) error {
	m.selMu.Lock()
	selector := m.lastSelector
	m.selMu.Unlock()

	if selector == nil {
		return me.RegisterDefaultCodecs()
	}
	selector.Populate(me)
	return nil
}

// forceRelease briefly opens and immediately closes a combined audio+video
// stream. Some V4L2 drivers keep the camera indicator lit after individual
// tracks are closed; a fresh open/close cycle makes them let go. Best-effort
// platform quirk — failures are logged and swallowed.
func (m *Manager) forceRelease() {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return
	}
	opusParams, err := opus.NewParams()
	if err != nil {
		return
	}
	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Codec: selector,
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Video: func(_ *mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		log.Printf("MEDIA: release confirmation skipped: %v", err)
		return
	}
	for _, t := range stream.GetTracks() {
		if err := t.Close(); err != nil {
			log.Printf("MEDIA: release confirmation close: %v", err)
		}
	}
}
