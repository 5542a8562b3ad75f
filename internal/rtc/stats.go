package rtc

import (
	"log"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/avdwoude/callbox/internal/media"
)

// keyframeInterval is how often a PLI is sent upstream for a remote video
// track. Without periodic keyframe requests a receiver that joins mid-stream
// or loses packets can stay on a corrupted frame indefinitely.
const keyframeInterval = 3 * time.Second

// TrackStats is a point-in-time snapshot of a remote track's inbound flow.
type TrackStats struct {
	Packets     uint64    `json:"packets"`
	Bytes       uint64    `json:"bytes"`
	LastArrival time.Time `json:"last_arrival"`
}

// RemoteTrack drains an inbound track and keeps receive statistics. The
// drain starts immediately: an undrained pion track backs up its internal
// buffers and stalls the whole connection. It satisfies media.Track so the
// media manager can find it on teardown.
type RemoteTrack struct {
	tr   *webrtc.TrackRemote
	peer *PeerConn

	mu    sync.Mutex
	stats TrackStats

	done     chan struct{}
	stopOnce sync.Once
}

// NewRemoteTrack wraps tr and starts draining it. Video tracks additionally
// request a keyframe upstream on a fixed interval.
func NewRemoteTrack(p *PeerConn, tr *webrtc.TrackRemote) *RemoteTrack {
	r := &RemoteTrack{
		tr:   tr,
		peer: p,
		done: make(chan struct{}),
	}
	go r.drain()
	if tr.Kind() == webrtc.RTPCodecTypeVideo {
		go r.keyframeLoop()
	}
	return r
}

func (r *RemoteTrack) ID() string { return r.tr.ID() }

func (r *RemoteTrack) Kind() media.Kind {
	if r.tr.Kind() == webrtc.RTPCodecTypeVideo {
		return media.KindVideo
	}
	return media.KindAudio
}

// Local returns nil: remote tracks are receive-only.
func (r *RemoteTrack) Local() webrtc.TrackLocal { return nil }

// Stop ends the keyframe loop. The drain goroutine exits on its own when
// the peer connection closes the track.
func (r *RemoteTrack) Stop() error {
	r.stopOnce.Do(func() { close(r.done) })
	return nil
}

// Stats returns a copy of the current receive counters.
func (r *RemoteTrack) Stats() TrackStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *RemoteTrack) drain() {
	var pkt *rtp.Packet
	for {
		var err error
		pkt, _, err = r.tr.ReadRTP()
		if err != nil {
			log.Printf("RTC: remote %s track %s drained: %v", r.tr.Kind(), r.tr.ID(), err)
			r.Stop()
			return
		}
		r.mu.Lock()
		r.stats.Packets++
		r.stats.Bytes += uint64(pkt.MarshalSize())
		r.stats.LastArrival = time.Now()
		r.mu.Unlock()
	}
}

func (r *RemoteTrack) keyframeLoop() {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			err := r.peer.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(r.tr.SSRC())},
			})
			if err != nil {
				return
			}
		}
	}
}
