package pionengine

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/okteva/conclave/internal/media"
)

func newTestRouter(t *testing.T) media.Router {
	t.Helper()
	e := New(DefaultConfig())
	w, err := e.CreateWorker(0)
	require.NoError(t, err)
	r, err := w.CreateRouter(media.DefaultCodecs())
	require.NoError(t, err)
	return r
}

// attachedTracks counts senders that actually carry a track; the transceivers
// created at transport setup have senders with no track bound.
func attachedTracks(pc *webrtc.PeerConnection) int {
	n := 0
	for _, s := range pc.GetSenders() {
		if s.Track() != nil {
			n++
		}
	}
	return n
}

func TestConsumerCarriesNoTrackUntilResume(t *testing.T) {
	r := newTestRouter(t)

	send, err := r.CreateTransport(media.DirectionSend)
	require.NoError(t, err)
	defer send.Close()
	p, err := send.Produce(media.KindVideo, media.CodecParameters{MimeType: "video/VP8", ClockRate: 90000})
	require.NoError(t, err)

	recv, err := r.CreateTransport(media.DirectionRecv)
	require.NoError(t, err)
	defer recv.Close()

	c, err := recv.Consume(p)
	require.NoError(t, err)

	pc := recv.(*transport).pc
	require.Equal(t, 0, attachedTracks(pc))

	require.NoError(t, c.Resume())
	require.Equal(t, 1, attachedTracks(pc))

	// Resuming again must not attach a second copy of the track.
	require.NoError(t, c.Resume())
	require.Equal(t, 1, attachedTracks(pc))

	c.Close()
	require.Equal(t, 0, attachedTracks(pc))
	require.Error(t, c.Resume())
}

func TestConsumeRequiresRecvTransport(t *testing.T) {
	r := newTestRouter(t)

	send, err := r.CreateTransport(media.DirectionSend)
	require.NoError(t, err)
	defer send.Close()
	p, err := send.Produce(media.KindAudio, media.CodecParameters{MimeType: "audio/opus", ClockRate: 48000, Channels: 2})
	require.NoError(t, err)

	_, err = send.Consume(p)
	require.Error(t, err)
}
