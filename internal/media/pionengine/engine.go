// Package pionengine implements the media engine boundary on top of
// pion/webrtc. Each worker owns its own webrtc.API with a dedicated slice of
// the configured UDP port range, so routers created on different workers do
// not contend for ports.
package pionengine

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okteva/conclave/internal/media"
)

type Config struct {
	ICEServers []string
	MinPort    uint16
	MaxPort    uint16
	Workers    int
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []string{"stun:stun.l.google.com:19302"},
		MinPort:    10000,
		MaxPort:    10100,
		Workers:    1,
	}
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) CreateWorker(id int) (media.Worker, error) {
	se := webrtc.SettingEngine{}
	lo, hi := e.portSlice(id)
	if err := se.SetEphemeralUDPPortRange(lo, hi); err != nil {
		return nil, fmt.Errorf("set port range [%d,%d]: %w", lo, hi, err)
	}
	w := &worker{
		id:       fmt.Sprintf("worker-%d", id),
		settings: se,
		rtcConfig: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: e.cfg.ICEServers}},
		},
	}
	log.Info().Str("module", "pionengine").Str("worker", w.id).
		Uint16("min_port", lo).Uint16("max_port", hi).Msg("worker created")
	return w, nil
}

// portSlice carves an equal share of the configured UDP range per worker.
func (e *Engine) portSlice(id int) (uint16, uint16) {
	span := e.cfg.MaxPort - e.cfg.MinPort + 1
	per := span / uint16(e.cfg.Workers)
	if per == 0 {
		return e.cfg.MinPort, e.cfg.MaxPort
	}
	lo := e.cfg.MinPort + uint16(id)*per
	hi := lo + per - 1
	if id == e.cfg.Workers-1 {
		hi = e.cfg.MaxPort
	}
	return lo, hi
}

// worker is an in-process engine worker. It cannot die on its own the way an
// external worker process can, but the death hook is part of the worker
// contract and is kept wired for engines that need it.
type worker struct {
	id        string
	settings  webrtc.SettingEngine
	rtcConfig webrtc.Configuration
	onDied    func(error)
}

func (w *worker) ID() string { return w.id }

func (w *worker) OnDied(fn func(error)) { w.onDied = fn }

func (w *worker) Close() {}

func (w *worker) CreateRouter(codecs []media.CodecCapability) (media.Router, error) {
	me := &webrtc.MediaEngine{}
	for _, c := range codecs {
		typ := webrtc.RTPCodecTypeAudio
		pt := webrtc.PayloadType(111)
		if c.Kind == media.KindVideo {
			typ = webrtc.RTPCodecTypeVideo
			pt = 96
		}
		err := me.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:  c.MimeType,
				ClockRate: c.ClockRate,
				Channels:  c.Channels,
			},
			PayloadType: pt,
		}, typ)
		if err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(w.settings))
	return newRouter(api, w.rtcConfig, codecs), nil
}
