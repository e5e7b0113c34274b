package main

import (
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/timbell/slimserver/internal/domain/nowplaying"
	"github.com/timbell/slimserver/internal/domain/player"
	"github.com/timbell/slimserver/internal/domain/registry"
	"github.com/timbell/slimserver/internal/domain/remote"
	"github.com/timbell/slimserver/internal/hardware/mas3507d"
	"github.com/timbell/slimserver/internal/hardware/vfd"
	"github.com/timbell/slimserver/internal/infra/prefs"
	"github.com/timbell/slimserver/internal/transport/slimp3"
	"github.com/timbell/slimserver/internal/version"
)

// slot is one connected player with its stream controller.
type slot struct {
	player *player.Player
	ctrl   *player.Controller
}

// daemon routes inbound datagrams to the domain services. It implements
// slimp3.Handler.
type daemon struct {
	conn     *net.UDPConn
	registry *registry.Registry
	prefs    *prefs.Store
	streamer *slimp3.Streamer
	decoder  *mas3507d.Driver
	screen   *vfd.Screen
	monitor  *nowplaying.Monitor
	remote   *remote.Handler

	mu     sync.Mutex
	byID   map[string]*slot
	byAddr map[string]*slot
}

func newDaemon(reg *registry.Registry, store *prefs.Store, streamer *slimp3.Streamer,
	decoder *mas3507d.Driver, screen *vfd.Screen, monitor *nowplaying.Monitor,
	keys *remote.Handler) *daemon {
	return &daemon{
		registry: reg,
		prefs:    store,
		streamer: streamer,
		decoder:  decoder,
		screen:   screen,
		monitor:  monitor,
		remote:   keys,
		byID:     make(map[string]*slot),
		byAddr:   make(map[string]*slot),
	}
}

// HandleHello registers or rebinds a player announcing itself.
func (d *daemon) HandleHello(src *net.UDPAddr, hello slimp3.Hello) {
	id := hello.ID.String()

	d.mu.Lock()
	s, known := d.byID[id]
	if !known {
		p := player.New(hello.ID, hello.Revision())
		s = &slot{
			player: p,
			ctrl:   player.NewController(p, d.decoder, d.decoder, d.streamer),
		}
		d.byID[id] = s
	}
	// A rebind leaves a stale address entry behind; drop it
	for addr, other := range d.byAddr {
		if other == s && addr != src.String() {
			delete(d.byAddr, addr)
		}
	}
	d.byAddr[src.String()] = s
	d.mu.Unlock()

	s.player.Bind(d.conn, src)
	s.player.SetVolume(d.prefs.Volume(id))
	d.registry.Register(src.String())

	if known {
		log.Debug().Str("player", id).Str("addr", src.String()).Msg("Player hello")
		return
	}

	log.Info().
		Str("player", id).
		Str("addr", src.String()).
		Float64("revision", hello.Revision()).
		Str("charset", string(s.player.Profile().Charset)).
		Msg("Player connected")

	if err := d.screen.Show(s.player, version.Name+" v"+version.Version, "Ready"); err != nil {
		log.Warn().Err(err).Str("player", id).Msg("Failed to greet player")
	}

	d.monitor.Attach(s.ctrl)
}

// HandleAck feeds a stream acknowledgement to the player's session.
func (d *daemon) HandleAck(src *net.UDPAddr, ack slimp3.Ack) {
	s := d.lookup(src)
	if s == nil {
		log.Debug().Str("src", src.String()).Msg("Ack from unknown player")
		return
	}
	d.streamer.HandleAck(s.player, ack)
}

// HandleIR applies a remote key press from a player.
func (d *daemon) HandleIR(src *net.UDPAddr, ev slimp3.IREvent) {
	s := d.lookup(src)
	if s == nil {
		log.Debug().Str("src", src.String()).Msg("IR event from unknown player")
		return
	}
	d.remote.Handle(s.player, ev.Code, ev.Ticks)
}

func (d *daemon) lookup(src *net.UDPAddr) *slot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byAddr[src.String()]
}
