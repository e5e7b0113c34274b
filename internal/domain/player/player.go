package player

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/timbell/slimserver/internal/domain/capability"
)

// Player is one network audio endpoint. Identity and firmware revision
// are fixed at construction, as is the capability profile resolved from
// them; the datagram address may be rebound when the device reconnects
// from a new port.
type Player struct {
	id       net.HardwareAddr
	revision float64
	profile  capability.Profile

	mu     sync.RWMutex
	conn   *net.UDPConn
	addr   *net.UDPAddr
	volume int
}

// New creates a player from its announced hardware identity and
// firmware revision. The capability profile is resolved once, here.
func New(id net.HardwareAddr, revision float64) *Player {
	p := &Player{
		id:       make(net.HardwareAddr, len(id)),
		revision: revision,
		profile:  capability.Resolve(id, revision),
	}
	copy(p.id, id)
	return p
}

// ID returns the player's 6-byte hardware identity.
func (p *Player) ID() net.HardwareAddr {
	id := make(net.HardwareAddr, len(p.id))
	copy(id, p.id)
	return id
}

// Revision returns the player's firmware revision.
func (p *Player) Revision() float64 {
	return p.revision
}

// Profile returns the player's resolved capability profile.
func (p *Player) Profile() capability.Profile {
	return p.profile
}

// Bind attaches the server's datagram socket and the player's current
// remote address. It is called on every announcement, so a device that
// comes back from a new port is rebound transparently.
func (p *Player) Bind(conn *net.UDPConn, addr *net.UDPAddr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.addr != nil && p.addr.String() != addr.String() {
		log.Info().
			Str("player", p.id.String()).
			Str("old", p.addr.String()).
			Str("new", addr.String()).
			Msg("Player address rebound")
	}
	p.conn = conn
	p.addr = addr
}

// Addr returns the player's current remote address, or nil if the
// player has never been bound.
func (p *Player) Addr() *net.UDPAddr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.addr
}

// Volume returns the player's configured volume (0-100).
func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// SetVolume records the player's volume, clamped to 0-100. It does not
// touch the hardware; the Controller applies it on play and resume.
func (p *Player) SetVolume(volume int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}
	p.volume = volume
}

// Send transmits a framed packet to the player, fire-and-forget. The
// device family has no delivery confirmation; reliability, where it
// exists, lives in the stream transport. Calling Send on a player that
// was never bound is a programming error and panics.
func (p *Player) Send(frame []byte) error {
	p.mu.RLock()
	conn, addr := p.conn, p.addr
	p.mu.RUnlock()

	if conn == nil || addr == nil {
		log.Panic().Str("player", p.id.String()).Msg("Send on unbound player")
	}
	if _, err := conn.WriteToUDP(frame, addr); err != nil {
		return fmt.Errorf("failed to send to %s: %w", addr, err)
	}
	return nil
}
