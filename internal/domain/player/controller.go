package player

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// BufferCapacity is the size in bytes of the audio ring buffer on the
// device. It is a property of the shipped hardware, not something the
// device reports.
const BufferCapacity = 131072

// Mixer applies a volume level to a player's output hardware.
type Mixer interface {
	SetVolume(p *Player, volume int) error
}

// Decoder controls a player's MPEG decoder chip.
type Decoder interface {
	Reset(p *Player) error
}

// Transport manages buffered audio delivery to players. Fullness
// reports how many bytes sit unplayed in the device buffer; it returns
// zero for a player with no open session.
type Transport interface {
	Open(p *Player, startPaused bool) error
	Pause(p *Player) error
	Unpause(p *Player) error
	Stop(p *Player) error
	Drain(p *Player) error
	Fullness(p *Player) int
}

// Controller is the playback state machine for one player. It owns the
// player's stream state exclusively and delegates on-wire effects to
// its collaborators. Collaborator failures propagate to the caller and
// leave the state unchanged.
type Controller struct {
	mu        sync.Mutex
	player    *Player
	mixer     Mixer
	decoder   Decoder
	transport Transport
	state     State
}

// NewController creates a controller for p in the Stopped state.
func NewController(p *Player, mixer Mixer, decoder Decoder, transport Transport) *Controller {
	return &Controller{
		player:    p,
		mixer:     mixer,
		decoder:   decoder,
		transport: transport,
		state:     StateStopped,
	}
}

// Player returns the player this controller drives.
func (c *Controller) Player() *Player {
	return c.player
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Play starts a new stream: it applies the configured volume, resets
// the decoder, and opens a transport session. With startPaused set the
// session opens frozen and the player lands in Paused; otherwise it
// lands in Playing. Play restarts cleanly from any prior state,
// including Playing.
func (c *Controller) Play(startPaused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Info().
		Str("player", c.player.ID().String()).
		Bool("paused", startPaused).
		Msg("Play")

	if err := c.mixer.SetVolume(c.player, c.player.Volume()); err != nil {
		return fmt.Errorf("failed to apply volume: %w", err)
	}
	if err := c.decoder.Reset(c.player); err != nil {
		return fmt.Errorf("failed to reset decoder: %w", err)
	}
	if err := c.transport.Open(c.player, startPaused); err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if startPaused {
		c.state = StatePaused
	} else {
		c.state = StatePlaying
	}
	return nil
}

// Resume unfreezes a stream. The volume is re-applied first: the
// hardware may have been reset while paused, and a resume must never
// come up silent.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Info().Str("player", c.player.ID().String()).Msg("Resume")

	if err := c.mixer.SetVolume(c.player, c.player.Volume()); err != nil {
		return fmt.Errorf("failed to apply volume: %w", err)
	}
	if err := c.transport.Unpause(c.player); err != nil {
		return fmt.Errorf("failed to unpause stream: %w", err)
	}

	c.state = StatePlaying
	return nil
}

// Pause freezes the stream in place.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Info().Str("player", c.player.ID().String()).Msg("Pause")

	if err := c.transport.Pause(c.player); err != nil {
		return fmt.Errorf("failed to pause stream: %w", err)
	}

	c.state = StatePaused
	return nil
}

// Stop tears the stream down. Stopping an already stopped player is a
// harmless no-op on the state.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Info().Str("player", c.player.ID().String()).Msg("Stop")

	if err := c.transport.Stop(c.player); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}

	c.state = StateStopped
	return nil
}

// Playout tells the transport to stop feeding and let the device play
// out what it has buffered. It is a drain hint on top of Playing and
// does not change the playback state.
func (c *Controller) Playout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Debug().Str("player", c.player.ID().String()).Msg("Playout")

	if err := c.transport.Drain(c.player); err != nil {
		return fmt.Errorf("failed to drain stream: %w", err)
	}
	return nil
}

// BufferFullness reports how many bytes of audio sit unplayed in the
// device buffer.
func (c *Controller) BufferFullness() int {
	return c.transport.Fullness(c.player)
}

// BufferCapacity reports the device buffer size in bytes.
func (c *Controller) BufferCapacity() int {
	return BufferCapacity
}
