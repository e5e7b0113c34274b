// Package mas3507d drives the MAS3507D MPEG decoder fitted in these
// players. The chip hangs off a two-wire control bus reached by
// tunneling a small bus script inside a bus-command datagram; the
// player firmware replays the script onto the wires verbatim.
package mas3507d

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/timbell/slimserver/internal/domain/player"
	"github.com/timbell/slimserver/internal/transport/slimp3"
)

// Bus script opcodes understood by the player firmware.
const (
	scriptStart = 's'
	scriptWrite = 'w'
	scriptStop  = 'p'
)

const (
	// chipAddress is the decoder's write address on the control bus.
	chipAddress = 0x3a
	// cmdWriteD1 writes a 20-bit word into DSP D1 memory.
	cmdWriteD1 = 0x68
	// cmdControl writes the chip control register.
	cmdControl = 0x6a
)

// DSP D1 memory cells.
const (
	addrVolumeLeft  = 0x7f8
	addrVolumeRight = 0x7f9
)

// ctlSoftReset returns the control register to its power-on state,
// halting the bitstream parser and flushing the decode pipeline.
const ctlSoftReset = 0x0000

// gainFullScale is the 20-bit linear gain word for full output.
const gainFullScale = 0xfffff

// Driver builds and sends decoder control scripts. One driver serves
// every player; it keeps no per-player state.
type Driver struct{}

// New creates a decoder driver.
func New() *Driver {
	return &Driver{}
}

// Reset soft-resets the decoder. The Controller calls this before each
// new stream so stale bitstream state never bleeds into the next track.
func (d *Driver) Reset(p *player.Player) error {
	log.Debug().Str("player", p.ID().String()).Msg("Resetting decoder")
	return p.Send(slimp3.FrameBusCommand(controlWrite(ctlSoftReset)))
}

// SetVolume applies a 0-100 volume to the decoder's left and right
// gain cells in a single bus script.
func (d *Driver) SetVolume(p *player.Player, volume int) error {
	word := gain(volume)
	log.Debug().
		Str("player", p.ID().String()).
		Int("volume", volume).
		Uint32("gain", word).
		Msg("Setting volume")

	script := memoryWrite(addrVolumeLeft, word)
	script = append(script, memoryWrite(addrVolumeRight, word)...)
	return p.Send(slimp3.FrameBusCommand(script))
}

// gain maps a 0-100 volume onto the decoder's 20-bit linear gain. The
// taper is cubic: the chip's gain cell is linear, and a straight
// mapping squeezes all audible change into the top of the dial.
func gain(volume int) uint32 {
	if volume <= 0 {
		return 0
	}
	if volume >= 100 {
		return gainFullScale
	}
	v := float64(volume) / 100
	return uint32(math.Round(v * v * v * gainFullScale))
}

// controlWrite frames a 16-bit control register write.
func controlWrite(word uint16) []byte {
	return frame(cmdControl, byte(word>>8), byte(word))
}

// memoryWrite frames a 20-bit write into DSP D1 memory. The word rides
// in three bytes, top nibble first.
func memoryWrite(addr uint16, word uint32) []byte {
	return frame(cmdWriteD1,
		byte(addr>>8), byte(addr),
		byte(word>>16&0x0f), byte(word>>8), byte(word))
}

// frame wraps a chip command and its data bytes in a start/stop pair,
// prefixing every byte with the write opcode.
func frame(cmd byte, data ...byte) []byte {
	script := make([]byte, 0, 2*(len(data)+2)+2)
	script = append(script, scriptStart)
	script = append(script, scriptWrite, chipAddress)
	script = append(script, scriptWrite, cmd)
	for _, b := range data {
		script = append(script, scriptWrite, b)
	}
	return append(script, scriptStop)
}
