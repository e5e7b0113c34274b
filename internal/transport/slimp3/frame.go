// Package slimp3 implements the UDP wire protocol spoken by SliMP3-class
// players: outbound frame construction for the three packet shapes
// (display, audio, bus command), parsing of the datagrams the player
// sends back, and the ack-clocked audio stream transport built on top.
//
// The byte layouts are decoded structurally by fixed-function hardware
// on the receiving end. Field offsets, padding widths, and endianness
// must match the device exactly; none of them are negotiable.
package slimp3

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// Packet tags, the first byte of every datagram in either direction.
const (
	// TagDisplay marks a server->player display update.
	TagDisplay byte = 'l'
	// TagAudio marks a server->player audio data chunk.
	TagAudio byte = 'm'
	// TagBus marks a server->player command on the low-level control
	// bus (i2c) that configures the decoder chip.
	TagBus byte = '2'

	// TagHello marks a player->server announcement carrying the unit's
	// identity and firmware revision.
	TagHello byte = 'h'
	// TagAck marks a player->server acknowledgement of an audio chunk,
	// carrying the device's buffer pointers.
	TagAck byte = 'a'
	// TagIR marks a player->server infrared remote event.
	TagIR byte = 'i'
)

// Stream control codes carried in byte 1 of an audio packet. They drive
// the MPEG decoder on the device.
const (
	// ControlRun starts or keeps the decoder running.
	ControlRun uint8 = 0
	// ControlHalt halts the decoder without touching buffer pointers.
	ControlHalt uint8 = 1
	// ControlReset halts the decoder and resets the buffer pointers.
	ControlReset uint8 = 3
)

// AudioHeaderSize is the fixed size of the audio packet header; the
// payload begins immediately after it.
const AudioHeaderSize = 17

// Audio packet header offsets. Bytes not listed are reserved and sent
// as zero.
const (
	audioOffControl = 1
	audioOffWptr    = 6
	audioOffSeq     = 9
)

const (
	ackSize   = 12
	helloSize = 10
	irSize    = 12
)

// FrameDisplay builds a display update packet: the tag followed by the
// raw payload. There is no length prefix; the receiver infers the
// payload length from the datagram size.
func FrameDisplay(payload []byte) []byte {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, TagDisplay)
	frame = append(frame, payload...)
	return frame
}

// FrameBusCommand builds a control-bus packet: the tag followed by the
// raw i2c script.
func FrameBusCommand(payload []byte) []byte {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, TagBus)
	frame = append(frame, payload...)
	return frame
}

// FrameAudioChunk builds an audio data packet. wptr is the device ring
// buffer write pointer in 16-bit words; seq is the chunk sequence number
// echoed back in the device's ack. The framer does not validate the
// payload; chunk sizing is the caller's responsibility.
func FrameAudioChunk(control uint8, wptr uint16, seq uint16, payload []byte) []byte {
	frame := make([]byte, AudioHeaderSize, AudioHeaderSize+len(payload))
	frame[0] = TagAudio
	frame[audioOffControl] = control
	binary.BigEndian.PutUint16(frame[audioOffWptr:], wptr)
	binary.BigEndian.PutUint16(frame[audioOffSeq:], seq)
	return append(frame, payload...)
}

// AudioChunk holds the structural fields of a parsed audio packet.
type AudioChunk struct {
	Control      uint8
	WritePointer uint16
	Sequence     uint16
	Payload      []byte
}

// ParseAudioChunk decodes an audio packet back into its structural
// fields. It is the reference decoder for the documented offsets and is
// primarily used to verify framing.
func ParseAudioChunk(data []byte) (AudioChunk, error) {
	if len(data) < AudioHeaderSize {
		return AudioChunk{}, fmt.Errorf("audio packet too short: %d bytes", len(data))
	}
	if data[0] != TagAudio {
		return AudioChunk{}, fmt.Errorf("not an audio packet: tag %q", data[0])
	}
	return AudioChunk{
		Control:      data[audioOffControl],
		WritePointer: binary.BigEndian.Uint16(data[audioOffWptr:]),
		Sequence:     binary.BigEndian.Uint16(data[audioOffSeq:]),
		Payload:      data[AudioHeaderSize:],
	}, nil
}

// Ack is the player's acknowledgement of an audio chunk. The pointers
// are in 16-bit words into the device's 128 KiB ring buffer.
type Ack struct {
	WritePointer uint16
	ReadPointer  uint16
	Sequence     uint16
}

// Fullness returns how many bytes sit unplayed in the device buffer,
// derived from the pointer distance modulo the 16-bit word space.
func (a Ack) Fullness() int {
	return int(a.WritePointer-a.ReadPointer) * 2
}

// ParseAck decodes an ack packet: tag, 5 reserved bytes, then the write
// pointer, read pointer, and sequence number as big-endian 16-bit words.
func ParseAck(data []byte) (Ack, error) {
	if len(data) < ackSize {
		return Ack{}, fmt.Errorf("ack packet too short: %d bytes", len(data))
	}
	if data[0] != TagAck {
		return Ack{}, fmt.Errorf("not an ack packet: tag %q", data[0])
	}
	return Ack{
		WritePointer: binary.BigEndian.Uint16(data[6:]),
		ReadPointer:  binary.BigEndian.Uint16(data[8:]),
		Sequence:     binary.BigEndian.Uint16(data[10:]),
	}, nil
}

// Hello is the player's announcement packet. The firmware revision is
// carried as separate integer and tenths bytes (2.2 arrives as 2, 2).
type Hello struct {
	DeviceKind byte
	Major      uint8
	Tenths     uint8
	ID         net.HardwareAddr
}

// Revision returns the firmware revision as a decimal number.
func (h Hello) Revision() float64 {
	return float64(h.Major) + float64(h.Tenths)/10
}

// ParseHello decodes a hello packet: tag, device kind, firmware integer
// and tenths bytes, then the 6-byte hardware identity.
func ParseHello(data []byte) (Hello, error) {
	if len(data) < helloSize {
		return Hello{}, fmt.Errorf("hello packet too short: %d bytes", len(data))
	}
	if data[0] != TagHello {
		return Hello{}, fmt.Errorf("not a hello packet: tag %q", data[0])
	}
	id := make(net.HardwareAddr, 6)
	copy(id, data[4:10])
	return Hello{
		DeviceKind: data[1],
		Major:      data[2],
		Tenths:     data[3],
		ID:         id,
	}, nil
}

// IREvent is a remote control event reported by the player. Ticks is
// the device clock timestamp of the key press; Code is the raw IR code.
type IREvent struct {
	Ticks uint32
	Code  uint32
}

// Elapsed converts the tick timestamp into a duration, given the device
// clock rate in ticks per second.
func (e IREvent) Elapsed(ticksPerSecond int) time.Duration {
	return time.Duration(e.Ticks) * time.Second / time.Duration(ticksPerSecond)
}

// ParseIR decodes an infrared event packet: tag, 1 reserved byte, the
// 32-bit big-endian device clock timestamp, 2 reserved bytes, and the
// 32-bit big-endian IR code.
func ParseIR(data []byte) (IREvent, error) {
	if len(data) < irSize {
		return IREvent{}, fmt.Errorf("ir packet too short: %d bytes", len(data))
	}
	if data[0] != TagIR {
		return IREvent{}, fmt.Errorf("not an ir packet: tag %q", data[0])
	}
	return IREvent{
		Ticks: binary.BigEndian.Uint32(data[2:]),
		Code:  binary.BigEndian.Uint32(data[8:]),
	}, nil
}
