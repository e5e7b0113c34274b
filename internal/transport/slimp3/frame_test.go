package slimp3_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/timbell/slimserver/internal/transport/slimp3"
)

func TestFrameDisplay(t *testing.T) {
	payload := []byte{0x02, 0x33, 0x03, 'A'}
	frame := slimp3.FrameDisplay(payload)

	if len(frame) != 1+len(payload) {
		t.Fatalf("expected %d bytes, got %d", 1+len(payload), len(frame))
	}
	if frame[0] != 'l' {
		t.Errorf("expected tag 'l', got %q", frame[0])
	}
	if !bytes.Equal(frame[1:], payload) {
		t.Errorf("expected payload %v after tag, got %v", payload, frame[1:])
	}
}

func TestFrameDisplayEmptyPayload(t *testing.T) {
	frame := slimp3.FrameDisplay(nil)

	if len(frame) != 1 {
		t.Fatalf("expected 1 byte, got %d", len(frame))
	}
	if frame[0] != 'l' {
		t.Errorf("expected tag 'l', got %q", frame[0])
	}
}

func TestFrameBusCommand(t *testing.T) {
	payload := []byte{'s', 'w', 0x3b, 'p'}
	frame := slimp3.FrameBusCommand(payload)

	if frame[0] != '2' {
		t.Errorf("expected tag '2', got %q", frame[0])
	}
	if !bytes.Equal(frame[1:], payload) {
		t.Errorf("expected payload %v after tag, got %v", payload, frame[1:])
	}
}

func TestFrameAudioChunkLayout(t *testing.T) {
	payload := []byte("abc")
	frame := slimp3.FrameAudioChunk(slimp3.ControlHalt, 0x1234, 0x5678, payload)

	if len(frame) != slimp3.AudioHeaderSize+len(payload) {
		t.Fatalf("expected %d bytes, got %d", slimp3.AudioHeaderSize+len(payload), len(frame))
	}
	if frame[0] != 'm' {
		t.Errorf("expected tag 'm', got %q", frame[0])
	}
	if frame[1] != slimp3.ControlHalt {
		t.Errorf("expected control %d at offset 1, got %d", slimp3.ControlHalt, frame[1])
	}
	if frame[6] != 0x12 || frame[7] != 0x34 {
		t.Errorf("expected write pointer 12 34 at offsets 6-7, got %x %x", frame[6], frame[7])
	}
	if frame[9] != 0x56 || frame[10] != 0x78 {
		t.Errorf("expected sequence 56 78 at offsets 9-10, got %x %x", frame[9], frame[10])
	}
	for _, off := range []int{2, 3, 4, 5, 8, 11, 12, 13, 14, 15, 16} {
		if frame[off] != 0 {
			t.Errorf("expected reserved byte at offset %d to be zero, got %#x", off, frame[off])
		}
	}
	if !bytes.Equal(frame[slimp3.AudioHeaderSize:], payload) {
		t.Errorf("expected payload %q at offset %d, got %q", payload, slimp3.AudioHeaderSize, frame[slimp3.AudioHeaderSize:])
	}
}

func TestAudioChunkRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		control uint8
		wptr    uint16
		seq     uint16
		payload []byte
	}{
		{
			name:    "running chunk",
			control: slimp3.ControlRun,
			wptr:    0x1234,
			seq:     0x5678,
			payload: []byte("abc"),
		},
		{
			name:    "halt with empty payload",
			control: slimp3.ControlHalt,
			wptr:    0,
			seq:     0,
			payload: nil,
		},
		{
			name:    "reset at pointer wrap",
			control: slimp3.ControlReset,
			wptr:    0xffff,
			seq:     0xffff,
			payload: []byte{0x00, 0xff},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := slimp3.FrameAudioChunk(tt.control, tt.wptr, tt.seq, tt.payload)

			chunk, err := slimp3.ParseAudioChunk(frame)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if chunk.Control != tt.control {
				t.Errorf("expected control %d, got %d", tt.control, chunk.Control)
			}
			if chunk.WritePointer != tt.wptr {
				t.Errorf("expected write pointer %#x, got %#x", tt.wptr, chunk.WritePointer)
			}
			if chunk.Sequence != tt.seq {
				t.Errorf("expected sequence %#x, got %#x", tt.seq, chunk.Sequence)
			}
			if !bytes.Equal(chunk.Payload, tt.payload) {
				t.Errorf("expected payload %v, got %v", tt.payload, chunk.Payload)
			}
		})
	}
}

func TestParseAudioChunkErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated header", data: []byte{'m', 0, 0, 0, 0, 0, 0, 0}},
		{name: "wrong tag", data: slimp3.FrameDisplay(make([]byte, 32))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := slimp3.ParseAudioChunk(tt.data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseAck(t *testing.T) {
	data := []byte{'a', 0, 0, 0, 0, 0, 0x20, 0x00, 0x10, 0x00, 0x00, 0x2a}

	ack, err := slimp3.ParseAck(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.WritePointer != 0x2000 {
		t.Errorf("expected write pointer 0x2000, got %#x", ack.WritePointer)
	}
	if ack.ReadPointer != 0x1000 {
		t.Errorf("expected read pointer 0x1000, got %#x", ack.ReadPointer)
	}
	if ack.Sequence != 0x2a {
		t.Errorf("expected sequence 0x2a, got %#x", ack.Sequence)
	}
}

func TestAckFullness(t *testing.T) {
	tests := []struct {
		name string
		ack  slimp3.Ack
		want int
	}{
		{
			name: "empty buffer",
			ack:  slimp3.Ack{WritePointer: 0x1000, ReadPointer: 0x1000},
			want: 0,
		},
		{
			name: "half full",
			ack:  slimp3.Ack{WritePointer: 0x9000, ReadPointer: 0x1000},
			want: 0x8000 * 2,
		},
		{
			name: "wrapped pointers",
			ack:  slimp3.Ack{WritePointer: 0x0010, ReadPointer: 0xfff0},
			want: 0x20 * 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ack.Fullness(); got != tt.want {
				t.Errorf("expected fullness %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseAckErrors(t *testing.T) {
	if _, err := slimp3.ParseAck([]byte{'a', 0, 0}); err == nil {
		t.Error("expected error for truncated ack, got nil")
	}
	if _, err := slimp3.ParseAck(make([]byte, 12)); err == nil {
		t.Error("expected error for wrong tag, got nil")
	}
}

func TestParseHello(t *testing.T) {
	data := []byte{'h', 1, 2, 2, 0x00, 0x04, 0x20, 0x03, 0x04, 0xe0}

	hello, err := slimp3.ParseHello(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hello.DeviceKind != 1 {
		t.Errorf("expected device kind 1, got %d", hello.DeviceKind)
	}
	if got := hello.Revision(); got != 2.2 {
		t.Errorf("expected revision 2.2, got %v", got)
	}
	if hello.ID.String() != "00:04:20:03:04:e0" {
		t.Errorf("expected id 00:04:20:03:04:e0, got %s", hello.ID)
	}
}

func TestParseHelloKeepsOwnCopyOfID(t *testing.T) {
	data := []byte{'h', 1, 1, 3, 0x00, 0x04, 0x20, 0x05, 0x06, 0x07}

	hello, err := slimp3.ParseHello(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The receive loop reuses its datagram buffer; the parsed identity
	// must not alias it.
	data[4] = 0xff
	if hello.ID.String() != "00:04:20:05:06:07" {
		t.Errorf("expected id to survive buffer reuse, got %s", hello.ID)
	}
}

func TestParseIR(t *testing.T) {
	data := []byte{'i', 0, 0x00, 0x09, 0x89, 0x68, 0, 0, 0x76, 0x89, 0x10, 0xef}

	ev, err := slimp3.ParseIR(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Ticks != 625000 {
		t.Errorf("expected 625000 ticks, got %d", ev.Ticks)
	}
	if ev.Code != 0x768910ef {
		t.Errorf("expected code 0x768910ef, got %#x", ev.Code)
	}
	if got := ev.Elapsed(625000); got != time.Second {
		t.Errorf("expected one second elapsed, got %v", got)
	}
}
