package slimp3_test

import (
	"net"
	"testing"
	"time"

	"github.com/timbell/slimserver/internal/transport/slimp3"
)

type dispatched struct {
	kind  string
	src   *net.UDPAddr
	hello slimp3.Hello
	ack   slimp3.Ack
	ir    slimp3.IREvent
}

// recordingHandler funnels every decoded datagram onto one channel.
type recordingHandler struct {
	ch chan dispatched
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan dispatched, 16)}
}

func (h *recordingHandler) HandleHello(src *net.UDPAddr, hello slimp3.Hello) {
	h.ch <- dispatched{kind: "hello", src: src, hello: hello}
}

func (h *recordingHandler) HandleAck(src *net.UDPAddr, ack slimp3.Ack) {
	h.ch <- dispatched{kind: "ack", src: src, ack: ack}
}

func (h *recordingHandler) HandleIR(src *net.UDPAddr, ev slimp3.IREvent) {
	h.ch <- dispatched{kind: "ir", src: src, ir: ev}
}

func (h *recordingHandler) next(t *testing.T) dispatched {
	t.Helper()
	select {
	case d := <-h.ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatched datagram")
		return dispatched{}
	}
}

func (h *recordingHandler) none(t *testing.T) {
	t.Helper()
	select {
	case d := <-h.ch:
		t.Fatalf("unexpected dispatch %q", d.kind)
	case <-time.After(50 * time.Millisecond):
	}
}

// startServer binds a server on loopback and returns it with a client
// socket aimed at it.
func startServer(t *testing.T) (*slimp3.Server, *recordingHandler, *net.UDPConn) {
	t.Helper()

	handler := newRecordingHandler()
	srv, err := slimp3.NewServer("127.0.0.1:0", handler)
	if err != nil {
		t.Fatalf("Failed to bind server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	go srv.Serve()

	client, err := net.DialUDP("udp", nil, srv.Conn().LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return srv, handler, client
}

func TestServerDispatchesHello(t *testing.T) {
	_, handler, client := startServer(t)

	datagram := []byte{'h', 1, 2, 2, 0x00, 0x04, 0x20, 0x03, 0x04, 0xe0}
	if _, err := client.Write(datagram); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	d := handler.next(t)
	if d.kind != "hello" {
		t.Fatalf("expected a hello dispatch, got %q", d.kind)
	}
	if d.hello.ID.String() != "00:04:20:03:04:e0" {
		t.Errorf("expected parsed identity, got %s", d.hello.ID)
	}
	if d.hello.Revision() != 2.2 {
		t.Errorf("expected revision 2.2, got %g", d.hello.Revision())
	}
	if d.src == nil {
		t.Error("expected a source address")
	}
}

func TestServerDispatchesAck(t *testing.T) {
	_, handler, client := startServer(t)

	datagram := []byte{'a', 0, 0, 0, 0, 0, 0x20, 0x00, 0x10, 0x00, 0x00, 0x2a}
	if _, err := client.Write(datagram); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	d := handler.next(t)
	if d.kind != "ack" {
		t.Fatalf("expected an ack dispatch, got %q", d.kind)
	}
	if d.ack.WritePointer != 0x2000 || d.ack.ReadPointer != 0x1000 {
		t.Errorf("expected parsed pointers, got %+v", d.ack)
	}
	if d.ack.Sequence != 0x2a {
		t.Errorf("expected sequence 0x2a, got %#x", d.ack.Sequence)
	}
}

func TestServerDispatchesIR(t *testing.T) {
	_, handler, client := startServer(t)

	datagram := []byte{'i', 0, 0x00, 0x09, 0x89, 0x68, 0, 0, 0x76, 0x89, 0x10, 0xef}
	if _, err := client.Write(datagram); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	d := handler.next(t)
	if d.kind != "ir" {
		t.Fatalf("expected an ir dispatch, got %q", d.kind)
	}
	if d.ir.Ticks != 625000 {
		t.Errorf("expected 625000 ticks, got %d", d.ir.Ticks)
	}
	if d.ir.Code != 0x768910ef {
		t.Errorf("expected code 0x768910ef, got %#x", d.ir.Code)
	}
}

func TestServerIgnoresUnknownAndMalformed(t *testing.T) {
	_, handler, client := startServer(t)

	// Unknown tag
	if _, err := client.Write([]byte{'z', 1, 2, 3}); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	// Truncated hello
	if _, err := client.Write([]byte{'h', 1}); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	handler.none(t)
}

func TestServerServeReturnsOnClose(t *testing.T) {
	handler := newRecordingHandler()
	srv, err := slimp3.NewServer("127.0.0.1:0", handler)
	if err != nil {
		t.Fatalf("Failed to bind server: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	srv.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil from Serve after close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after close")
	}
}
