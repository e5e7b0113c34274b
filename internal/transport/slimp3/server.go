package slimp3

import (
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
)

// readBufferSize covers the largest datagram a player sends.
const readBufferSize = 1500

// Handler receives decoded inbound datagrams from the control socket.
type Handler interface {
	HandleHello(src *net.UDPAddr, hello Hello)
	HandleAck(src *net.UDPAddr, ack Ack)
	HandleIR(src *net.UDPAddr, ev IREvent)
}

// Server owns the UDP socket the players talk to. All outbound frames
// leave through the same socket, so players are bound to it.
type Server struct {
	conn    *net.UDPConn
	handler Handler
}

// NewServer binds the control socket on addr.
func NewServer(addr string, handler Handler) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind control socket: %w", err)
	}

	log.Info().Str("addr", conn.LocalAddr().String()).Msg("Control socket bound")
	return &Server{conn: conn, handler: handler}, nil
}

// Conn returns the bound socket for outbound sends.
func (s *Server) Conn() *net.UDPConn {
	return s.conn
}

// Serve reads datagrams until the socket is closed.
func (s *Server) Serve() error {
	buf := make([]byte, readBufferSize)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("control socket read failed: %w", err)
		}
		s.dispatch(src, buf[:n])
	}
}

// dispatch decodes one datagram and routes it by tag.
func (s *Server) dispatch(src *net.UDPAddr, datagram []byte) {
	if len(datagram) == 0 {
		return
	}

	switch datagram[0] {
	case TagHello:
		hello, err := ParseHello(datagram)
		if err != nil {
			log.Debug().Err(err).Str("src", src.String()).Msg("Bad hello datagram")
			return
		}
		s.handler.HandleHello(src, hello)
	case TagAck:
		ack, err := ParseAck(datagram)
		if err != nil {
			log.Debug().Err(err).Str("src", src.String()).Msg("Bad ack datagram")
			return
		}
		s.handler.HandleAck(src, ack)
	case TagIR:
		ev, err := ParseIR(datagram)
		if err != nil {
			log.Debug().Err(err).Str("src", src.String()).Msg("Bad IR datagram")
			return
		}
		s.handler.HandleIR(src, ev)
	default:
		log.Debug().
			Str("src", src.String()).
			Uint8("tag", datagram[0]).
			Msg("Unknown datagram tag")
	}
}

// Close shuts the socket down; Serve returns once the pending read
// fails.
func (s *Server) Close() error {
	return s.conn.Close()
}
