package slimp3

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/timbell/slimserver/internal/domain/player"
)

// DefaultChunkSize is the audio payload carried per datagram. With the
// header it stays inside a standard Ethernet MTU.
const DefaultChunkSize = 1400

const (
	defaultResendInterval = 100 * time.Millisecond
	defaultPollInterval   = 50 * time.Millisecond
)

// Source provides the MPEG audio for a player's stream session.
type Source interface {
	OpenStream(p *player.Player) (io.ReadCloser, error)
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithChunkSize sets the audio payload size per datagram. Chunks are
// kept even so the device write pointer, which counts 16-bit words,
// stays exact.
func WithChunkSize(n int) Option {
	return func(s *Streamer) { s.chunkSize = n &^ 1 }
}

// WithResendInterval sets how long a chunk may sit unacknowledged
// before it is sent again.
func WithResendInterval(d time.Duration) Option {
	return func(s *Streamer) { s.resend = d }
}

// WithPollInterval sets the pause between housekeeping probes while the
// stream is paused, throttled, or playing out.
func WithPollInterval(d time.Duration) Option {
	return func(s *Streamer) { s.poll = d }
}

// Streamer delivers buffered audio to players over lock-step
// acknowledged datagrams: one chunk in flight per player, resent until
// the device confirms it. It implements the playback controller's
// transport collaborator.
type Streamer struct {
	source    Source
	chunkSize int
	resend    time.Duration
	poll      time.Duration
	highWater int

	mu       sync.Mutex
	sessions map[string]*session
}

// NewStreamer creates a streamer pulling audio from source.
func NewStreamer(source Source, opts ...Option) *Streamer {
	s := &Streamer{
		source:    source,
		chunkSize: DefaultChunkSize,
		resend:    defaultResendInterval,
		poll:      defaultPollInterval,
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Stop topping the device up when less than four chunks of
	// headroom remain in its ring buffer.
	s.highWater = player.BufferCapacity - 4*s.chunkSize
	return s
}

// Open starts a new stream session for p, replacing any session already
// running. With startPaused the session holds off feeding audio until
// Unpause.
func (st *Streamer) Open(p *player.Player, startPaused bool) error {
	src, err := st.source.OpenStream(p)
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}

	sess := newSession(st, p, src, startPaused)

	st.mu.Lock()
	old := st.sessions[sessionKey(p)]
	st.sessions[sessionKey(p)] = sess
	st.mu.Unlock()

	if old != nil {
		// The old pump must be gone before the new one resets the
		// device, or a chunk it still has in flight could land after
		// the reset.
		old.shutdown()
		<-old.done
	}

	log.Info().
		Str("player", p.ID().String()).
		Str("session", sess.id).
		Bool("paused", startPaused).
		Msg("Stream session opened")

	go sess.pump()
	return nil
}

// Pause freezes the player's session. Without a session it still halts
// the decoder, so a pause is never an error at this layer.
func (st *Streamer) Pause(p *player.Player) error {
	if sess := st.lookup(p); sess != nil {
		sess.setPaused(true)
		return nil
	}
	return p.Send(FrameAudioChunk(ControlHalt, 0, 0, nil))
}

// Unpause lets a frozen session flow again. Without a session it still
// prods the decoder, so a resume from Stopped is never an error at
// this layer.
func (st *Streamer) Unpause(p *player.Player) error {
	if sess := st.lookup(p); sess != nil {
		sess.setPaused(false)
		return nil
	}
	return p.Send(FrameAudioChunk(ControlRun, 0, 0, nil))
}

// Stop tears the player's session down and resets the device buffer.
// Stopping a player with no session is a no-op.
func (st *Streamer) Stop(p *player.Player) error {
	st.mu.Lock()
	sess := st.sessions[sessionKey(p)]
	delete(st.sessions, sessionKey(p))
	st.mu.Unlock()

	if sess == nil {
		return nil
	}
	// Wait the pump out: a chunk it already has in flight must not
	// land after the reset and un-halt the device.
	sess.shutdown()
	<-sess.done

	log.Info().
		Str("player", p.ID().String()).
		Str("session", sess.id).
		Msg("Stream session stopped")

	// The pump is gone, so the reset goes out fire-and-forget; its
	// ack will be dropped.
	return p.Send(FrameAudioChunk(ControlReset, 0, 0, nil))
}

// Drain tells the player's session to stop reading new audio and let
// the device play out what it holds.
func (st *Streamer) Drain(p *player.Player) error {
	if sess := st.lookup(p); sess != nil {
		sess.setDraining()
	}
	return nil
}

// Fullness reports how many bytes sit unplayed in the device buffer,
// from the most recent ack. A player with no session reports zero.
func (st *Streamer) Fullness(p *player.Player) int {
	if sess := st.lookup(p); sess != nil {
		return sess.fullnessNow()
	}
	return 0
}

// HandleAck routes a device ack to the player's open session. Acks for
// players with no session are dropped; the device acknowledges the
// final reset chunk after its session is already gone.
func (st *Streamer) HandleAck(p *player.Player, ack Ack) {
	sess := st.lookup(p)
	if sess == nil {
		return
	}
	select {
	case sess.ackCh <- ack:
	default:
	}
}

// Close shuts down every open session and waits for their pumps to
// exit.
func (st *Streamer) Close() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*session)
	st.mu.Unlock()

	for _, sess := range sessions {
		sess.shutdown()
	}
	for _, sess := range sessions {
		<-sess.done
	}
}

func (st *Streamer) lookup(p *player.Player) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[sessionKey(p)]
}

// remove drops sess from the table if it is still the player's current
// session; a replacement opened meanwhile stays untouched.
func (st *Streamer) remove(sess *session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sessions[sessionKey(sess.player)] == sess {
		delete(st.sessions, sessionKey(sess.player))
	}
}

func sessionKey(p *player.Player) string {
	return p.ID().String()
}

// session is one player's stream: a pump goroutine that sends chunks in
// lock-step with the device's acks.
type session struct {
	id     string
	st     *Streamer
	player *player.Player
	src    io.ReadCloser

	ackCh    chan Ack
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	srcOnce  sync.Once

	mu       sync.Mutex
	paused   bool
	draining bool
	fullness int

	// Owned by the pump goroutine.
	wptr uint16
	seq  uint16
}

func newSession(st *Streamer, p *player.Player, src io.ReadCloser, startPaused bool) *session {
	return &session{
		id:     uuid.New().String(),
		st:     st,
		player: p,
		src:    src,
		ackCh:  make(chan Ack, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		paused: startPaused,
	}
}

// shutdown asks the pump to exit. Closing the source too unblocks a
// pump sitting in a source read; done closes once it is out.
func (s *session) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.closeSrc()
	})
}

func (s *session) closeSrc() {
	s.srcOnce.Do(func() { s.src.Close() })
}

func (s *session) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *session) setPaused(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = v
}

func (s *session) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *session) setDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
}

func (s *session) isDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

func (s *session) setFullness(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullness = n
}

func (s *session) fullnessNow() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullness
}

// pump drives the session until it is shut down or the stream has
// played out. The device buffer pointers are zeroed first; after that
// exactly one chunk is in flight at a time.
func (s *session) pump() {
	defer close(s.done)
	defer s.closeSrc()

	for !s.transfer(ControlReset, nil) {
		if s.stopped() {
			return
		}
	}
	halted := true // a reset leaves the decoder halted

	var pending []byte
	eof := false

	for {
		if s.stopped() {
			return
		}

		if s.isPaused() {
			if !halted {
				halted = s.transfer(ControlHalt, nil)
				continue
			}
			s.sleep()
			continue
		}

		if halted {
			if !s.transfer(ControlRun, nil) {
				continue
			}
			halted = false
		}

		if pending == nil && !eof && !s.isDraining() {
			chunk, err := s.read()
			pending = chunk
			if err != nil {
				eof = true
				// A shutdown closes the source under the pump; that
				// read error is not the source failing.
				if err != io.EOF && !s.stopped() {
					log.Warn().Err(err).Str("session", s.id).Msg("Audio source failed; playing out")
				}
			}
		}

		if pending == nil {
			// Nothing left to feed: watch the device drain, then
			// halt it.
			if s.fullnessNow() == 0 {
				s.transfer(ControlHalt, nil)
				log.Info().
					Str("player", s.player.ID().String()).
					Str("session", s.id).
					Msg("Stream played out")
				s.st.remove(s)
				return
			}
			s.transfer(ControlRun, nil)
			s.sleep()
			continue
		}

		if s.fullnessNow() > s.st.highWater {
			// Device buffer is topped up; probe with empty chunks
			// until it has room again.
			s.transfer(ControlRun, nil)
			s.sleep()
			continue
		}

		if s.transfer(ControlRun, pending) {
			pending = nil
		}
	}
}

// transfer sends one chunk and waits for its ack, returning true once
// the device has confirmed it. On timeout, stale ack, or shutdown it
// returns false and the caller retries under the same sequence number.
func (s *session) transfer(control uint8, payload []byte) bool {
	frame := FrameAudioChunk(control, s.wptr, s.seq, payload)
	if err := s.player.Send(frame); err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("Chunk send failed")
	}

	select {
	case <-s.stopCh:
		return false
	case ack := <-s.ackCh:
		s.setFullness(ack.Fullness())
		if ack.Sequence != s.seq {
			return false
		}
		s.seq++
		s.wptr += uint16(len(payload) / 2)
		return true
	case <-time.After(s.st.resend):
		return false
	}
}

// read pulls the next chunk from the source. Chunks keep an even byte
// count; a final odd byte is padded with zero so the word-counting
// write pointer stays exact.
func (s *session) read() ([]byte, error) {
	buf := make([]byte, s.st.chunkSize)
	n, err := io.ReadFull(s.src, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if n == 0 {
		return nil, err
	}
	if n%2 == 1 {
		buf[n] = 0
		n++
	}
	return buf[:n], err
}

func (s *session) sleep() {
	select {
	case <-s.stopCh:
	case <-time.After(s.st.poll):
	}
}
