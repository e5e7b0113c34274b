// Package player models a SliMP3-class player on the network: its
// immutable hardware identity, its rebindable datagram address, and the
// playback state machine that drives the stream to it.
package player

// State is the playback state of a single player. A player is in
// exactly one state at a time; transitions happen only through the
// Controller's transport operations.
type State string

// Playback states.
const (
	StateStopped State = "stop"
	StatePlaying State = "play"
	StatePaused  State = "pause"
)
