// Package remote maps infrared codes from the player's remote control
// onto playback and volume actions.
package remote

import (
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/timbell/slimserver/internal/domain/capability"
	"github.com/timbell/slimserver/internal/domain/player"
)

// Action is a decoded remote key.
type Action string

const (
	ActionNone       Action = ""
	ActionPower      Action = "power"
	ActionPlay       Action = "play"
	ActionPause      Action = "pause"
	ActionNext       Action = "next"
	ActionPrevious   Action = "previous"
	ActionVolumeUp   Action = "volume_up"
	ActionVolumeDown Action = "volume_down"
)

// JVC-protocol codes sent by the stock remote.
const (
	CodePower      uint32 = 0x768940bf
	CodeVolumeUp   uint32 = 0x7689807f
	CodeVolumeDown uint32 = 0x768900ff
	CodePlay       uint32 = 0x768910ef
	CodePause      uint32 = 0x768920df
	CodeRewind     uint32 = 0x7689c03f
	CodeForward    uint32 = 0x7689a05f
)

var codeActions = map[uint32]Action{
	CodePower:      ActionPower,
	CodeVolumeUp:   ActionVolumeUp,
	CodeVolumeDown: ActionVolumeDown,
	CodePlay:       ActionPlay,
	CodePause:      ActionPause,
	CodeRewind:     ActionPrevious,
	CodeForward:    ActionNext,
}

// Lookup returns the action bound to an infrared code.
func Lookup(code uint32) Action {
	return codeActions[code]
}

// VolumeStep is how much one volume key press changes the level.
const VolumeStep = 5

// repeatGuard is the minimum tick gap between distinct presses of the
// same key. Held keys repeat faster than this; volume keys are exempt
// so holding one sweeps the level.
const repeatGuard = capability.TicksPerSecond / 4

// Transport drives the shared MPD playlist.
type Transport interface {
	Status() (mpd.Attrs, error)
	Play() error
	Pause(pause bool) error
	Stop() error
	Next() error
	Previous() error
}

// Mixer applies an output level to a player.
type Mixer interface {
	SetVolume(p *player.Player, volume int) error
}

// VolumeStore persists per-player volume levels.
type VolumeStore interface {
	SetVolume(id string, volume int) error
}

// Handler applies remote key presses to MPD and to the player that
// received them.
type Handler struct {
	transport Transport
	mixer     Mixer
	volumes   VolumeStore

	mu   sync.Mutex
	last map[string]press
}

type press struct {
	code  uint32
	ticks uint32
}

// NewHandler creates a remote handler. volumes may be nil.
func NewHandler(transport Transport, mixer Mixer, volumes VolumeStore) *Handler {
	return &Handler{
		transport: transport,
		mixer:     mixer,
		volumes:   volumes,
		last:      make(map[string]press),
	}
}

// Handle reacts to one infrared code from a player. ticks is the
// player's 625 kHz timestamp for the press.
func (h *Handler) Handle(p *player.Player, code uint32, ticks uint32) {
	id := p.ID().String()

	action := Lookup(code)
	if action == ActionNone {
		log.Debug().Str("player", id).Uint32("code", code).Msg("Unmapped IR code")
		return
	}

	if h.suppressRepeat(id, code, ticks, action) {
		return
	}

	log.Debug().Str("player", id).Str("action", string(action)).Msg("Remote key")

	var err error
	switch action {
	case ActionPlay:
		err = h.transport.Play()
	case ActionPause:
		err = h.togglePause()
	case ActionPower:
		err = h.transport.Stop()
	case ActionNext:
		err = h.transport.Next()
	case ActionPrevious:
		err = h.transport.Previous()
	case ActionVolumeUp:
		err = h.adjustVolume(p, VolumeStep)
	case ActionVolumeDown:
		err = h.adjustVolume(p, -VolumeStep)
	}
	if err != nil {
		log.Warn().Err(err).Str("player", id).Str("action", string(action)).Msg("Remote action failed")
	}
}

// suppressRepeat drops the autorepeat bursts a held key generates.
func (h *Handler) suppressRepeat(id string, code uint32, ticks uint32, action Action) bool {
	if action == ActionVolumeUp || action == ActionVolumeDown {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	prev, ok := h.last[id]
	h.last[id] = press{code: code, ticks: ticks}
	if !ok || prev.code != code {
		return false
	}
	// Tick subtraction wraps with the counter
	return ticks-prev.ticks < repeatGuard
}

// togglePause flips MPD between play and pause.
func (h *Handler) togglePause() error {
	status, err := h.transport.Status()
	if err != nil {
		return err
	}
	switch status["state"] {
	case "play":
		return h.transport.Pause(true)
	case "pause":
		return h.transport.Pause(false)
	default:
		return h.transport.Play()
	}
}

// adjustVolume moves the player's level, drives the mixer, and persists
// the result.
func (h *Handler) adjustVolume(p *player.Player, delta int) error {
	p.SetVolume(p.Volume() + delta)
	level := p.Volume()

	if err := h.mixer.SetVolume(p, level); err != nil {
		return err
	}
	if h.volumes != nil {
		if err := h.volumes.SetVolume(p.ID().String(), level); err != nil {
			log.Warn().Err(err).Str("player", p.ID().String()).Msg("Failed to persist volume")
		}
	}
	return nil
}
