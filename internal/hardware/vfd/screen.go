package vfd

import (
	"github.com/timbell/slimserver/internal/domain/player"
	"github.com/timbell/slimserver/internal/transport/slimp3"
)

// DefaultBrightness is full brightness.
const DefaultBrightness = 0

// Screen pushes rendered text to a player's display. It keeps the
// brightness setting; the charset comes from each player's capability
// profile.
type Screen struct {
	brightness int
}

// NewScreen creates a screen driver with the given brightness (0 full
// to 3 dimmest).
func NewScreen(brightness int) *Screen {
	return &Screen{brightness: brightness}
}

// Show renders two lines of text and sends the refresh to the player.
func (s *Screen) Show(p *player.Player, line1, line2 string) error {
	payload := Render(p.Profile().Charset, s.brightness, line1, line2)
	return p.Send(slimp3.FrameDisplay(payload))
}
