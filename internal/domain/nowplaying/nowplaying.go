// Package nowplaying mirrors MPD's transport state onto the connected
// players. When MPD starts, pauses or stops, every attached player
// follows, the current track is pushed to each display, and track
// changes are recorded to the playback history.
package nowplaying

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/timbell/slimserver/internal/domain/player"
	"github.com/timbell/slimserver/internal/infra/history"
)

// DefaultWindow is the debounce window for MPD event bursts.
const DefaultWindow = 250 * time.Millisecond

// Source is the part of the MPD client the monitor reads from.
type Source interface {
	Status() (mpd.Attrs, error)
	CurrentSong() (mpd.Attrs, error)
	Watch(subsystems ...string) (<-chan string, error)
}

// Display pushes now-playing text to a player.
type Display interface {
	Show(p *player.Player, line1, line2 string) error
}

// Recorder appends plays to the playback history.
type Recorder interface {
	Record(play history.Play) error
}

// Track is the decoded now-playing snapshot.
type Track struct {
	State  player.State
	Title  string
	Artist string
	Album  string
	URI    string
}

// BuildTrack converts MPD status and song attributes into a Track.
func BuildTrack(status, song mpd.Attrs) Track {
	track := Track{URI: song["file"]}

	switch status["state"] {
	case "play":
		track.State = player.StatePlaying
	case "pause":
		track.State = player.StatePaused
	default:
		track.State = player.StateStopped
	}

	track.Title = song["Title"]
	if track.Title == "" {
		// Internet radio carries the stream name instead of tags
		if name := song["Name"]; name != "" {
			track.Title = name
		} else if file := song["file"]; file != "" {
			parts := strings.Split(file, "/")
			track.Title = parts[len(parts)-1]
		}
	}

	track.Artist = song["Artist"]
	track.Album = song["Album"]
	return track
}

// Lines formats the track for a two-line display. A stopped track
// blanks the display.
func (t Track) Lines() (string, string) {
	if t.State == player.StateStopped {
		return "", ""
	}
	return t.Title, t.Artist
}

// Monitor drives the attached players from MPD state changes.
type Monitor struct {
	source   Source
	display  Display
	recorder Recorder
	deb      *Debouncer

	mu      sync.Mutex
	targets map[string]*player.Controller
	last    Track
}

// NewMonitor creates a monitor debouncing MPD events over the given
// window. display and recorder may be nil.
func NewMonitor(source Source, display Display, recorder Recorder, window time.Duration) *Monitor {
	m := &Monitor{
		source:   source,
		display:  display,
		recorder: recorder,
		targets:  make(map[string]*player.Controller),
	}
	m.deb = NewDebouncer(window, m.Refresh)
	return m
}

// Attach adds a player to the set driven by MPD. The player is brought
// in line with the current state on the next refresh.
func (m *Monitor) Attach(ctrl *player.Controller) {
	id := ctrl.Player().ID().String()

	m.mu.Lock()
	m.targets[id] = ctrl
	m.mu.Unlock()

	log.Info().Str("player", id).Msg("Player attached to MPD mirror")
	m.deb.Trigger()
}

// Detach removes a player from the mirrored set.
func (m *Monitor) Detach(id string) {
	m.mu.Lock()
	delete(m.targets, id)
	m.mu.Unlock()
}

// Start begins watching MPD and mirroring changes until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	events, err := m.source.Watch("player")
	if err != nil {
		return err
	}

	m.Refresh()

	go func() {
		log.Info().Msg("MPD watcher started")
		defer m.deb.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("MPD watcher stopped")
				return
			case subsystem, ok := <-events:
				if !ok {
					log.Warn().Msg("MPD watcher channel closed")
					return
				}
				log.Debug().Str("subsystem", subsystem).Msg("MPD subsystem changed")
				m.deb.Trigger()
			}
		}
	}()

	return nil
}

// Refresh reads MPD and brings every attached player in line with it.
func (m *Monitor) Refresh() {
	status, err := m.source.Status()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read MPD status")
		return
	}
	song, err := m.source.CurrentSong()
	if err != nil {
		// Not fatal - might not have a song playing
		song = mpd.Attrs{}
	}
	track := BuildTrack(status, song)

	m.mu.Lock()
	newPlay := track.State == player.StatePlaying && track.Title != "" &&
		(track.URI != m.last.URI || m.last.State == player.StateStopped)
	m.last = track
	targets := make([]*player.Controller, 0, len(m.targets))
	for _, ctrl := range m.targets {
		targets = append(targets, ctrl)
	}
	m.mu.Unlock()

	for _, ctrl := range targets {
		m.apply(ctrl, track)
	}

	if newPlay && m.recorder != nil {
		for _, ctrl := range targets {
			play := history.Play{
				PlayerID:  ctrl.Player().ID().String(),
				Artist:    track.Artist,
				Album:     track.Album,
				Title:     track.Title,
				StartedAt: time.Now(),
			}
			if err := m.recorder.Record(play); err != nil {
				log.Warn().Err(err).Msg("Failed to record play")
			}
		}
	}
}

// apply drives one player to the given playback state and refreshes
// its display.
func (m *Monitor) apply(ctrl *player.Controller, track Track) {
	id := ctrl.Player().ID().String()

	var err error
	switch track.State {
	case player.StatePlaying:
		switch ctrl.State() {
		case player.StatePaused:
			err = ctrl.Resume()
		case player.StateStopped:
			err = ctrl.Play(false)
		}
	case player.StatePaused:
		switch ctrl.State() {
		case player.StatePlaying:
			err = ctrl.Pause()
		case player.StateStopped:
			// Join mid-pause holding audio until MPD resumes
			err = ctrl.Play(true)
		}
	default:
		if ctrl.State() != player.StateStopped {
			err = ctrl.Stop()
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("player", id).Msg("Failed to mirror playback state")
		return
	}

	if m.display != nil {
		line1, line2 := track.Lines()
		if err := m.display.Show(ctrl.Player(), line1, line2); err != nil {
			log.Warn().Err(err).Str("player", id).Msg("Failed to update display")
		}
	}
}
