// Package capability resolves per-device display and timing parameters
// from a player's hardware identity and firmware revision.
package capability

import (
	"bytes"
	"net"
)

// Charset identifies the character set burned into a player's display
// controller. Early firmware only ever shipped with katakana displays;
// later hardware shipped regional variants distinguishable by MAC address.
type Charset string

const (
	// CharsetLatin1 is the Latin-1 display variant.
	CharsetLatin1 Charset = "latin1"
	// CharsetEuropean is the European display variant.
	CharsetEuropean Charset = "european"
	// CharsetKatakana is the katakana display variant fitted to all early
	// units and to later units outside the known vendor blocks.
	CharsetKatakana Charset = "katakana"
)

// TicksPerSecond is the audio clock rate of the device family, in ticks
// per second. Timestamps reported by the player are expressed in these
// ticks. It is a property of the audio clock, not of the display.
const TicksPerSecond = 625000

// Firmware 2.2 introduced the regional display variants; anything older
// always has a katakana display.
const minRegionalRevision = 2.2

// Manufacturing exceptions and vendor blocks, preserved verbatim from
// observed hardware. These are undocumented facts about shipped units:
// any change here is a behavior change, not a cleanup.
var (
	latin1Unit   = net.HardwareAddr{0x00, 0x04, 0x20, 0x03, 0x04, 0xe0}
	europeanUnit = net.HardwareAddr{0x00, 0x04, 0x20, 0x02, 0x07, 0x6e}

	europeanBlocks = []net.HardwareAddr{
		{0x00, 0x04, 0x20, 0x04},
		{0x00, 0x04, 0x20, 0x00},
	}
)

// Profile is the resolved, read-only capability record for one player.
// It is computed once at registration and never changes afterward.
type Profile struct {
	Charset        Charset
	TicksPerSecond int
}

// Resolve derives the capability profile for a player from its 6-byte
// hardware identity and firmware revision. It is total: identities that
// match nothing fall back to the katakana variant.
func Resolve(id net.HardwareAddr, revision float64) Profile {
	return Profile{
		Charset:        resolveCharset(id, revision),
		TicksPerSecond: TicksPerSecond,
	}
}

// resolveCharset picks the display variant. Matching is byte-exact for
// the two exception units and byte-prefix for the vendor blocks - never
// fuzzy.
func resolveCharset(id net.HardwareAddr, revision float64) Charset {
	if revision < minRegionalRevision {
		return CharsetKatakana
	}

	if bytes.Equal(id, latin1Unit) {
		return CharsetLatin1
	}

	if bytes.Equal(id, europeanUnit) {
		return CharsetEuropean
	}
	for _, block := range europeanBlocks {
		if bytes.HasPrefix(id, block) {
			return CharsetEuropean
		}
	}

	return CharsetKatakana
}
