// Package vfd renders text for the 2x40 vacuum fluorescent display in
// these players. The display controller speaks an HD44780-style command
// set; the player firmware forwards the payload of a display datagram
// to it as a stream of two-byte words, each either a command or a
// character.
package vfd

import (
	"github.com/timbell/slimserver/internal/domain/capability"
)

// Display geometry.
const (
	Columns = 40
	Lines   = 2
)

// Word markers. The first byte of each word tells the firmware which
// controller line to strobe.
const (
	wordCommand = 0x02
	wordChar    = 0x03
)

// Controller commands.
const (
	// cmdFunctionSet selects the 8-bit, two-line mode. On this
	// controller the data byte written right after it sets the tube
	// brightness.
	cmdFunctionSet = 0x33
	cmdEntryMode   = 0x06
	cmdDisplayOn   = 0x0c
	cmdAddrLine1   = 0x80
	cmdAddrLine2   = 0xc0
)

// Brightness levels run 0 (full) to 3 (dimmest).
const maxDim = 3

// Render builds a full display refresh: controller setup, brightness,
// and both lines addressed and padded to the display width. Text is
// translated for the charset the player's ROM actually carries; runes
// the ROM cannot show become '?'.
func Render(cs capability.Charset, brightness int, line1, line2 string) []byte {
	if brightness < 0 {
		brightness = 0
	} else if brightness > maxDim {
		brightness = maxDim
	}

	payload := make([]byte, 0, 2*(6+2*Columns))
	payload = append(payload, wordCommand, cmdFunctionSet)
	payload = append(payload, wordChar, byte(brightness))
	payload = append(payload, wordCommand, cmdEntryMode)
	payload = append(payload, wordCommand, cmdDisplayOn)
	payload = append(payload, wordCommand, cmdAddrLine1)
	payload = appendLine(payload, cs, line1)
	payload = append(payload, wordCommand, cmdAddrLine2)
	payload = appendLine(payload, cs, line2)
	return payload
}

// appendLine emits exactly Columns character words, truncating long
// input and padding short input with spaces so stale characters never
// linger on the tube.
func appendLine(payload []byte, cs capability.Charset, line string) []byte {
	n := 0
	for _, r := range line {
		if n == Columns {
			break
		}
		payload = append(payload, wordChar, encodeRune(cs, r))
		n++
	}
	for ; n < Columns; n++ {
		payload = append(payload, wordChar, ' ')
	}
	return payload
}

// europeanRemap covers where the european ROM departs from Latin-1.
// That page is the katakana ROM redrawn with the Latin-1 high half, but
// a few symbol cells kept their old glyphs: yen shares the backslash
// cell as on the kana page, the middle dot and degree ring stay at
// their kana punctuation addresses, and the cell Latin-1 uses for the
// sharp s holds the degree ring instead.
var europeanRemap = map[rune]byte{
	'¥': 0x5c,
	'·': 0xa5,
	'°': 0xdf,
	'ß': '?',
}

// encodeRune maps a rune onto the character ROM of the given variant.
// Printable ASCII is common to all ROMs. The katakana ROM carries the
// JIS X 0201 half-width kana block in its high half; the latin ROM
// carries the Latin-1 high half; the european ROM is Latin-1 as well
// except for the cells in europeanRemap.
func encodeRune(cs capability.Charset, r rune) byte {
	if r >= 0x20 && r <= 0x7e {
		return byte(r)
	}
	switch cs {
	case capability.CharsetKatakana:
		if r >= 0xff61 && r <= 0xff9f {
			return byte(r-0xff61) + 0xa1
		}
	case capability.CharsetLatin1:
		if r >= 0xa0 && r <= 0xff {
			return byte(r)
		}
	case capability.CharsetEuropean:
		if b, ok := europeanRemap[r]; ok {
			return b
		}
		if r >= 0xa0 && r <= 0xff {
			return byte(r)
		}
	}
	return '?'
}
