// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package space

// Control flag bits. A tile's control byte is any combination of
// these, except that Used never coexists with Background or Unused.
const (
	ControlUsed       uint8 = 1
	ControlBackground uint8 = 2
	ControlUnused     uint8 = 4
	ControlSeparator  uint8 = 8
	ControlLink       uint8 = 16
)

// ApplyControl returns current with tag OR-ed in. Background and
// Unused clear Used first.
func ApplyControl(current, tag uint8) uint8 {
	if tag&(ControlBackground|ControlUnused) != 0 {
		current &^= ControlUsed
	}
	return current | tag
}

// IsControlUsed reports whether the tile holds live data.
func IsControlUsed(control uint8) bool { return control&ControlUsed != 0 }

// IsControlBackground reports whether the tile is drawn as background.
func IsControlBackground(control uint8) bool { return control&ControlBackground != 0 }

// IsControlUnused reports whether the tile lies past the space's end.
func IsControlUnused(control uint8) bool { return control&ControlUnused != 0 }

// IsControlSeparator reports whether the tile marks a boundary between areas.
func IsControlSeparator(control uint8) bool { return control&ControlSeparator != 0 }

// IsControlLink reports whether the tile is linked to its neighbour.
func IsControlLink(control uint8) bool { return control&ControlLink != 0 }

// ControlGlyph returns a one-character rendering of a control byte
// for text output.
func ControlGlyph(control uint8) byte {
	switch {
	case IsControlSeparator(control):
		return '|'
	case IsControlLink(control):
		return '~'
	case IsControlBackground(control):
		return '.'
	case IsControlUnused(control):
		return ' '
	case IsControlUsed(control):
		return '#'
	default:
		return '?'
	}
}
