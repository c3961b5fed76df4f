// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import "github.com/charmbracelet/lipgloss"

// Theme is the monitor's color palette, in lipgloss ANSI 256-color
// codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	EventForeground  lipgloss.Color
	PauseForeground  lipgloss.Color
	ErrorForeground  lipgloss.Color

	// Tile map glyph colors, by control class.
	UsedTile       lipgloss.Color
	BackgroundTile lipgloss.Color
	UnusedTile     lipgloss.Color
	SeparatorTile  lipgloss.Color
	LinkTile       lipgloss.Color
}

// DefaultTheme suits dark terminals.
var DefaultTheme = Theme{
	NormalText:       lipgloss.Color("252"),
	FaintText:        lipgloss.Color("243"),
	HeaderForeground: lipgloss.Color("39"),
	EventForeground:  lipgloss.Color("214"),
	PauseForeground:  lipgloss.Color("203"),
	ErrorForeground:  lipgloss.Color("196"),
	UsedTile:         lipgloss.Color("76"),
	BackgroundTile:   lipgloss.Color("240"),
	UnusedTile:       lipgloss.Color("236"),
	SeparatorTile:    lipgloss.Color("111"),
	LinkTile:         lipgloss.Color("141"),
}
