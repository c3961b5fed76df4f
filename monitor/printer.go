// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
)

// tilesPerLine wraps tile maps of large spaces.
const tilesPerLine = 64

// Printer writes the monitor's text output. Listeners run on the
// client's receive goroutine while the CLI may print too, so every
// write holds mu.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	header    lipgloss.Style
	faint     lipgloss.Style
	event     lipgloss.Style
	pause     lipgloss.Style
	failure   lipgloss.Style
	used      lipgloss.Style
	unused    lipgloss.Style
	separator lipgloss.Style
	link      lipgloss.Style
	back      lipgloss.Style
}

// NewPrinter returns a printer writing to out. With color false every
// style renders as plain text.
func NewPrinter(out io.Writer, color bool, theme Theme) *Printer {
	renderer := lipgloss.NewRenderer(out)
	if color {
		renderer.SetColorProfile(termenv.ANSI256)
	} else {
		renderer.SetColorProfile(termenv.Ascii)
	}
	style := func(c lipgloss.Color) lipgloss.Style {
		return renderer.NewStyle().Foreground(c)
	}
	return &Printer{
		out:       out,
		header:    style(theme.HeaderForeground).Bold(true),
		faint:     style(theme.FaintText),
		event:     style(theme.EventForeground).Bold(true),
		pause:     style(theme.PauseForeground).Bold(true),
		failure:   style(theme.ErrorForeground),
		used:      style(theme.UsedTile),
		unused:    style(theme.UnusedTile),
		separator: style(theme.SeparatorTile),
		link:      style(theme.LinkTile),
		back:      style(theme.BackgroundTile),
	}
}

func (p *Printer) write(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}

// Connected prints the snapshot header of a new session.
func (p *Printer) Connected(name, generalInfo, remote, compression string, events []string, spaces int) {
	var builder strings.Builder
	builder.WriteString(p.header.Render(fmt.Sprintf("%s @ %s", name, remote)))
	fmt.Fprintf(&builder, "\n%s", p.faint.Render(fmt.Sprintf("%d spaces, %d events, compression %s", spaces, len(events), compression)))
	if len(events) > 0 {
		fmt.Fprintf(&builder, "\n%s", p.faint.Render("events: "+strings.Join(events, ", ")))
	}
	if generalInfo != "" {
		fmt.Fprintf(&builder, "\n%s", strings.TrimRight(generalInfo, "\n"))
	}
	p.write(builder.String())
}

// Event prints one event line. sequence counts events seen by this
// monitor; count is the server's counter for this event.
func (p *Printer) Event(sequence int, name string, count int32, record protocol.EventRecord) {
	line := fmt.Sprintf("#%d %s", sequence, p.event.Render(name))
	details := fmt.Sprintf("count %d", count)
	if record.Elapsed != 0 || record.Compensation != 0 {
		details += fmt.Sprintf(", elapsed %dms, compensation %dms", record.Elapsed, record.Compensation)
	}
	p.write(line + " " + p.faint.Render("("+details+")"))
}

// Space prints a space's title, its tile map, and its summary.
func (p *Printer) Space(sp *space.Space) {
	var builder strings.Builder
	title := sp.FullName()
	if sp.Main {
		title += " *"
	}
	builder.WriteString("  " + p.header.Render(title))
	builder.WriteString(" " + p.faint.Render(fmt.Sprintf("%d tiles", sp.TileCount)))
	for start := 0; start < len(sp.Control); start += tilesPerLine {
		end := min(start+tilesPerLine, len(sp.Control))
		builder.WriteString("\n  [")
		for _, control := range sp.Control[start:end] {
			builder.WriteString(p.glyph(control))
		}
		builder.WriteString("]")
	}
	if description := DescribeSpace(sp); description != "" {
		for _, line := range strings.Split(description, "\n") {
			builder.WriteString("\n    " + line)
		}
	}
	p.write(builder.String())
}

func (p *Printer) glyph(control uint8) string {
	glyph := string(space.ControlGlyph(control))
	switch {
	case space.IsControlSeparator(control):
		return p.separator.Render(glyph)
	case space.IsControlLink(control):
		return p.link.Render(glyph)
	case space.IsControlBackground(control):
		return p.back.Render(glyph)
	case space.IsControlUnused(control):
		return p.unused.Render(glyph)
	default:
		return p.used.Render(glyph)
	}
}

// Tile prints the description of one tile.
func (p *Printer) Tile(sp *space.Space, index int) error {
	description, err := DescribeTile(sp, index)
	if err != nil {
		return err
	}
	p.write(description)
	return nil
}

func (p *Printer) Paused() {
	p.write(p.pause.Render("paused") + " " + p.faint.Render("(heapscope control restart | play-one)"))
}

func (p *Printer) Disconnected(err error) {
	if err == nil {
		p.write(p.faint.Render("server shut down"))
		return
	}
	p.write(p.failure.Render("disconnected: " + err.Error()))
}
