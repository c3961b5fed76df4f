// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/heapscope/space"
)

// notAvailable stands in for a percentage whose denominator is zero.
const notAvailable = "N/A"

func formatNumber(value int64) string {
	return humanize.Comma(value)
}

func formatPercentage(numerator, denominator int64) string {
	if denominator == 0 {
		return notAvailable
	}
	return humanize.FormatFloat("#,###.#", float64(numerator)*100/float64(denominator))
}

func enumName(stream *space.Stream, value int32) string {
	if value < 0 || int(value) >= len(stream.EnumNames) {
		return fmt.Sprintf("?%d", value)
	}
	return stream.EnumNames[value]
}

// FormatValue renders a tile value in compact form, without the
// stream's prefix and suffix.
func FormatValue(stream *space.Stream, value int32) string {
	switch stream.Presentation {
	case space.PresentPlus:
		if value > stream.MaxValue {
			return formatNumber(int64(stream.MaxValue)) + "+"
		}
		return formatNumber(int64(value))
	case space.PresentPercent:
		return fmt.Sprintf("%s (%s%%)", formatNumber(int64(value)),
			formatPercentage(int64(value)-int64(stream.MinValue), int64(stream.MaxValue)-int64(stream.MinValue)))
	case space.PresentPercentVar:
		return fmt.Sprintf("%d%%", value)
	case space.PresentEnum:
		return enumName(stream, value)
	default:
		return formatNumber(int64(value))
	}
}

// FormatTile renders tile index of stream with its prefix and suffix.
// PercentVar tiles are a percentage of the same tile in the stream
// named by MaxStreamIndex, so sp supplies that stream.
func FormatTile(sp *space.Space, stream *space.Stream, index int) (string, error) {
	value, err := stream.Value(index)
	if err != nil {
		return "", err
	}
	plain := stream.Prefix + formatNumber(int64(value)) + stream.Suffix

	switch stream.Presentation {
	case space.PresentPlus:
		if value > stream.MaxValue {
			return fmt.Sprintf("%s%s (%s+)%s", stream.Prefix, formatNumber(int64(value)),
				formatNumber(int64(stream.MaxValue)), stream.Suffix), nil
		}
		return plain, nil
	case space.PresentPercent:
		return fmt.Sprintf("%s  (%s%%)", plain,
			formatPercentage(int64(value)-int64(stream.MinValue), int64(stream.MaxValue)-int64(stream.MinValue))), nil
	case space.PresentPercentVar:
		return fmt.Sprintf("%s  (%s%%)", plain, formatPercentage(int64(value), int64(sp.TileMax(stream, index)))), nil
	case space.PresentEnum:
		return stream.Prefix + enumName(stream, value), nil
	default:
		return plain, nil
	}
}

// FormatSummary renders stream's summary, one line per entry. It
// reports false when no summary has been received.
func FormatSummary(stream *space.Stream) (string, bool) {
	summary := stream.Summary
	if len(summary) == 0 {
		return "", false
	}

	switch stream.Presentation {
	case space.PresentPercent, space.PresentPercentVar:
		var capacity int64
		if len(summary) > 1 {
			capacity = int64(summary[1])
		}
		return fmt.Sprintf("%s%s%%  (%s%s)", stream.Prefix,
			formatPercentage(int64(summary[0]), capacity), formatNumber(int64(summary[0])), stream.Suffix), true
	case space.PresentEnum:
		width := 0
		for _, name := range stream.EnumNames {
			width = max(width, len(name))
		}
		var builder strings.Builder
		builder.WriteString(stream.Prefix)
		for i, name := range stream.EnumNames {
			if i >= len(summary) {
				break
			}
			fmt.Fprintf(&builder, "\n  %-*s %s", width, name, formatNumber(int64(summary[i])))
		}
		return builder.String(), true
	default:
		return stream.Prefix + formatNumber(int64(summary[0])) + stream.Suffix, true
	}
}

// DescribeTile renders everything known about one tile: its title and
// name, then either each stream's value or why the tile has none.
func DescribeTile(sp *space.Space, index int) (string, error) {
	if index < 0 || index >= sp.TileCount {
		return "", fmt.Errorf("%w: tile %d of %d", space.ErrOutOfRange, index, sp.TileCount)
	}
	control := sp.Control[index]

	var builder strings.Builder
	fmt.Fprintf(&builder, "%s%d", sp.Title, index)
	if !space.IsControlBackground(control) {
		builder.WriteString(sp.TileName(index))
		if sp.BlockInfo != "" {
			builder.WriteString("\n" + sp.BlockInfo)
		}
	}

	switch {
	case space.IsControlUsed(control):
		for _, stream := range sp.Streams {
			if !stream.HasData() {
				continue
			}
			line, err := FormatTile(sp, stream, index)
			if err != nil {
				return "", err
			}
			builder.WriteString("\n" + line)
		}
	case space.IsControlBackground(control):
		builder.WriteString("\nBACKGROUND")
	case space.IsControlUnused(control):
		builder.WriteString("\n" + sp.UnusedLabel)
	}
	return builder.String(), nil
}

// DescribeSpace renders the space's info text followed by every
// stream summary that has been received.
func DescribeSpace(sp *space.Space) string {
	var lines []string
	if sp.Info != "" {
		lines = append(lines, strings.TrimRight(sp.Info, "\n"))
	}
	for _, stream := range sp.Streams {
		if summary, ok := FormatSummary(stream); ok {
			lines = append(lines, stream.Name+": "+summary)
		}
	}
	return strings.Join(lines, "\n")
}
