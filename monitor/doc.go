// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor is the terminal front end of a client session. It
// prints each event with its counter and timers, draws every space as
// a line of control glyphs (# used, . background, blank unused, |
// separator, ~ link) followed by the stream summaries, and can request
// shutdown after a fixed number of events.
//
// Tile values and summaries are rendered by presentation style:
// plain and max-var streams as grouped integers, plus streams with a
// "+" past their maximum, percent streams against their range, and
// enum streams by name. [FormatTile], [FormatSummary], [DescribeTile]
// and [DescribeSpace] expose the same rendering to other callers.
//
// Filter presets ([Preset]) are JSONC files naming events rather than
// IDs, applied once the session is connected.
package monitor
