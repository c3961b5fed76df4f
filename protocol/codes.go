// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Code identifies a command inside a frame. Values are wire constants
// shared by both peers.
type Code uint8

const (
	// End terminates the command list of a frame.
	End Code = 0

	// PauseReq asks the server to pause at its next safepoint.
	// Client to server, no payload.
	PauseReq Code = 1

	// Pause tells the client the server is now paused.
	// Server to client, no payload.
	Pause Code = 2

	// Restart resumes a paused server. Client to server, no payload.
	Restart Code = 3

	// PlayOne lets a paused server run to its next safepoint.
	// Client to server, no payload.
	PlayOne Code = 4

	// ShutdownReq asks the server to end the session.
	// Client to server, no payload.
	ShutdownReq Code = 5

	// Shutdown tells the client the session is over.
	// Server to client, no payload.
	Shutdown Code = 6

	// Stream carries one stream's data: spaceID:u8, streamID:u8,
	// typed array. Server to client.
	Stream Code = 7

	// Event reports an event boundary: eventID:u8, elapsed:i32,
	// compensation:i32. Server to client.
	Event Code = 8

	// Control carries a space's control bytes: spaceID:u8, byte array.
	// Server to client.
	Control Code = 9

	// EventFiltersCmd carries per-event filters: count:u16 then per event
	// enabled:bool, delay:i32, pause:bool, period:i32. Both directions.
	EventFiltersCmd Code = 10

	// EventCount carries per-event occurrence counts as an int array.
	// Server to client.
	EventCount Code = 11

	// Summary carries a stream's summary: spaceID:u8, streamID:u8, int
	// array (nil when the stream has none). Server to client.
	Summary Code = 12

	// SpaceInfo carries a space's free-text info: spaceID:u8, string.
	// Server to client.
	SpaceInfo Code = 13

	// Space carries a full space description. Server to client.
	Space Code = 14

	// Boot carries handshake parameters. Exchanged once, before any
	// other command.
	Boot Code = 15
)

// CodeCount is the size of a dispatch table.
const CodeCount = 16

var codeNames = [CodeCount]string{
	End:             "END",
	PauseReq:        "PAUSE_REQ",
	Pause:           "PAUSE",
	Restart:         "RESTART",
	PlayOne:         "PLAY_ONE",
	ShutdownReq:     "SHUTDOWN_REQ",
	Shutdown:        "SHUTDOWN",
	Stream:          "STREAM",
	Event:           "EVENT",
	Control:         "CONTROL",
	EventFiltersCmd: "EVENT_FILTERS",
	EventCount:      "EVENT_COUNT",
	Summary:         "SUMMARY",
	SpaceInfo:       "SPACE_INFO",
	Space:           "SPACE",
	Boot:            "BOOT",
}

func (c Code) String() string {
	if int(c) < CodeCount {
		return codeNames[c]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
}
