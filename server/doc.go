// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the interpreter linked into the instrumented
// program.
//
// The program builds [ServerSpace] values, registers them with
// [Server.AddServerSpace], and starts [Server.Serve] on a goroutine of
// its own. From then on it keeps its spaces current and calls
// [Server.EventBoundary] or [Server.CountingEventBoundary] at
// interesting points in its execution, and [Server.Safepoint] where it
// may be stopped. Those calls run synchronously on the program's
// goroutine: a boundary that passes its event filter flushes every
// space to the monitor, and a safepoint blocks while the monitor holds
// the program paused.
//
// Serve handles one monitor at a time:
//
//	Disconnected -> Handshaking -> Serving -> Disconnected
//
// A session ends when the monitor disconnects, sends a command the
// server never accepts, or requests shutdown and a safepoint has
// delivered it. Transport failures follow [Config.FailurePolicy]:
// [FailConnection] drops the session and accepts the next monitor,
// [FailProcess] terminates the program through [Config.Exit].
package server
