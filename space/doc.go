// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package space is the shared data model mirrored between an
// instrumented program and its monitor.
//
// A [Space] is a named partition of the program's state divided into
// tiles. Each tile carries a control byte (see [ApplyControl]) and one
// value per [Stream]. Streams are typed (byte, short, int), ordered by
// ID, and carry a presentation style that determines how their
// summary is read. Summaries are never recomputed implicitly: they
// change only when set explicitly or through [Stream.CalcMaxIfNecessary].
//
// Space.Encode carries structure and control bytes; stream data and
// summaries travel in their own protocol commands. The server and
// client interpreters wrap decoded spaces through a [Factory].
package space
