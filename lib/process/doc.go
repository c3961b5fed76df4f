// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the process-exit path of heapscope. It is one
// of the few places that write to stderr directly: [Fatal] runs in
// main() before the structured logger exists, and it is also the
// default terminator behind the server's process-fatal failure policy.
package process
