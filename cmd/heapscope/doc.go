// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Heapscope watches the heap of an instrumented program.
//
// The monitor command connects to a program's heapscope server, prints
// its spaces and events as they arrive, and optionally serves a
// control socket through which the control commands pause, restart,
// step, or shut down the program and change its event filters. The
// demo command runs a server over a synthetic heap for trying the
// monitor without a real program.
//
//	heapscope demo --listen 127.0.0.1:3000
//	heapscope monitor --address 127.0.0.1:3000 --control-socket /tmp/heapscope.sock
//	heapscope control pause --socket /tmp/heapscope.sock
//
// Every command reads the shared YAML configuration named by --config
// or HEAPSCOPE_CONFIG; flags override the file.
package main
