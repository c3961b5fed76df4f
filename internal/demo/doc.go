// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package demo drives a heapscope server with a synthetic heap, for
// trying monitors without instrumenting a real program.
//
// The heap has a fixed image space and a main space that grows through
// three phases and then shrinks back. Each [Heap.Collect] reports a
// collection start, rewrites every stream, and reports a collection
// end. Monitors see per-tile used bytes, object counts, roots, and
// card states.
package demo
