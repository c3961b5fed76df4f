// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration shared by the heapscope
// demo server and the monitor.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the HEAPSCOPE_CONFIG environment variable (via
// [Load]). [Resolve] picks between the two and falls back to
// [Default] when neither is given, so the CLI runs without any file.
//
// The file may contain environment sections (development, staging,
// production) whose keys override the base server and monitor
// sections when [Config].Environment matches. Only the keys present
// in the section override; absent keys keep the base value.
//
// ${HOME}, ${XDG_RUNTIME_DIR}, and ${VAR:-default} patterns are
// expanded in path fields after loading.
//
// This package depends on no other heapscope packages; names such as
// compression codecs and failure policies stay strings here and are
// parsed by their owning packages.
package config
