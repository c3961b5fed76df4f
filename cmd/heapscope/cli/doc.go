// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the heapscope
// binary: a tree of [Command] values with pflag flag sets, generated
// help, and "did you mean" suggestions for mistyped commands and flags
// by Levenshtein distance. Flags a command registers through
// Command.Inherited are accepted by every command below it and listed
// under "Global Flags" in help.
//
// [NewCommandLogger] picks a text or JSON slog handler depending on
// whether stderr is a terminal. [WriteJSON] prints control responses.
// [ExitError] carries an exit code without an extra error line.
package cli
