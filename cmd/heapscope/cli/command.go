// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the heapscope command tree. Interior nodes
// group subcommands; leaves carry Run.
type Command struct {
	Name        string
	Summary     string
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	Examples []Example

	// Flags builds the command's own flag set. It is called on every
	// Execute and PrintHelp, so it must bind into variables the
	// closure owns rather than allocate them.
	Flags func() *pflag.FlagSet

	// Inherited registers flags that this command and every command
	// below it accept. The root uses it for --config and --verbose.
	Inherited func(*pflag.FlagSet)

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	Run func(args []string) error

	// Output receives help text. Nil means the nearest ancestor's
	// Output, or stderr at the root.
	Output io.Writer

	parent *Command
}

// Example is a usage example shown in help output.
type Example struct {
	Description string
	Command     string
}

// Execute walks args down the tree to the named command, parses its
// flags together with every inherited flag, and runs it.
func (c *Command) Execute(args []string) error {
	target, rest, err := c.resolve(args)
	if err != nil || target == nil {
		return err
	}
	if target.Run == nil {
		target.PrintHelp(target.output())
		if len(target.Subcommands) == 0 {
			return fmt.Errorf("no action defined for %q", target.fullName())
		}
		if len(rest) == 0 {
			return errors.New("subcommand required")
		}
		return fmt.Errorf("subcommand required (got flag %q)", rest[0])
	}

	flagSet := target.flagSet()
	if err := flagSet.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			target.PrintHelp(target.output())
			return nil
		}
		return target.flagError(err, rest)
	}
	return target.Run(flagSet.Args())
}

// resolve descends while the next argument names a subcommand. A nil
// command with a nil error means help was printed.
func (c *Command) resolve(args []string) (*Command, []string, error) {
	current := c
	for {
		if len(args) > 0 && isHelpFlag(args[0]) {
			current.PrintHelp(current.output())
			return nil, nil, nil
		}
		if len(current.Subcommands) == 0 || len(args) == 0 || strings.HasPrefix(args[0], "-") {
			return current, args, nil
		}
		sub := current.lookup(args[0])
		if sub == nil {
			if current.Run != nil {
				return current, args, nil
			}
			return nil, nil, current.unknownCommand(args[0])
		}
		sub.parent = current
		current, args = sub, args[1:]
	}
}

func (c *Command) lookup(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

func (c *Command) unknownCommand(name string) error {
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		return fmt.Errorf("unknown command %q (did you mean %q?)\n\nRun '%s --help' for usage.",
			name, suggestion, c.fullName())
	}
	return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage.", name, c.fullName())
}

// flagSet combines the command's own flags with those inherited from
// it and its ancestors. Errors are formatted by flagError, so pflag's
// own output is discarded.
func (c *Command) flagSet() *pflag.FlagSet {
	var flagSet *pflag.FlagSet
	if c.Flags != nil {
		flagSet = c.Flags()
	} else {
		flagSet = pflag.NewFlagSet(c.Name, pflag.ContinueOnError)
	}
	flagSet.AddFlagSet(c.inheritedFlags())
	flagSet.SetOutput(io.Discard)
	return flagSet
}

// inheritedFlags collects Inherited registrations from the root down.
// A name already registered closer to the root wins.
func (c *Command) inheritedFlags() *pflag.FlagSet {
	var chain []*Command
	for node := c; node != nil; node = node.parent {
		chain = append(chain, node)
	}
	inherited := pflag.NewFlagSet(c.Name, pflag.ContinueOnError)
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Inherited == nil {
			continue
		}
		level := pflag.NewFlagSet(chain[i].Name, pflag.ContinueOnError)
		chain[i].Inherited(level)
		inherited.AddFlagSet(level)
	}
	return inherited
}

func (c *Command) flagError(err error, args []string) error {
	message := err.Error()
	if strings.Contains(message, "unknown flag") || strings.Contains(message, "unknown shorthand flag") {
		// Parse consumed state, so suggestions come from a fresh set.
		if suggestion := suggestFlag(args, c.flagSet()); suggestion != "" {
			return fmt.Errorf("%s (did you mean %s?)\n\nRun '%s --help' for usage.",
				message, suggestion, c.fullName())
		}
	}
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
}

func (c *Command) output() io.Writer {
	for node := c; node != nil; node = node.parent {
		if node.Output != nil {
			return node.Output
		}
	}
	return os.Stderr
}

// PrintHelp writes the command's help to w. Inherited flags are listed
// apart from the command's own.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	switch {
	case c.Description != "":
		fmt.Fprintf(w, "%s\n\n", c.Description)
	case c.Summary != "":
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	usage := c.Usage
	switch {
	case usage != "":
	case len(c.Subcommands) > 0:
		usage = name + " <command> [flags]"
	default:
		usage = name + " [flags]"
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		if usage := c.Flags().FlagUsages(); usage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usage)
		}
	}
	if usage := c.inheritedFlags().FlagUsages(); usage != "" {
		fmt.Fprintf(w, "\nGlobal Flags:\n%s", usage)
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
			if example.Description != "" {
				fmt.Fprintln(w)
			}
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// fullName is the command path, e.g. "heapscope control pause".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
