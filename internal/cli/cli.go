// Package cli implements the pipsync command surface.
package cli

import (
	"fmt"
	"io"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

type Command struct {
	Name    string
	Summary string
	Usage   []string
	Run     func(args []string, stdout, stderr io.Writer) int
}

func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return ExitUsage
	}
	if isHelpArg(args[0]) {
		printUsage(stdout)
		return ExitOK
	}

	cmd := findCommand(args[0])
	if cmd == nil {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return ExitUsage
	}

	return cmd.Run(args[1:], stdout, stderr)
}

func findCommand(name string) *Command {
	for _, cmd := range commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func isHelpArg(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	default:
		return false
	}
}

func wantsHelp(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-h", "--help":
			return true
		}
	}
	return false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pipsync <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.Name, cmd.Summary)
	}
	fmt.Fprintln(w, "\nUse \"pipsync <command> --help\" for more information.")
}

func printCommandUsage(cmd *Command, w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	for _, line := range cmd.Usage {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if cmd.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", cmd.Summary)
	}
}

func command(name, summary string, usage []string, runner func(cmd *Command) func(args []string, stdout, stderr io.Writer) int) *Command {
	cmd := &Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
	}
	cmd.Run = runner(cmd)
	return cmd
}

var commands = []*Command{
	command("run", "Trigger and observe a sync run", []string{
		"pipsync run --client <id> --sot <source> [--entity students|staff] [options]",
	}, runRun),
	command("attach", "Reconnect to an in-flight sync run", []string{
		"pipsync attach [--client <id>] [options]",
	}, runAttach),
	command("serve", "Serve the browser console", []string{
		"pipsync serve [--addr <host:port>] [options]",
	}, runServe),
	command("history", "List recent sync runs", []string{
		"pipsync history [--limit <n>]",
	}, runHistory),
	command("resources", "Inspect and edit platform records", []string{
		"pipsync resources list <collection>",
		"pipsync resources get <collection> <id>",
		"pipsync resources create <collection> (--data <json> | --file <path>)",
		"pipsync resources update <collection> <id> (--data <json> | --file <path>)",
		"pipsync resources delete <collection> <id>",
	}, runResources),
	command("validate", "Validate the workspace config", []string{
		"pipsync validate [--config <path>]",
	}, runValidate),
}
