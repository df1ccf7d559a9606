// Package main provides the qp CLI tool for QuietPlanet accounts.
//
// qp registers accounts and logs in with SRP-6a, so passwords never leave the machine,
// and keeps the resulting session token for later commands.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fzdarsky/quietplanet/internal/cli/clicontext"
	"github.com/fzdarsky/quietplanet/internal/cli/commands"
)

const version = "1.0.0"

type command interface {
	Execute(args []string) error
}

var commandTable = map[string]func(*commands.Streams) command{
	"register": func(s *commands.Streams) command { return commands.NewRegisterCommand(s) },
	"login":    func(s *commands.Streams) command { return commands.NewLoginCommand(s) },
	"logout":   func(s *commands.Streams) command { return commands.NewLogoutCommand(s) },
	"whoami":   func(s *commands.Streams) command { return commands.NewWhoAmICommand(s) },
	"role":     func(s *commands.Streams) command { return commands.NewRoleCommand(s) },
	"seed":     func(s *commands.Streams) command { return commands.NewSeedCommand(s) },
}

func main() {
	os.Exit(run(os.Args[1:], commands.StdStreams()))
}

// run executes the command line and returns the process exit code.
func run(argv []string, streams *commands.Streams) int {
	if len(argv) == 0 {
		printUsage(streams.Err)
		return 1
	}

	args, name, global := parseGlobalFlags(argv)
	clicontext.Set(global)

	// --help and --version come without a command
	if name == "" && len(args) > 0 {
		name = args[0]
	}

	switch name {
	case "--help", "-h", "help":
		printUsage(streams.Out)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(streams.Out, "qp version %s\n", version)
		return 0
	}

	newCommand, ok := commandTable[name]
	if !ok {
		fmt.Fprintf(streams.Err, "Error: unknown command '%s'\n\n", name)
		printUsage(streams.Err)
		return 1
	}

	err := newCommand(streams).Execute(args)
	switch {
	case err == nil, errors.Is(err, commands.ErrHelp):
		return 0
	default:
		fmt.Fprintf(streams.Err, "Error: %v\n", err)
		return 1
	}
}

// parseGlobalFlags processes global flags and returns remaining args and the command.
// Global flags like --assumeyes can appear anywhere in the argument list.
// Examples:
//
//	qp -y login --host localhost        (before command)
//	qp login -y --host localhost        (after command)
//	qp login --host localhost -y        (at the end)
func parseGlobalFlags(args []string) ([]string, string, clicontext.Global) {
	remainingArgs := make([]string, 0, len(args))
	var (
		command string
		global  clicontext.Global
	)

	for _, arg := range args {
		if arg == "--assumeyes" || arg == "-y" {
			global.AssumeYes = true
			continue
		}

		// First non-flag argument is the command
		if command == "" && !isFlag(arg) {
			command = arg
			continue
		}

		remainingArgs = append(remainingArgs, arg)
	}

	return remainingArgs, command, global
}

// isFlag returns true if the argument looks like a flag (starts with -).
func isFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `qp - CLI tool for QuietPlanet accounts

Usage:
  qp <command> [flags]

Available Commands:
  register     Create an account
  login        Authenticate and store a session token
  logout       End the current session
  whoami       Show the current session
  role         Assign a role to an account (Admin only)
  seed         Print a seed file entry for offline provisioning

Global Flags:
  --help, -h        Show help information
  --version, -v     Show version information
  --assumeyes, -y   Automatically answer 'yes' to prompts (non-interactive mode)

Examples:
  # Create an account and log in
  qp register --host login.quietplanet.example --username alice
  qp login --host login.quietplanet.example --username alice

  # Log in non-interactively, trusting the certificate on first use
  qp login -y --host login.quietplanet.example --username alice --password secret

  # Show the session as JSON
  qp whoami --output json

  # Promote an account
  qp role bob Admin

For detailed help on a specific command, run:
  qp <command> --help

`)
}
