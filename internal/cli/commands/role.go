package commands

import (
	"context"
	"flag"
	"fmt"
)

// RoleCommand implements 'qp role', which assigns a role to an account.
type RoleCommand struct {
	streams *Streams
}

// NewRoleCommand creates a new role command instance.
func NewRoleCommand(streams *Streams) *RoleCommand {
	return &RoleCommand{streams: streams}
}

// Execute runs the role command with the provided arguments.
func (c *RoleCommand) Execute(args []string) error {
	fs := flag.NewFlagSet("role", flag.ContinueOnError)
	fs.SetOutput(c.streams.Err)
	conn := addConnectionFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(c.streams.Err, `Usage: qp role [flags] <username> <User|Admin>

Assign a role to an account. Requires an Admin session.
The new role applies from the account's next login.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("expected <username> and <role>, got %d arguments", fs.NArg())
	}
	username, role := fs.Arg(0), fs.Arg(1)

	cfg, err := conn.load()
	if err != nil {
		return err
	}

	apiClient, _, err := authenticatedClient(cfg, c.streams)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := apiClient.AssignRole(ctx, username, role); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	fmt.Fprintf(c.streams.Out, "%s is now %s.\n", username, role)
	return nil
}
