package commands

import (
	"context"
	"flag"
	"fmt"
)

// RegisterCommand implements 'qp register'.
type RegisterCommand struct {
	streams *Streams
}

// NewRegisterCommand creates a new register command instance.
func NewRegisterCommand(streams *Streams) *RegisterCommand {
	return &RegisterCommand{streams: streams}
}

// Execute runs the register command with the provided arguments.
func (c *RegisterCommand) Execute(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(c.streams.Err)

	conn := addConnectionFlags(fs)
	username := fs.String("username", "", "Account name (prompted if not set)")
	password := fs.String("password", "", "Account password (prompted if not set)")

	fs.Usage = func() {
		fmt.Fprintf(c.streams.Err, `Usage: qp register [flags]

Create an account. The password never leaves this machine: only a random salt
and the SRP verifier derived from it are sent to the server.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := conn.load()
	if err != nil {
		return err
	}

	user, pass, err := c.streams.credentials(*username, *password, true)
	if err != nil {
		return err
	}

	apiClient, err := createClient(cfg, c.streams)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := apiClient.Register(ctx, user, pass); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Fprintf(c.streams.Out, "Registered %s. Run 'qp login' to sign in.\n", user)
	return nil
}
