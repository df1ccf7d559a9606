package commands

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/fzdarsky/quietplanet/internal/cli/session"
)

// LoginCommand implements 'qp login'.
type LoginCommand struct {
	streams *Streams
}

// NewLoginCommand creates a new login command instance.
func NewLoginCommand(streams *Streams) *LoginCommand {
	return &LoginCommand{streams: streams}
}

// Execute runs the login command with the provided arguments.
func (c *LoginCommand) Execute(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.streams.Err)

	conn := addConnectionFlags(fs)
	username := fs.String("username", "", "Account name (prompted if not set)")
	password := fs.String("password", "", "Account password (prompted if not set)")

	fs.Usage = func() {
		fmt.Fprintf(c.streams.Err, `Usage: qp login [flags]

Authenticate with SRP-6a and store the session token for later commands.
The server is verified through its proof before the token is accepted.

Flags:
`)
		fs.PrintDefaults()
		fmt.Fprintf(c.streams.Err, `
Examples:
  # Log in to a server, prompting for credentials
  qp login --host planet.example.com

  # Non-interactive, trusting the server certificate on first use
  qp -y login --host planet.example.com --username alice --password "$PW"
`)
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := conn.load()
	if err != nil {
		return err
	}

	user, pass, err := c.streams.credentials(*username, *password, false)
	if err != nil {
		return err
	}

	apiClient, err := createClient(cfg, c.streams)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	sess, err := apiClient.Login(ctx, user, pass)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to access session store: %w", err)
	}
	if err := store.Save(cfg.Address(), sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	// Remember the server so --host isn't required next time.
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(c.streams.Err, "Warning: failed to save connection config: %v\n", err)
	}

	fmt.Fprintf(c.streams.Out, "Logged in as %s until %s.\n", sess.Username, sess.ExpiresAt.Local().Format(time.RFC3339))
	return nil
}
