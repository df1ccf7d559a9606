package commands

import (
	"context"
	"flag"
	"fmt"

	"github.com/fzdarsky/quietplanet/internal/cli/client"
	"github.com/fzdarsky/quietplanet/pkg/protocol"
)

// LogoutCommand implements 'qp logout'.
type LogoutCommand struct {
	streams *Streams
}

// NewLogoutCommand creates a new logout command instance.
func NewLogoutCommand(streams *Streams) *LogoutCommand {
	return &LogoutCommand{streams: streams}
}

// Execute runs the logout command with the provided arguments.
func (c *LogoutCommand) Execute(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	fs.SetOutput(c.streams.Err)
	conn := addConnectionFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(c.streams.Err, "Usage: qp logout [flags]\n\nEnd the session and delete the stored token.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := conn.load()
	if err != nil {
		return err
	}

	store, sess, err := loadSession(cfg)
	if err != nil {
		return err
	}

	apiClient, err := createClient(cfg, c.streams)
	if err != nil {
		return err
	}
	apiClient.SetToken(sess.Token)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	// A token the server no longer accepts is as good as logged out.
	if err := apiClient.Logout(ctx); err != nil && !client.IsCode(err, protocol.ErrCodeUnauthorized) {
		return fmt.Errorf("logout failed: %w", err)
	}

	if err := store.Delete(cfg.Address()); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	fmt.Fprintf(c.streams.Out, "Logged out of %s.\n", cfg.Address())
	return nil
}
