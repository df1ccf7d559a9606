package commands

import (
	"context"
	"flag"
	"fmt"

	"github.com/fzdarsky/quietplanet/internal/cli/output"
)

// WhoAmICommand implements 'qp whoami'.
type WhoAmICommand struct {
	streams *Streams
}

// NewWhoAmICommand creates a new whoami command instance.
func NewWhoAmICommand(streams *Streams) *WhoAmICommand {
	return &WhoAmICommand{streams: streams}
}

// Execute runs the whoami command with the provided arguments.
func (c *WhoAmICommand) Execute(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(c.streams.Err)

	conn := addConnectionFlags(fs)
	outputFormat := fs.String("output", "yaml", "Output format (yaml or json)")

	fs.Usage = func() {
		fmt.Fprintf(c.streams.Err, `Usage: qp whoami [flags]

Show the account, role and token expiry of the current session.
Requires prior authentication via 'qp login'.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	format, err := output.ParseFormat(*outputFormat)
	if err != nil {
		return err
	}

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

	me, err := apiClient.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("failed to query session: %w", err)
	}

	return output.Write(c.streams.Out, me, format)
}
