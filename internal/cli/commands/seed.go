package commands

import (
	"flag"
	"fmt"

	"github.com/fzdarsky/quietplanet/internal/cli/output"
	"github.com/fzdarsky/quietplanet/internal/credstore"
	"github.com/fzdarsky/quietplanet/pkg/srp"
)

// SeedCommand implements 'qp seed'. It prints a seed file entry for an account so
// operators can pre-provision users without exposing their passwords to the server.
type SeedCommand struct {
	streams *Streams
}

// NewSeedCommand creates a new seed command instance.
func NewSeedCommand(streams *Streams) *SeedCommand {
	return &SeedCommand{streams: streams}
}

// Execute runs the seed command with the provided arguments.
func (c *SeedCommand) Execute(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(c.streams.Err)

	username := fs.String("username", "", "Account name (prompted if not set)")
	password := fs.String("password", "", "Account password (prompted if not set)")
	role := fs.String("role", string(credstore.RoleUser), "Account role (User or Admin)")

	fs.Usage = func() {
		fmt.Fprintf(c.streams.Err, `Usage: qp seed [flags]

Print a seed file entry with a fresh salt and verifier. Works offline.

Flags:
`)
		fs.PrintDefaults()
		fmt.Fprintf(c.streams.Err, `
Examples:
  # Create the first admin account
  qp seed --username admin --role Admin >> /etc/quietplanet/seed.yaml
`)
	}

	if err := parseFlags(fs, args); err != nil {
		return err
	}

	parsedRole, err := credstore.ParseRole(*role)
	if err != nil {
		return err
	}

	user, pass, err := c.streams.credentials(*username, *password, true)
	if err != nil {
		return err
	}

	reg, err := srp.NewRegistration(srp.DefaultGroup, pass)
	if err != nil {
		return fmt.Errorf("failed to derive verifier: %w", err)
	}

	seed := credstore.SeedFile{Accounts: []credstore.SeedAccount{{
		Username: user,
		Salt:     reg.Salt,
		Verifier: reg.Verifier,
		Role:     string(parsedRole),
	}}}
	return output.Write(c.streams.Out, seed, output.FormatYAML)
}
