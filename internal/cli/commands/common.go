// Package commands provides CLI command implementations for the qp tool.
package commands

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/fzdarsky/quietplanet/internal/cli/clicontext"
	"github.com/fzdarsky/quietplanet/internal/cli/client"
	"github.com/fzdarsky/quietplanet/internal/cli/config"
	"github.com/fzdarsky/quietplanet/internal/cli/session"
	cliTLS "github.com/fzdarsky/quietplanet/internal/cli/tls"
)

const requestTimeout = 30 * time.Second

// Streams are the standard streams a command reads prompts from and writes to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	reader *bufio.Reader
}

// StdStreams returns the process's standard streams.
func StdStreams() *Streams {
	return &Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

func (s *Streams) lineReader() *bufio.Reader {
	if s.reader == nil {
		s.reader = bufio.NewReader(s.In)
	}
	return s.reader
}

func (s *Streams) terminalFd() (int, bool) {
	f, ok := s.In.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd()) //nolint:gosec // file descriptors fit in int
	return fd, term.IsTerminal(fd)
}

// promptLine asks for a single line of visible input.
func (s *Streams) promptLine(label string) (string, error) {
	fmt.Fprintf(s.Err, "%s: ", label)
	line, err := s.lineReader().ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword asks for a password, hiding input on a terminal.
func (s *Streams) promptPassword(label string) (string, error) {
	fd, isTerminal := s.terminalFd()
	if !isTerminal {
		return s.promptLine(label)
	}

	fmt.Fprintf(s.Err, "%s: ", label)
	password, err := term.ReadPassword(fd)
	fmt.Fprintf(s.Err, "\n")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// credentials returns username and password, prompting for whichever is empty.
func (s *Streams) credentials(username, password string, confirm bool) (string, string, error) {
	var err error
	if username == "" {
		if username, err = s.promptLine("Username"); err != nil {
			return "", "", err
		}
	}
	if username == "" {
		return "", "", errors.New("username is required")
	}

	if password != "" {
		return username, password, nil
	}
	if password, err = s.promptPassword("Password"); err != nil {
		return "", "", err
	}
	if password == "" {
		return "", "", errors.New("password is required")
	}

	// Only interactive input gets a typo check.
	if _, isTerminal := s.terminalFd(); confirm && isTerminal {
		again, err := s.promptPassword("Confirm password")
		if err != nil {
			return "", "", err
		}
		if again != password {
			return "", "", errors.New("passwords do not match")
		}
	}
	return username, password, nil
}

// connectionFlags are the flags every server-facing command accepts.
type connectionFlags struct {
	host   *string
	port   *int
	caCert *string
}

func addConnectionFlags(fs *flag.FlagSet) *connectionFlags {
	return &connectionFlags{
		host:   fs.String("host", "", "QuietPlanet server hostname or IP"),
		port:   fs.Int("port", 0, "QuietPlanet server port"),
		caCert: fs.String("ca-cert", "", "Path to custom CA certificate bundle"),
	}
}

// load merges the config file, environment and flags.
func (f *connectionFlags) load() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.ApplyFlags(*f.host, *f.port, *f.caCert)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireHost(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createClient creates an API client for cfg. Unknown certificates are trusted without
// asking in assume-yes mode and confirmed interactively otherwise.
func createClient(cfg *config.Config, streams *Streams) (*client.Client, error) {
	var accept cliTLS.AcceptFunc = cliTLS.AssumeYes
	if !clicontext.AssumeYes() {
		accept = cliTLS.PromptAccept(streams.lineReader(), streams.Err)
	}

	apiClient, err := client.NewClient(cfg, accept)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return apiClient, nil
}

// loadSession returns the stored session for the server in cfg.
func loadSession(cfg *config.Config) (*session.Store, *session.Session, error) {
	store, err := session.NewStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access session store: %w", err)
	}

	sess, err := store.Load(cfg.Address())
	if errors.Is(err, session.ErrNoSession) {
		return store, nil, fmt.Errorf("not logged in to %s: run 'qp login' first", cfg.Address())
	}
	if err != nil {
		return store, nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.Expired(time.Now()) {
		return store, nil, fmt.Errorf("session for %s expired: run 'qp login' again", cfg.Address())
	}
	return store, sess, nil
}

// authenticatedClient returns a client carrying the stored session token.
func authenticatedClient(cfg *config.Config, streams *Streams) (*client.Client, *session.Session, error) {
	_, sess, err := loadSession(cfg)
	if err != nil {
		return nil, nil, err
	}

	apiClient, err := createClient(cfg, streams)
	if err != nil {
		return nil, nil, err
	}
	apiClient.SetToken(sess.Token)
	return apiClient, sess, nil
}

// parseFlags parses args, treating -h as success.
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		return ErrHelp
	}
	if err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	return nil
}

// ErrHelp is returned when a command printed its usage on request.
var ErrHelp = errors.New("help requested")
