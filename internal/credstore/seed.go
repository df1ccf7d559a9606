package credstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fzdarsky/quietplanet/pkg/srp"
)

// SeedAccount is a pre-provisioned account. Salt and Verifier are computed offline, so the
// password never reaches the server.
type SeedAccount struct {
	Username string `yaml:"username"`
	Salt     string `yaml:"salt"`
	Verifier string `yaml:"verifier"`
	Role     string `yaml:"role"`
}

// SeedFile is the on-disk list of seed accounts.
type SeedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

// LoadSeedFile reads and validates a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Accounts))
	for i, acct := range seed.Accounts {
		if acct.Username == "" {
			return nil, fmt.Errorf("accounts[%d]: username is required", i)
		}
		if seen[acct.Username] {
			return nil, fmt.Errorf("accounts[%d]: duplicate username %q", i, acct.Username)
		}
		seen[acct.Username] = true

		if _, err := srp.ParseInt(acct.Salt); err != nil {
			return nil, fmt.Errorf("accounts[%d]: salt must be a decimal integer", i)
		}
		if _, err := srp.ParseInt(acct.Verifier); err != nil {
			return nil, fmt.Errorf("accounts[%d]: verifier must be a decimal integer", i)
		}
		if acct.Role == "" {
			seed.Accounts[i].Role = string(RoleUser)
		} else if _, err := ParseRole(acct.Role); err != nil {
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}

	return &seed, nil
}

// Apply registers each account that does not exist yet and sets its role. Existing records keep
// their salt and verifier. It returns the number of accounts created.
func (f *SeedFile) Apply(ctx context.Context, store Store) (int, error) {
	created := 0
	for _, acct := range f.Accounts {
		err := store.Register(ctx, acct.Username, acct.Salt, acct.Verifier)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrAlreadyExists):
		default:
			return created, fmt.Errorf("failed to seed %q: %w", acct.Username, err)
		}

		if err := store.UpdateRole(ctx, acct.Username, Role(acct.Role)); err != nil {
			return created, fmt.Errorf("failed to set role for %q: %w", acct.Username, err)
		}
	}
	return created, nil
}
