package sessionstore

import (
	"fmt"
	"slices"
	"strings"

	"github.com/telnet2/wamux/internal/identity"
	"github.com/telnet2/wamux/pkg/types"
)

// ValidatePrefix checks a command prefix: one to three characters from the
// allowed punctuation and alphanumerics.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return nil
}

// ValidateMode checks an access mode.
func ValidateMode(mode string) error {
	if mode != types.ModePublic && mode != types.ModePrivate {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return nil
}

// ValidateSudoNumber checks a normalized sudo number: at least eight digits,
// no leading zero.
func ValidateSudoNumber(n string) error {
	if len(n) < 8 || strings.HasPrefix(n, "0") || identity.NormalizeNumber(n) != n {
		return fmt.Errorf("%w: %q", ErrInvalidNumber, n)
	}
	return nil
}

// NormalizeDescriptor validates d and rewrites its numbers to digits only.
// Sudo entries are deduplicated and the owner is dropped from them.
func NormalizeDescriptor(d *types.SessionDescriptor) error {
	d.Name = strings.TrimSpace(d.Name)
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}
	d.OwnerNumber = identity.NormalizeNumber(d.OwnerNumber)
	if d.OwnerNumber == "" {
		return fmt.Errorf("%w: session %s has no owner number", ErrInvalidNumber, d.Name)
	}
	if d.Prefix != "" {
		if err := ValidatePrefix(d.Prefix); err != nil {
			return err
		}
	}
	if d.Mode != "" {
		if err := ValidateMode(d.Mode); err != nil {
			return err
		}
	}

	sudo := make([]string, 0, len(d.Sudo))
	for _, s := range d.Sudo {
		n := identity.NormalizeNumber(s)
		if n == "" || n == d.OwnerNumber || slices.Contains(sudo, n) {
			continue
		}
		sudo = append(sudo, n)
	}
	d.Sudo = sudo
	return nil
}

// Normalize normalizes every descriptor in cfg and rejects duplicate names.
func Normalize(cfg *types.Config) error {
	if cfg.BotName == "" {
		cfg.BotName = types.DefaultBotName
	}
	if cfg.Sessions == nil {
		cfg.Sessions = []types.SessionDescriptor{}
	}
	seen := make(map[string]bool, len(cfg.Sessions))
	for i := range cfg.Sessions {
		if err := NormalizeDescriptor(&cfg.Sessions[i]); err != nil {
			return err
		}
		name := cfg.Sessions[i].Name
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrSessionExists, name)
		}
		seen[name] = true
	}
	return nil
}
