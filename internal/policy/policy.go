package policy

import (
	"strings"

	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
)

// Policy gates command execution before any network work starts.
type Policy struct {
	Allowlist []string
	ReadOnly  bool
	// Writes lists command paths that submit transactions.
	Writes map[string]bool
}

// Check applies the allowlist, then the read-only switch.
func (p Policy) Check(commandPath string) error {
	if err := CheckCommandAllowed(p.Allowlist, commandPath); err != nil {
		return err
	}
	if p.ReadOnly && p.Writes[normalize(commandPath)] {
		return clierr.New(clierr.CodeBlocked, "command submits transactions and --read-only is set")
	}
	return nil
}

func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if normalize(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// WriteSet normalizes command paths for Policy.Writes.
func WriteSet(paths ...string) map[string]bool {
	out := make(map[string]bool, len(paths))
	for _, p := range paths {
		out[normalize(p)] = true
	}
	return out
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
