// Package identity parses and validates the account identifiers callers
// present to the exchange.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/atmx/dividend-exchange/internal/model"
)

// accountRegex accepts either a 0x-prefixed 20-byte hex address or a short
// handle of letters, digits, dot, dash and underscore.
// Examples: 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed, alice, desk-7.
var accountRegex = regexp.MustCompile(
	`^(0x[0-9a-fA-F]{40}|[A-Za-z0-9][A-Za-z0-9._-]{0,63})$`,
)

var (
	ErrInvalidAccount = errors.New("identity: invalid account id")
	ErrEmptyAccount   = errors.New("identity: missing account id")
)

// ParseAccount validates an identifier and returns its canonical form. Hex
// addresses are lowercased so that checksum casing does not split accounts.
func ParseAccount(raw string) (model.AccountID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyAccount
	}
	if !accountRegex.MatchString(raw) {
		return "", fmt.Errorf("%w: %q (expected 0x{40 hex} or a handle)", ErrInvalidAccount, raw)
	}
	if strings.HasPrefix(raw, "0x") {
		if !IsAddress(raw) {
			return "", fmt.Errorf("%w: %q is not a 20-byte hex address", ErrInvalidAccount, raw)
		}
		raw = strings.ToLower(raw)
	}
	return model.AccountID(raw), nil
}

var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsAddress reports whether raw is a 0x-prefixed 20-byte hex address.
func IsAddress(raw string) bool {
	return addressRegex.MatchString(raw)
}
