package vault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Principal identifies a Neo N3 account or contract. The canonical form is the
// base58 Neo address; script hashes are accepted on input.
type Principal string

// ErrInvalidPrincipal is returned when a string is neither a Neo address nor a
// 20-byte script hash.
var ErrInvalidPrincipal = errors.New("invalid principal")

// ParsePrincipal accepts an N3 address ("N...") or a little-endian script hash
// with or without the 0x prefix and returns the canonical principal.
func ParsePrincipal(raw string) (Principal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPrincipal)
	}

	if hexPart, ok := scriptHashCandidate(s); ok {
		u, err := util.Uint160DecodeStringLE(hexPart)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
		}
		return PrincipalFromHash(u), nil
	}

	u, err := address.StringToUint160(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	return PrincipalFromHash(u), nil
}

// MustPrincipal is ParsePrincipal for constants and tests.
func MustPrincipal(raw string) Principal {
	p, err := ParsePrincipal(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// PrincipalFromHash converts a script hash to its canonical principal.
func PrincipalFromHash(u util.Uint160) Principal {
	return Principal(address.Uint160ToString(u))
}

// ScriptHash decodes the principal back to a script hash.
func (p Principal) ScriptHash() (util.Uint160, error) {
	return address.StringToUint160(string(p))
}

// Hex returns the 0x-prefixed little-endian script hash used by Neo RPC.
func (p Principal) Hex() string {
	u, err := p.ScriptHash()
	if err != nil {
		return ""
	}
	return "0x" + u.StringLE()
}

// String implements fmt.Stringer.
func (p Principal) String() string {
	return string(p)
}

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool {
	return p == ""
}

func scriptHashCandidate(s string) (string, bool) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) != util.Uint160Size*2 {
		return "", false
	}
	for _, c := range trimmed {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return "", false
		}
	}
	return trimmed, true
}
