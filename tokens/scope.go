package tokens

import (
	"strings"

	"github.com/pkg/errors"
)

// Scope is a space-separated set of permission keywords. The keyword set is
// closed and case-sensitive: "Write" is not "write".
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// ErrInvalidScope is returned when a scope string contains a keyword outside
// the allowed set.
var ErrInvalidScope = errors.New("invalid scope")

var allowedScopeKeywords = map[string]struct{}{
	string(ScopeRead):  {},
	string(ScopeWrite): {},
}

// Validate checks every keyword against the allow-list. An empty scope is
// valid; defaulting is the store's concern, not validation's.
func (s Scope) Validate() error {
	for _, keyword := range strings.Fields(string(s)) {
		if _, ok := allowedScopeKeywords[keyword]; !ok {
			return errors.Wrapf(ErrInvalidScope, "unrecognized keyword %q", keyword)
		}
	}
	return nil
}

func (s Scope) String() string {
	return string(s)
}
