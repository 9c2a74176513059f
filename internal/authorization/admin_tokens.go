package authorization

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
)

const minAdminTokenLength = 24

var knownRoles = map[string]struct{}{
	RoleOwner:  {},
	RoleAdmin:  {},
	RoleViewer: {},
}

type adminToken struct {
	operator Operator
	digest   [sha256.Size]byte
}

// ParseAdminTokens reads "operator:role:token" entries. Tokens are kept only
// as digests so comparisons run in constant time over equal-length inputs.
func ParseAdminTokens(entries []string) ([]adminToken, error) {
	tokens := make([]adminToken, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: expected operator:role:token", ErrInvalidAdminToken)
		}
		name := strings.TrimSpace(parts[0])
		role := strings.ToLower(strings.TrimSpace(parts[1]))
		secret := strings.TrimSpace(parts[2])
		if name == "" {
			return nil, fmt.Errorf("%w: operator name is empty", ErrInvalidAdminToken)
		}
		if _, ok := knownRoles[role]; !ok {
			return nil, fmt.Errorf("%w: unknown role %q for %s", ErrInvalidAdminToken, role, name)
		}
		if len(secret) < minAdminTokenLength {
			return nil, fmt.Errorf("%w: token for %s is shorter than %d characters", ErrInvalidAdminToken, name, minAdminTokenLength)
		}
		tokens = append(tokens, adminToken{
			operator: Operator{Name: name, Role: role},
			digest:   sha256.Sum256([]byte(secret)),
		})
	}
	return tokens, nil
}

func matchAdminToken(tokens []adminToken, presented string) (Operator, bool) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return Operator{}, false
	}
	digest := sha256.Sum256([]byte(presented))

	var found Operator
	matched := 0
	for _, token := range tokens {
		if subtle.ConstantTimeCompare(digest[:], token.digest[:]) == 1 {
			found = token.operator
			matched = 1
		}
	}
	return found, matched == 1
}
