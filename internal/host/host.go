// Package host models the ticketing widget runtime that embeds the permits screen: it hands over an
// auth token and the ticket requester's phone number.
package host

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UnknownOperator is recorded when the token carries no usable identity claim.
const UnknownOperator = "unknown"

// Requester is the ticket requester as reported by the host.
type Requester struct {
	Phone string `json:"phone"`
}

// Context is the host-supplied session context.
type Context struct {
	Token     string    `json:"token"`
	Requester Requester `json:"requester"`
}

// Bundle is the payload the widget runtime hands to the app.
type Bundle struct {
	Context Context `json:"context"`
}

// LoadBundle reads a bundle JSON file.
func LoadBundle(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("host: read bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("host: decode bundle: %w", err)
	}
	return &b, nil
}

// FromValues builds a bundle from explicit token/phone values (env or flags).
func FromValues(token, requesterPhone string) *Bundle {
	return &Bundle{Context: Context{
		Token:     strings.TrimSpace(token),
		Requester: Requester{Phone: strings.TrimSpace(requesterPhone)},
	}}
}

// HasToken reports whether the host supplied a token. No request may be issued without one.
func (b *Bundle) HasToken() bool {
	return b != nil && strings.TrimSpace(b.Context.Token) != ""
}

// RequesterPhone returns the prefilled requester phone, possibly empty.
func (b *Bundle) RequesterPhone() string {
	if b == nil {
		return ""
	}
	return b.Context.Requester.Phone
}

// Operator extracts the operator identity from the token for audit records. The token is not
// verified; the host owns authentication. Opaque (non-JWT) tokens yield UnknownOperator.
func (b *Bundle) Operator() string {
	if !b.HasToken() {
		return UnknownOperator
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(b.Context.Token, claims); err != nil {
		return UnknownOperator
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	for _, key := range []string{"name", "email", "preferred_username"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return UnknownOperator
}
