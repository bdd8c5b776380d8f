// Package session supplies the opaque session token every reader request
// carries. A token is either handed in directly (Static) or scraped from the
// reader's login page with a headless browser (Browser).
package session

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEmptyToken is returned when a provider yields no token.
	ErrEmptyToken = errors.New("session token is empty")

	// ErrCredentialsRequired is returned when browser login lacks an email or access code.
	ErrCredentialsRequired = errors.New("email and access code are required")
)

// Provider obtains a session token.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f ProviderFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Static is a pre-captured session token.
type Static string

// Token returns the token, or ErrEmptyToken if it is blank.
func (s Static) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
