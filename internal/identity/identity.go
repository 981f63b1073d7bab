// Package identity signs users in and out against the identity provider.
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrInvalidUserData      = errors.New("invalid user data")
	ErrIdPInteractionFailed = errors.New("identity provider interaction failed")
)

// Identity is the signed-in user of a browsing session.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	// RefreshToken is kept server-side so that sign-out can end the IdP session.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RegisterDto carries the sign-up form.
type RegisterDto struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name"     validate:"required,min=2,max=100"`
}

// Provider is the authentication capability the storefront consumes.
type Provider interface {
	// Register creates the account and returns its subject id.
	Register(ctx context.Context, dto RegisterDto) (string, error)
	// SignIn exchanges credentials for a verified identity.
	SignIn(ctx context.Context, username, password string) (*Identity, error)
	// SignOut ends the provider session of id.
	SignOut(ctx context.Context, id *Identity) error
}
