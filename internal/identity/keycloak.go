package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Nerzal/gocloak/v13"
	"github.com/abgdnv/storefront/pkg/auth"
	"github.com/go-playground/validator/v10"
)

// GoCloakClient is the subset of *gocloak.GoCloak the Keycloak provider uses.
type GoCloakClient interface {
	Login(ctx context.Context, clientID, clientSecret, realm, username, password string) (*gocloak.JWT, error)
	Logout(ctx context.Context, clientID, clientSecret, realm, refreshToken string) error
	LoginClient(ctx context.Context, clientID, clientSecret, realm string, scopes ...string) (*gocloak.JWT, error)
	CreateUser(ctx context.Context, token, realm string, user gocloak.User) (string, error)
	SetPassword(ctx context.Context, token, userID, realm, password string, temporary bool) error
	DeleteUser(ctx context.Context, accessToken, realm, userID string) error
}

// KeycloakProvider implements Provider with Keycloak. Sign-in uses the password grant
// and the issued access token is verified before its claims are trusted.
type KeycloakProvider struct {
	client   GoCloakClient
	verifier auth.Verifier
	validate *validator.Validate
	logger   *slog.Logger
	realm    string
	clientID string
	secret   string
}

func NewKeycloakProvider(client GoCloakClient, verifier auth.Verifier, realm, clientID, secret string, logger *slog.Logger) *KeycloakProvider {
	return &KeycloakProvider{
		client:   client,
		verifier: verifier,
		validate: validator.New(),
		logger:   logger.With("component", "identity"),
		realm:    realm,
		clientID: clientID,
		secret:   secret,
	}
}

func (k *KeycloakProvider) Register(ctx context.Context, dto RegisterDto) (string, error) {
	if err := k.validate.Struct(dto); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUserData, err)
	}
	user := gocloak.User{
		Username:  gocloak.StringP(dto.Email),
		Email:     gocloak.StringP(dto.Email),
		Enabled:   gocloak.BoolP(true),
		FirstName: gocloak.StringP(dto.Name),
	}

	token, err := k.client.LoginClient(ctx, k.clientID, k.secret, k.realm)
	if err != nil {
		k.logger.ErrorContext(ctx, "Failed to login", "error", err)
		return "", fmt.Errorf("%w: failed to login to Keycloak: %v", ErrIdPInteractionFailed, err)
	}

	userID, err := k.client.CreateUser(ctx, token.AccessToken, k.realm, user)
	if err != nil {
		k.logger.ErrorContext(ctx, "Failed to create user", "error", err)
		switch apiErrorCode(err) {
		case http.StatusConflict:
			return "", ErrUserAlreadyExists
		case http.StatusBadRequest:
			return "", ErrInvalidUserData
		}
		return "", ErrIdPInteractionFailed
	}

	if err := k.client.SetPassword(ctx, token.AccessToken, userID, k.realm, dto.Password, false); err != nil {
		k.logger.ErrorContext(ctx, "Failed to set password", "error", err)
		errSetPassword := fmt.Errorf("%w: failed to set password: %v", ErrIdPInteractionFailed, err)
		if err := k.client.DeleteUser(ctx, token.AccessToken, k.realm, userID); err != nil {
			k.logger.ErrorContext(ctx, "Failed to delete half-created user", "user_id", userID, "error", err)
		}
		return "", errSetPassword
	}
	return userID, nil
}

func (k *KeycloakProvider) SignIn(ctx context.Context, username, password string) (*Identity, error) {
	jwt, err := k.client.Login(ctx, k.clientID, k.secret, k.realm, username, password)
	if err != nil {
		switch apiErrorCode(err) {
		case http.StatusUnauthorized, http.StatusBadRequest:
			return nil, ErrInvalidCredentials
		}
		k.logger.ErrorContext(ctx, "Failed to sign in", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrIdPInteractionFailed, err)
	}

	token, err := k.verifier.Verify(ctx, jwt.AccessToken)
	if err != nil {
		k.logger.ErrorContext(ctx, "Issued token failed verification", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrIdPInteractionFailed, err)
	}
	claims, err := auth.ClaimsOf(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdPInteractionFailed, err)
	}
	return &Identity{
		ID:           claims.Subject,
		Email:        claims.Email,
		Name:         claims.Name,
		RefreshToken: jwt.RefreshToken,
	}, nil
}

// SignOut ends the Keycloak session. An identity without a refresh token has no
// provider session to end.
func (k *KeycloakProvider) SignOut(ctx context.Context, id *Identity) error {
	if id == nil || id.RefreshToken == "" {
		return nil
	}
	if err := k.client.Logout(ctx, k.clientID, k.secret, k.realm, id.RefreshToken); err != nil {
		return fmt.Errorf("%w: logout: %v", ErrIdPInteractionFailed, err)
	}
	return nil
}

func apiErrorCode(err error) int {
	var apiErr *gocloak.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
