// Package auth issues and verifies the bearer tokens handed to client agents.
//
// Tokens are HS256 JWTs whose subject is the credentials id. The signed
// string is persisted as models.UserToken.Key so a token can be revoked by
// deleting its row, independently of the JWT expiry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/marmos91/miniserver/pkg/models"
	"github.com/marmos91/miniserver/pkg/store"
)

// Common errors for token operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("token secret must be at least 32 characters")
	ErrMissingBearer       = errors.New("missing bearer token")
)

const (
	// DefaultIssuer is the iss claim used when Config.Issuer is empty.
	DefaultIssuer = "miniserver"

	// DefaultTTL is the token lifetime used when no TTL is requested.
	DefaultTTL = 30 * 24 * time.Hour
)

// Config holds configuration for token signing.
type Config struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "miniserver"
	Issuer string

	// DefaultTTL is the lifetime applied by Issue when ttl is zero.
	DefaultTTL time.Duration
}

// Claims are the JWT claims carried by an issued token.
type Claims struct {
	jwt.RegisteredClaims

	// Agent names the client the token was issued to.
	Agent string `json:"agent"`
}

// TokenService issues tokens for credentials and resolves bearer tokens back
// to their user.
type TokenService struct {
	config Config
	store  store.Store
	now    func() time.Time
}

// NewTokenService creates a token service backed by st.
func NewTokenService(config Config, st store.Store) (*TokenService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}
	return &TokenService{config: config, store: st, now: time.Now}, nil
}

// Issue signs a token for the given credentials and stores it. A zero ttl
// uses the configured default.
func (s *TokenService) Issue(ctx context.Context, credentialsID, agent string, ttl time.Duration) (*models.UserToken, error) {
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	if _, err := s.store.GetCredentials(ctx, credentialsID); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	expires := now.Add(ttl)
	id := uuid.NewString()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    s.config.Issuer,
			Subject:   credentialsID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Agent: agent,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, ErrTokenSigningFailed
	}

	token := &models.UserToken{
		ID:       id,
		ParentID: credentialsID,
		Agent:    agent,
		Key:      signed,
		Expired:  &expires,
	}
	if _, err := s.store.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// Validate verifies the signature and expiry of a signed token and returns
// its claims. It does not consult the store.
func (s *TokenService) Validate(signed string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(signed, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	},
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves a bearer token to the user owning it. The token must
// verify, exist in the store and still be valid.
func (s *TokenService) Authenticate(ctx context.Context, bearer string) (*models.User, error) {
	claims, err := s.Validate(bearer)
	if err != nil {
		return nil, err
	}

	token, err := s.store.GetTokenByKey(ctx, bearer)
	if err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if token.ParentID != claims.Subject {
		return nil, ErrInvalidToken
	}
	if !token.IsValid(s.now()) {
		return nil, ErrExpiredToken
	}

	creds, err := s.store.GetCredentials(ctx, token.ParentID)
	if err != nil {
		if errors.Is(err, models.ErrCredentialsNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return s.store.GetUserByID(ctx, creds.ModelID)
}

// ExtractBearer returns the token from an Authorization header value.
func ExtractBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}
