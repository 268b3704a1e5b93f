// Package auth verifies principal tokens presented by pilots, controllers,
// and operators and turns them into request-scoped authorization contexts.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/aeronet-project/aeronet/internal/platform/errors"
)

// Role names carried in principal token claims.
const (
	RolePilot      = "pilot"
	RoleController = "controller"
	RoleOperator   = "operator"
)

// principalEnv holds raw env values before post-parse validation.
type principalEnv struct {
	Issuer    string `env:"AERONET_PRINCIPAL_TOKEN_ISSUER"`
	Audience  string `env:"AERONET_PRINCIPAL_TOKEN_AUDIENCE"`
	PublicKey string `env:"AERONET_PRINCIPAL_TOKEN_PUBLIC_KEY"`
}

// Config defines how principal tokens are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Context is the validated identity attached to a request.
type Context struct {
	ActorID string
	Roles   []string
}

// HasRole reports whether the principal carries the named role.
func (c Context) HasRole(role string) bool {
	for _, item := range c.Roles {
		if item == role {
			return true
		}
	}
	return false
}

// IsController reports whether the principal may exercise controller authority.
func (c Context) IsController() bool { return c.HasRole(RoleController) }

// IsOperator reports whether the principal may exercise operator authority.
func (c Context) IsOperator() bool { return c.HasRole(RoleOperator) }

// principalClaims is the internal claims type used for JWT parsing.
type principalClaims struct {
	jwt.RegisteredClaims
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
}

// LoadConfigFromEnv reads principal token verification configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw principalEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse principal token env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("AERONET_PRINCIPAL_TOKEN_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("AERONET_PRINCIPAL_TOKEN_AUDIENCE is required")
	}
	if publicKey == "" {
		return Config{}, fmt.Errorf("AERONET_PRINCIPAL_TOKEN_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode principal token public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("principal token public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// ValidateToken verifies a principal token and returns its authorization
// context.
func ValidateToken(token string, cfg Config) (Context, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Context{}, apperrors.New(apperrors.CodeAuthUnauthenticated, "principal token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Context{}, errors.New("principal token verifier is not configured")
	}

	var parsed principalClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Context{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Context{}, apperrors.WithMetadata(
			apperrors.CodeAuthUnauthenticated,
			"principal token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Context{}, apperrors.WithMetadata(
			apperrors.CodeAuthUnauthenticated,
			"principal token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ExpiresAt == nil {
		return Context{}, apperrors.New(apperrors.CodeAuthUnauthenticated, "principal token exp is required")
	}

	now := cfg.Now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return Context{}, apperrors.New(apperrors.CodeAuthUnauthenticated, "principal token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Context{}, apperrors.New(apperrors.CodeAuthUnauthenticated, "principal token not active yet")
	}
	actorID := strings.TrimSpace(parsed.ActorID)
	if actorID == "" {
		return Context{}, apperrors.New(apperrors.CodeAuthUnauthenticated, "principal token actor_id is required")
	}

	return Context{ActorID: actorID, Roles: parsed.Roles}, nil
}

// IssueToken signs a principal token. Used by the seed command and tests.
func IssueToken(key ed25519.PrivateKey, issuer, audience, actorID string, roles []string, now time.Time, ttl time.Duration) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", errors.New("principal token signing key must be ed25519")
	}
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now.UTC()),
			ExpiresAt: jwt.NewNumericDate(now.UTC().Add(ttl)),
		},
		ActorID: actorID,
		Roles:   roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign principal token: %w", err)
	}
	return signed, nil
}

// RequireController returns an error unless the principal is a controller.
func RequireController(actor Context) error {
	if !actor.IsController() {
		return apperrors.WithMetadata(
			apperrors.CodeAuthNotController,
			"actor is not a controller",
			map[string]string{"ActorID": actor.ActorID},
		)
	}
	return nil
}

// RequireOperator returns an error unless the principal is an operator.
func RequireOperator(actor Context) error {
	if !actor.IsOperator() {
		return apperrors.WithMetadata(
			apperrors.CodeAuthNotOperator,
			"actor is not an operator",
			map[string]string{"ActorID": actor.ActorID},
		)
	}
	return nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeAuthUnauthenticated, "principal token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeAuthUnauthenticated, "principal token alg is invalid")
	}
	return apperrors.New(apperrors.CodeAuthUnauthenticated, "principal token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
