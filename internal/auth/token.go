package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier turns a bearer token into the Actor it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Actor, time.Time, error)
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// claims covers both a Keycloak realm_access block and a flat roles list.
type claims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (c claims) actor() (Actor, error) {
	if c.Subject == "" {
		return Actor{}, fmt.Errorf("%w: subject claim missing", ErrInvalidToken)
	}
	names := append(append([]string{}, c.RealmAccess.Roles...), c.Roles...)
	return Actor{ID: c.Subject, Roles: parseRoles(names)}, nil
}

func (c claims) expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// OIDCVerifier checks tokens against the issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	cfg := &oidc.Config{ClientID: clientID}
	if clientID == "" {
		cfg.SkipClientIDCheck = true
	}
	return &OIDCVerifier{verifier: provider.Verifier(cfg)}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Actor, time.Time, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Actor{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var c claims
	if err := idToken.Claims(&c); err != nil {
		return Actor{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	a, err := c.actor()
	return a, idToken.Expiry, err
}

// HMACVerifier checks HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (Actor, time.Time, error) {
	var c claims
	_, err := jwt.ParseWithClaims(rawToken, &c, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	a, err := c.actor()
	return a, c.expiry(), err
}

// Sign issues an HS256 token for a; used by tests and local tooling.
func (v *HMACVerifier) Sign(a Actor, ttl time.Duration) (string, error) {
	names := make([]string, 0, len(a.Roles))
	for _, r := range a.Roles {
		names = append(names, string(r))
	}
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: names,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// HeaderVerifier trusts the token as a plain user ID. Development only.
type HeaderVerifier struct{}

func (HeaderVerifier) Verify(_ context.Context, rawToken string) (Actor, time.Time, error) {
	if rawToken == "" {
		return Actor{}, time.Time{}, ErrInvalidToken
	}
	return Actor{ID: rawToken, Roles: []Role{RoleAttendee, RoleOrganizer}}, time.Time{}, nil
}
