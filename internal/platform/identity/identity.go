package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sereniyou/payments/pkg/config"
)

var (
	ErrMissingToken = errors.New("No authorization header provided")
	ErrInvalidToken = errors.New("User not authenticated")
	// ErrUnavailable means the identity service could not be asked.
	ErrUnavailable   = errors.New("identity service unavailable")
	ErrNotConfigured = errors.New("identity: url or jwt_secret must be set")
)

// Verifier resolves a bearer token to the id of the user it was issued to.
type Verifier interface {
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	fields := strings.Fields(header)
	if len(fields) > 0 && strings.EqualFold(fields[0], "bearer") {
		fields = fields[1:]
	}
	if len(fields) != 1 {
		return "", ErrMissingToken
	}
	return fields[0], nil
}

// JWTVerifier checks Supabase access tokens locally with the project's HS256 secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

func (v *JWTVerifier) Authenticate(_ context.Context, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// GoTrueVerifier asks the auth server who the token belongs to.
type GoTrueVerifier struct {
	url     string
	anonKey string
	http    *http.Client
}

func NewGoTrueVerifier(baseURL, anonKey string, timeout time.Duration) *GoTrueVerifier {
	return &GoTrueVerifier{
		url:     strings.TrimRight(baseURL, "/") + "/auth/v1/user",
		anonKey: anonKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type goTrueUser struct {
	ID string `json:"id"`
}

func (v *GoTrueVerifier) Authenticate(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.anonKey)

	resp, err := v.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrInvalidToken
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var u goTrueUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return "", fmt.Errorf("%w: decode user: %v", ErrUnavailable, err)
	}
	if u.ID == "" {
		return "", ErrInvalidToken
	}
	return u.ID, nil
}

// New prefers local verification when a JWT secret is configured.
func New(cfg *config.Config, log *zap.SugaredLogger) (Verifier, error) {
	id := cfg.Identity
	switch {
	case id.JWTSecret != "":
		log.Infow("identity: verifying access tokens locally")
		return NewJWTVerifier(id.JWTSecret), nil
	case id.URL != "":
		log.Infow("identity: verifying access tokens against auth server", "url", id.URL)
		return NewGoTrueVerifier(id.URL, id.AnonKey, id.Timeout), nil
	default:
		return nil, ErrNotConfigured
	}
}

var Module = fx.Options(
	fx.Provide(New),
)
