package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"voice-quiz-service/internal/domain"
)

// Verifier resolves a bearer credential into a caller identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Caller, error)
}

// Claims carries the user id in the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService issues and verifies HS256 bearer tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTService(secret, issuer string, ttl time.Duration) (*JWTService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for userID.
func (s *JWTService) Issue(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses and checks a token. Every failure wraps domain.ErrUnauthorized.
func (s *JWTService) Verify(_ context.Context, token string) (domain.Caller, error) {
	if token == "" {
		return domain.Caller{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return domain.Caller{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return domain.Caller{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return domain.Caller{}, fmt.Errorf("%w: unexpected issuer", domain.ErrUnauthorized)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Caller{}, fmt.Errorf("%w: subject is not a user id", domain.ErrUnauthorized)
	}
	return domain.Caller{UserID: userID}, nil
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
