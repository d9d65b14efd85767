// Package auth issues and checks the credentials that stand for an identity:
// signed access tokens, bcrypt password hashes and GitHub sign-in.
//
// HOW A SESSION WORKS:
//  1. SignUp / SignIn / GitHub callback → TokenService.Issue(userID)
//  2. The token goes back as an HttpOnly cookie and in the JSON body
//     (mobile clients send it as "Authorization: Bearer <token>").
//  3. RequireAuth validates it on every request and puts the user id in the
//     request context.
//  4. SignOut revokes the token id (jti) so it cannot be replayed until it
//     would have expired anyway.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is stamped into and required from every token.
const Issuer = "chore-tracker"

// MinSecretLength guards against trivially guessable HMAC keys.
const MinSecretLength = 16

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenRevoked = errors.New("auth: token revoked")
)

// Token is a freshly signed access token.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Claims is what a valid token tells us.
type Claims struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// TokenService signs and validates HS256 tokens. It also remembers revoked
// token ids until their natural expiry.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti → expiry
}

func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}, nil
}

// TTL is how long issued tokens stay valid; handlers use it for cookie MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID. Every token gets a random uuid as its jti
// so a single session can be revoked without touching the others.
func (s *TokenService) Issue(userID string) (Token, error) {
	now := s.now()
	t := Token{
		ID:        uuid.NewString(),
		ExpiresAt: now.Add(s.ttl),
	}

	claims := jwt.RegisteredClaims{
		ID:        t.ID,
		Subject:   userID,
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: signing token: %w", err)
	}
	t.Value = signed
	return t, nil
}

// Validate parses tokenStr and checks signature, algorithm, issuer, expiry
// and revocation.
func (s *TokenService) Validate(tokenStr string) (Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &rc,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		// Pinning the method blocks the "alg: none" and RS/HS confusion attacks.
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	if rc.Subject == "" {
		return Claims{}, errors.New("auth: token has no subject")
	}
	if s.isRevoked(rc.ID) {
		return Claims{}, ErrTokenRevoked
	}

	return Claims{UserID: rc.Subject, TokenID: rc.ID, ExpiresAt: rc.ExpiresAt.Time}, nil
}

// Revoke rejects the token id from now until expiresAt.
func (s *TokenService) Revoke(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
}

func (s *TokenService) isRevoked(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[tokenID]
	return ok
}
