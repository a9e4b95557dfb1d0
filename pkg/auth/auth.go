// Package auth verifies caller credentials and derives the owner id that
// scopes every fragment operation.
//
// The fragment core never sees raw credentials: adapters authenticate the
// request, then pass OwnerID(email) downward.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned for missing or invalid credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Principal is an authenticated caller.
type Principal struct {
	// Email is the login name as presented
	Email string

	// OwnerID is the hashed namespace key derived from Email
	OwnerID string
}

// Authenticator extracts and verifies the caller of an HTTP request.
type Authenticator interface {
	// Authenticate returns the caller or ErrUnauthorized.
	Authenticate(r *http.Request) (Principal, error)
}

// OwnerID returns the hex SHA-256 of email. Owner ids are stable, opaque and
// safe to use as storage path segments.
func OwnerID(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

// User is a configured login.
type User struct {
	Email        string `mapstructure:"email" yaml:"email" validate:"required"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash" validate:"required"`
}

// BasicAuthenticator verifies HTTP basic credentials against bcrypt hashes.
type BasicAuthenticator struct {
	users map[string][]byte

	// dummy is compared against for unknown users so response time does
	// not reveal which emails exist
	dummy []byte
}

// NewBasicAuthenticator builds an authenticator for users.
//
// Returns an error if an email is empty or repeated, or a hash is not a
// valid bcrypt hash.
func NewBasicAuthenticator(users []User) (*BasicAuthenticator, error) {
	a := &BasicAuthenticator{users: make(map[string][]byte, len(users))}

	// The dummy costs as much as the slowest real hash, or DefaultCost
	// when all configured hashes are cheaper.
	dummyCost := bcrypt.DefaultCost

	for i, u := range users {
		if u.Email == "" {
			return nil, fmt.Errorf("user %d: email is required", i)
		}
		if _, dup := a.users[u.Email]; dup {
			return nil, fmt.Errorf("user %q declared twice", u.Email)
		}
		hash := []byte(u.PasswordHash)
		cost, err := bcrypt.Cost(hash)
		if err != nil {
			return nil, fmt.Errorf("user %q: invalid password hash: %w", u.Email, err)
		}
		a.users[u.Email] = hash
		dummyCost = max(dummyCost, cost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("fragments-dummy"), dummyCost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	a.dummy = dummy

	return a, nil
}

// Authenticate implements Authenticator.
func (a *BasicAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	email, password, ok := r.BasicAuth()
	if !ok || email == "" {
		return Principal{}, ErrUnauthorized
	}

	hash, known := a.users[email]
	if !known {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return Principal{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Principal{}, ErrUnauthorized
	}

	return Principal{Email: email, OwnerID: OwnerID(email)}, nil
}

// HashPassword returns a bcrypt hash suitable for User.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
