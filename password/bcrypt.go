package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the cost used when BcryptConfig.Cost is zero.
	DefaultBcryptCost = 12
	// MaxBcryptBytes is the longest password bcrypt accepts.
	MaxBcryptBytes = 72
)

// ErrPasswordTooLong is returned by Bcrypt.Hash for passwords over 72 bytes.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// BcryptConfig tunes the bcrypt work factor.
type BcryptConfig struct {
	Cost int
}

// Bcrypt hashes passwords with bcrypt. The salt is random per call and is
// embedded in the encoded hash.
type Bcrypt struct {
	cost int
}

// NewBcrypt validates the cost and returns a hasher.
func NewBcrypt(cfg BcryptConfig) (*Bcrypt, error) {
	if cfg.Cost == 0 {
		cfg.Cost = DefaultBcryptCost
	}
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cfg.Cost}, nil
}

// Hash returns a bcrypt hash of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) > MaxBcryptBytes {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches encodedHash. A mismatch is
// (false, nil); a malformed hash is (false, err).
func (b *Bcrypt) Verify(password string, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Handles reports whether encodedHash is a bcrypt hash.
func (b *Bcrypt) Handles(encodedHash string) bool {
	return isBcrypt(encodedHash)
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
