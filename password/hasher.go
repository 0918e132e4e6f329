package password

import "errors"

// ErrUnsupportedHash is returned when no configured scheme recognizes a hash.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Hasher hashes and verifies passwords under one scheme.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
	Handles(encodedHash string) bool
}

// Multi hashes with a primary scheme and verifies hashes from any of its
// schemes, chosen by the hash prefix.
type Multi struct {
	primary Hasher
	schemes []Hasher
}

// NewMulti returns a Multi that hashes with primary and also verifies hashes
// produced by legacy.
func NewMulti(primary Hasher, legacy ...Hasher) *Multi {
	schemes := make([]Hasher, 0, 1+len(legacy))
	schemes = append(schemes, primary)
	for _, h := range legacy {
		if h != nil {
			schemes = append(schemes, h)
		}
	}
	return &Multi{primary: primary, schemes: schemes}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Verify(password string, encodedHash string) (bool, error) {
	for _, h := range m.schemes {
		if h.Handles(encodedHash) {
			return h.Verify(password, encodedHash)
		}
	}
	return false, ErrUnsupportedHash
}

func (m *Multi) Handles(encodedHash string) bool {
	for _, h := range m.schemes {
		if h.Handles(encodedHash) {
			return true
		}
	}
	return false
}

// Matches reports whether password verifies against encodedHash under h.
// Malformed hashes and verification errors count as a mismatch.
func Matches(h Hasher, password, encodedHash string) bool {
	if h == nil {
		return false
	}
	ok, err := h.Verify(password, encodedHash)
	return err == nil && ok
}
