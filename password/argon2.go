package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Floors applied both to configured parameters and to parameters read back
// from stored hashes.
const (
	minArgon2Memory  uint32 = 8 * 1024
	minArgon2Time    uint32 = 1
	minArgon2Threads uint8  = 1
	minArgon2Salt    uint32 = 16
	minArgon2Key     uint32 = 16
)

// Argon2Config tunes Argon2id. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns interactive-login parameters (64 MiB, 3 passes).
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < minArgon2Memory:
		return oops.Code("ARGON2_CONFIG_INVALID").With("memory", c.Memory).Errorf("argon2 memory must be >= %d KiB", minArgon2Memory)
	case c.Time < minArgon2Time:
		return oops.Code("ARGON2_CONFIG_INVALID").With("time", c.Time).Errorf("argon2 time must be >= %d", minArgon2Time)
	case c.Parallelism < minArgon2Threads:
		return oops.Code("ARGON2_CONFIG_INVALID").Errorf("argon2 parallelism must be >= %d", minArgon2Threads)
	case c.SaltLength < minArgon2Salt:
		return oops.Code("ARGON2_CONFIG_INVALID").With("salt_length", c.SaltLength).Errorf("argon2 salt must be >= %d bytes", minArgon2Salt)
	case c.KeyLength < minArgon2Key:
		return oops.Code("ARGON2_CONFIG_INVALID").With("key_length", c.KeyLength).Errorf("argon2 key must be >= %d bytes", minArgon2Key)
	}
	return nil
}

// argon2Hash is a decoded PHC string:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
//
// salt and key are unpadded standard base64.
type argon2Hash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h argon2Hash) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
}

func (h argon2Hash) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key))
}

func decodeArgon2Hash(encoded string) (argon2Hash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").Wrapf(err, "parse version")
	}
	if version != argon2.Version {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").With("version", version).Errorf("unsupported argon2 version")
	}

	var (
		h       argon2Hash
		threads uint32
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &threads); err != nil {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").Wrapf(err, "parse parameters")
	}
	if h.memory < minArgon2Memory || h.time < minArgon2Time || threads < uint32(minArgon2Threads) || threads > 255 {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").
			With("memory", h.memory).With("time", h.time).With("threads", threads).
			Errorf("argon2 parameters out of range")
	}
	h.threads = uint8(threads)

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").Wrapf(err, "decode salt")
	}
	if uint32(len(h.salt)) < minArgon2Salt {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").Errorf("salt too short")
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").Wrapf(err, "decode key")
	}
	if len(h.key) == 0 || len(h.key) > 1<<10 {
		return argon2Hash{}, oops.Code("ARGON2_HASH_INVALID").Errorf("invalid key length %d", len(h.key))
	}
	return h, nil
}

// Argon2 hashes passwords with Argon2id in PHC string format.
type Argon2 struct {
	cfg Argon2Config
}

// NewArgon2 rejects parameters below the floors above.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a key under a fresh random salt. The password bytes are used
// as given.
func (a *Argon2) Hash(password string) (string, error) {
	h := argon2Hash{
		memory:  a.cfg.Memory,
		time:    a.cfg.Time,
		threads: a.cfg.Parallelism,
		salt:    make([]byte, a.cfg.SaltLength),
		key:     make([]byte, a.cfg.KeyLength),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", oops.Code("ARGON2_SALT_FAILED").Wrap(err)
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// Verify recomputes the key with the parameters stored in encodedHash, not
// the configured ones, and compares in constant time.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	h, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.derive(password), h.key) == 1, nil
}

func (a *Argon2) Handles(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, argon2Prefix)
}
