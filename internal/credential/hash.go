package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
	ErrUnsupportedHash     = errors.New("unsupported hash algorithm")
)

// HashComparer checks a PIN against a stored credential hash in constant time.
type HashComparer interface {
	Compare(encodedHash, pin string) (bool, error)
}

// Comparer accepts bcrypt ($2a$, $2b$, $2y$) and argon2id ($argon2id$) hashes.
type Comparer struct{}

func (Comparer) Compare(encodedHash, pin string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$2a$"), strings.HasPrefix(encodedHash, "$2b$"), strings.HasPrefix(encodedHash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(pin))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return verifyArgon2id(pin, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

// HashPIN produces the bcrypt hash stored in users.credential_hash.
func HashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %w", err)
	}
	return string(hash), nil
}

// Argon2Params are the argon2id parameters encoded in a hash string.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// maxArgon2Memory caps the memory cost, in KiB, accepted from a stored hash.
const maxArgon2Memory = 1 << 20

// DefaultArgon2Params follows the OWASP baseline for argon2id.
func DefaultArgon2Params() *Argon2Params {
	return &Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// HashPINArgon2id encodes pin as $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func HashPINArgon2id(pin string, params *Argon2Params) (string, error) {
	if params == nil {
		params = DefaultArgon2Params()
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(pin), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.Memory,
		params.Iterations,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyArgon2id(pin, encodedHash string) (bool, error) {
	params, salt, key, err := decodeArgon2id(encodedHash)
	if err != nil {
		return false, err
	}
	other := argon2.IDKey([]byte(pin), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

func decodeArgon2id(encodedHash string) (*Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, nil, nil, ErrIncompatibleVersion
	}

	params := &Argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return nil, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	params.SaltLength = uint32(len(salt))

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	params.KeyLength = uint32(len(key))

	// argon2.IDKey panics on zero rounds, zero lanes or an empty key.
	if params.Iterations < 1 || params.Parallelism < 1 || len(salt) == 0 || len(key) == 0 {
		return nil, nil, nil, ErrInvalidHash
	}
	if params.Memory > maxArgon2Memory {
		return nil, nil, nil, ErrInvalidHash
	}

	return params, salt, key, nil
}
