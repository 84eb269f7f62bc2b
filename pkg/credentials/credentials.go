// Package credentials wraps the password hashing and access key primitives
// used for account authentication.
//
// Passwords are hashed with Argon2id and stored in the standard PHC string
// format, so parameters can evolve without invalidating existing digests.
// Access keys are 128-hex-character bearer credentials (64 random bytes)
// drawn from crypto/rand.
package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// AccessKeyLength is the exact length of an encoded access key.
const AccessKeyLength = 128

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword derives an Argon2id digest of plaintext with a fresh random
// salt. The digest is one-way; the plaintext is never recoverable from it.
func HashPassword(plaintext string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	digest := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return digest, nil
}

// VerifyPassword reports whether plaintext matches the stored digest.
// The comparison of derived keys is constant-time.
func VerifyPassword(plaintext, digest string) bool {
	salt, key, memory, time, threads, err := decodeDigest(digest)
	if err != nil {
		return false
	}
	derived := argon2.IDKey([]byte(plaintext), salt, time, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1
}

func decodeDigest(digest string) (salt, key []byte, memory, time uint32, threads uint8, err error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, fmt.Errorf("malformed argon2id digest")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("malformed digest version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("malformed digest parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("malformed digest salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("malformed digest key: %w", err)
	}
	return salt, key, memory, time, threads, nil
}

// GenerateAccessKey returns a new 128-hex-character access key from a
// cryptographically secure random source. Collisions are treated as
// negligible, but the user directory still enforces uniqueness through
// its unique constraint.
func GenerateAccessKey() (string, error) {
	raw := make([]byte, AccessKeyLength/2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate access key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// ValidAccessKey reports whether key has the exact shape of an encoded
// access key. It says nothing about whether the key is known to the
// directory.
func ValidAccessKey(key string) bool {
	if len(key) != AccessKeyLength {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
