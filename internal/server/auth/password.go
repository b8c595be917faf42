package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen     = 16
	keyLen      = 32
	argonTime   = 1
	argonMemory = 64 * 1024
	argonLanes  = 4
)

// HashPassword derives an argon2id hash of password with a random salt and
// encodes both as "salt$hash".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonLanes, keyLen)
	enc := base64.RawStdEncoding
	return enc.EncodeToString(salt) + "$" + enc.EncodeToString(key), nil
}

// CheckPassword reports whether password matches encoded.
func CheckPassword(encoded, password string) bool {
	saltPart, keyPart, ok := strings.Cut(encoded, "$")
	if !ok {
		return false
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(saltPart)
	if err != nil {
		return false
	}
	want, err := enc.DecodeString(keyPart)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonLanes, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
