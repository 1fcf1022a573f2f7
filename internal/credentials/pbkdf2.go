package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultPBKDF2Iterations = 600000

	pbkdf2KeyLen  = 32
	pbkdf2SaltLen = 22
)

// PBKDF2Hasher stores passwords as
// "pbkdf2_sha256$<iterations>$<salt>$<base64 key>". With an empty pepper the
// encoding is interchangeable with Django's PBKDF2PasswordHasher.
type PBKDF2Hasher struct {
	pepper     string
	iterations int
}

// NewPBKDF2Hasher creates a PBKDF2Hasher. Zero iterations means
// DefaultPBKDF2Iterations.
func NewPBKDF2Hasher(pepper string, iterations int) (*PBKDF2Hasher, error) {
	if iterations == 0 {
		iterations = DefaultPBKDF2Iterations
	}
	if iterations < 0 {
		return nil, fmt.Errorf("pbkdf2 iterations must be positive, got %d", iterations)
	}
	return &PBKDF2Hasher{pepper: pepper, iterations: iterations}, nil
}

func (h *PBKDF2Hasher) Hash(raw string) (string, error) {
	return h.Encode(raw, randomString(pbkdf2SaltLen))
}

// Encode hashes raw with the given salt. The result depends only on raw,
// salt, the pepper and the iteration count.
func (h *PBKDF2Hasher) Encode(raw, salt string) (string, error) {
	if salt == "" || strings.Contains(salt, "$") {
		return "", fmt.Errorf("invalid pbkdf2 salt %q", salt)
	}
	key := h.derive(raw, salt, h.iterations)
	return fmt.Sprintf("%s$%d$%s$%s", AlgorithmPBKDF2, h.iterations, salt, key), nil
}

func (h *PBKDF2Hasher) Verify(raw, encoded string) bool {
	iterations, salt, key, ok := splitPBKDF2(encoded)
	if !ok {
		return false
	}
	candidate := h.derive(raw, salt, iterations)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1
}

func (h *PBKDF2Hasher) IsHashed(encoded string) bool {
	_, _, _, ok := splitPBKDF2(encoded)
	return ok
}

func (h *PBKDF2Hasher) derive(raw, salt string, iterations int) string {
	input := []byte(raw)
	if h.pepper != "" {
		input = pepper(h.pepper, raw)
	}
	key := pbkdf2.Key(input, []byte(salt), iterations, pbkdf2KeyLen, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

func splitPBKDF2(encoded string) (iterations int, salt, key string, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != AlgorithmPBKDF2 {
		return 0, "", "", false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 || parts[2] == "" {
		return 0, "", "", false
	}
	if _, err := base64.StdEncoding.DecodeString(parts[3]); err != nil {
		return 0, "", "", false
	}
	return iterations, parts[2], parts[3], true
}
