// Package credentials hashes and verifies account passwords.
//
// Encoded passwords carry their algorithm as a prefix ("bcrypt$...",
// "pbkdf2_sha256$..."), so a hasher configured for one algorithm still
// recognizes and verifies passwords stored by the other.
package credentials

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

const (
	AlgorithmBcrypt = "bcrypt"
	AlgorithmPBKDF2 = "pbkdf2_sha256"

	// unusablePrefix marks an account that has no password it can log in with.
	unusablePrefix = "!"
	unusableLen    = 40

	saltChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Hasher hashes raw passwords and verifies them against encoded hashes.
type Hasher interface {
	// Hash returns the encoded form of raw, salted per call.
	Hash(raw string) (string, error)
	// Verify reports whether raw matches encoded.
	Verify(raw, encoded string) bool
	// IsHashed reports whether encoded is a hash this hasher understands.
	IsHashed(encoded string) bool
}

// Holder is anything carrying a password field that must be stored hashed.
type Holder interface {
	EncodedPassword() string
	SetEncodedPassword(encoded string)
}

// Options selects and tunes the preferred algorithm.
type Options struct {
	Algorithm        string
	Pepper           string
	BcryptCost       int
	PBKDF2Iterations int
}

// NewHasher returns a Hasher that hashes with opts.Algorithm and verifies
// every supported algorithm with the same pepper.
func NewHasher(opts Options) (Hasher, error) {
	bh, err := NewBcryptHasher(opts.Pepper, opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	ph, err := NewPBKDF2Hasher(opts.Pepper, opts.PBKDF2Iterations)
	if err != nil {
		return nil, err
	}

	switch opts.Algorithm {
	case "", AlgorithmBcrypt:
		return &chain{preferred: bh, others: []Hasher{ph}}, nil
	case AlgorithmPBKDF2:
		return &chain{preferred: ph, others: []Hasher{bh}}, nil
	default:
		return nil, fmt.Errorf("unsupported password hasher %q", opts.Algorithm)
	}
}

type chain struct {
	preferred Hasher
	others    []Hasher
}

func (c *chain) Hash(raw string) (string, error) {
	return c.preferred.Hash(raw)
}

func (c *chain) Verify(raw, encoded string) bool {
	if h := c.find(encoded); h != nil {
		return h.Verify(raw, encoded)
	}
	return false
}

func (c *chain) IsHashed(encoded string) bool {
	return c.find(encoded) != nil
}

func (c *chain) find(encoded string) Hasher {
	if c.preferred.IsHashed(encoded) {
		return c.preferred
	}
	for _, h := range c.others {
		if h.IsHashed(encoded) {
			return h
		}
	}
	return nil
}

// Unusable returns a marker that never verifies against any password.
func Unusable() string {
	return unusablePrefix + randomString(unusableLen)
}

// isUnusableMarker reports whether encoded has exactly the shape Unusable
// produces. Other "!"-prefixed values are treated as raw input.
func isUnusableMarker(encoded string) bool {
	marker, ok := strings.CutPrefix(encoded, unusablePrefix)
	if !ok || len(marker) != unusableLen {
		return false
	}
	for i := 0; i < len(marker); i++ {
		if !strings.ContainsRune(saltChars, rune(marker[i])) {
			return false
		}
	}
	return true
}

// IsUsable reports whether encoded can ever match a password.
func IsUsable(encoded string) bool {
	return encoded != "" && !strings.HasPrefix(encoded, unusablePrefix)
}

// Seal makes sure the holder's password is stored encoded. Recognized hashes
// and markers made by Unusable are left alone; an empty password becomes
// unusable; anything else is treated as raw input and hashed.
func Seal(h Hasher, holder Holder) error {
	current := holder.EncodedPassword()
	switch {
	case current == "":
		holder.SetEncodedPassword(Unusable())
		return nil
	case isUnusableMarker(current), h.IsHashed(current):
		return nil
	}

	encoded, err := h.Hash(current)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	holder.SetEncodedPassword(encoded)
	return nil
}

// pepper mixes the configured secret into raw before it reaches the
// algorithm. The output is 43 bytes, inside bcrypt's 72 byte input limit.
func pepper(secret, raw string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	return []byte(base64.RawStdEncoding.EncodeToString(mac.Sum(nil)))
}

func randomString(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	max := big.NewInt(int64(len(saltChars)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("credentials: reading random bytes: %v", err))
		}
		sb.WriteByte(saltChars[idx.Int64()])
	}
	return sb.String()
}
