package credentials

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher stores passwords as "bcrypt$<bcrypt hash>". bcrypt supplies
// the per-password salt; the pepper is applied before hashing.
type BcryptHasher struct {
	pepper string
	cost   int
}

// NewBcryptHasher creates a BcryptHasher. A zero cost means bcrypt.DefaultCost.
func NewBcryptHasher(pepper string, cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{pepper: pepper, cost: cost}, nil
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(pepper(h.pepper, raw), h.cost)
	if err != nil {
		return "", err
	}
	return AlgorithmBcrypt + "$" + string(hashed), nil
}

func (h *BcryptHasher) Verify(raw, encoded string) bool {
	hashed, ok := strings.CutPrefix(encoded, AlgorithmBcrypt+"$")
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), pepper(h.pepper, raw)) == nil
}

func (h *BcryptHasher) IsHashed(encoded string) bool {
	hashed, ok := strings.CutPrefix(encoded, AlgorithmBcrypt+"$")
	if !ok {
		return false
	}
	_, err := bcrypt.Cost([]byte(hashed))
	return err == nil
}
