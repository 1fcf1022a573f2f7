package credentials_test

import (
	"strings"
	"testing"

	"authapp/internal/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPepper = "test-pepper-0123456789"

type holder struct {
	password string
}

func (h *holder) EncodedPassword() string         { return h.password }
func (h *holder) SetEncodedPassword(value string) { h.password = value }

func newTestHasher(t *testing.T, algorithm string) credentials.Hasher {
	t.Helper()
	h, err := credentials.NewHasher(credentials.Options{
		Algorithm:        algorithm,
		Pepper:           testPepper,
		BcryptCost:       bcrypt.MinCost,
		PBKDF2Iterations: 1000,
	})
	require.NoError(t, err)
	return h
}

func TestHasher_HashAndVerify(t *testing.T) {
	for _, algorithm := range []string{credentials.AlgorithmBcrypt, credentials.AlgorithmPBKDF2} {
		t.Run(algorithm, func(t *testing.T) {
			h := newTestHasher(t, algorithm)

			encoded, err := h.Hash("pw1")
			require.NoError(t, err)
			assert.NotEqual(t, "pw1", encoded)
			assert.True(t, strings.HasPrefix(encoded, algorithm+"$"))
			assert.True(t, h.IsHashed(encoded))
			assert.True(t, h.Verify("pw1", encoded))
			assert.False(t, h.Verify("pw2", encoded))
			assert.False(t, h.Verify("", encoded))
		})
	}
}

func TestHasher_SaltsEachHash(t *testing.T) {
	h := newTestHasher(t, credentials.AlgorithmBcrypt)

	first, err := h.Hash("same-password")
	require.NoError(t, err)
	second, err := h.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("same-password", first))
	assert.True(t, h.Verify("same-password", second))
}

func TestHasher_VerifiesOtherAlgorithms(t *testing.T) {
	bcryptPreferred := newTestHasher(t, credentials.AlgorithmBcrypt)
	pbkdf2Preferred := newTestHasher(t, credentials.AlgorithmPBKDF2)

	encoded, err := pbkdf2Preferred.Hash("legacy")
	require.NoError(t, err)

	assert.True(t, bcryptPreferred.IsHashed(encoded))
	assert.True(t, bcryptPreferred.Verify("legacy", encoded))
}

func TestHasher_PepperMustMatch(t *testing.T) {
	h := newTestHasher(t, credentials.AlgorithmBcrypt)
	other, err := credentials.NewHasher(credentials.Options{
		Pepper:     "another-pepper-0123456789",
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	encoded, err := h.Hash("pw1")
	require.NoError(t, err)

	assert.True(t, other.IsHashed(encoded))
	assert.False(t, other.Verify("pw1", encoded))
}

func TestHasher_IsHashedRejectsRawInput(t *testing.T) {
	h := newTestHasher(t, credentials.AlgorithmBcrypt)

	for _, value := range []string{
		"",
		"pw1",
		"bcrypt$not-a-hash",
		"pbkdf2_sha256$abc$salt$key",
		"pbkdf2_sha256$1000$$key",
		"md5$salt$hash",
	} {
		assert.False(t, h.IsHashed(value), "value %q", value)
	}
}

func TestNewHasher_RejectsBadOptions(t *testing.T) {
	_, err := credentials.NewHasher(credentials.Options{Algorithm: "md5", Pepper: testPepper})
	assert.Error(t, err)

	_, err = credentials.NewHasher(credentials.Options{Pepper: testPepper, BcryptCost: 99})
	assert.Error(t, err)

	_, err = credentials.NewHasher(credentials.Options{Pepper: testPepper, PBKDF2Iterations: -1})
	assert.Error(t, err)
}

func TestPBKDF2Hasher_EncodeIsDeterministic(t *testing.T) {
	h, err := credentials.NewPBKDF2Hasher(testPepper, 1000)
	require.NoError(t, err)

	first, err := h.Encode("pw1", "fixedsalt")
	require.NoError(t, err)
	second, err := h.Encode("pw1", "fixedsalt")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, "pw1", first)
	assert.True(t, strings.HasPrefix(first, "pbkdf2_sha256$1000$fixedsalt$"))

	other, err := h.Encode("pw1", "othersalt")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	_, err = h.Encode("pw1", "bad$salt")
	assert.Error(t, err)
}

func TestPBKDF2Hasher_DjangoCompatibleWithoutPepper(t *testing.T) {
	h, err := credentials.NewPBKDF2Hasher("", 1000)
	require.NoError(t, err)

	encoded, err := h.Encode("password", "seasalt")
	require.NoError(t, err)
	assert.True(t, h.Verify("password", encoded))
	// key is 32 bytes, base64 encoded with padding
	parts := strings.Split(encoded, "$")
	require.Len(t, parts, 4)
	assert.Len(t, parts[3], 44)
}

func TestUnusable(t *testing.T) {
	h := newTestHasher(t, credentials.AlgorithmBcrypt)
	marker := credentials.Unusable()

	assert.True(t, strings.HasPrefix(marker, "!"))
	assert.False(t, credentials.IsUsable(marker))
	assert.False(t, credentials.IsUsable(""))
	assert.False(t, h.Verify("", marker))
	assert.NotEqual(t, marker, credentials.Unusable())
}

func TestSeal(t *testing.T) {
	h := newTestHasher(t, credentials.AlgorithmBcrypt)

	t.Run("hashes raw value", func(t *testing.T) {
		hd := &holder{password: "raw-secret"}
		require.NoError(t, credentials.Seal(h, hd))
		assert.NotEqual(t, "raw-secret", hd.password)
		assert.True(t, h.Verify("raw-secret", hd.password))
	})

	t.Run("leaves hashed value alone", func(t *testing.T) {
		encoded, err := h.Hash("pw1")
		require.NoError(t, err)
		hd := &holder{password: encoded}

		require.NoError(t, credentials.Seal(h, hd))
		require.NoError(t, credentials.Seal(h, hd))
		assert.Equal(t, encoded, hd.password)
		assert.True(t, h.Verify("pw1", hd.password))
	})

	t.Run("empty becomes unusable", func(t *testing.T) {
		hd := &holder{}
		require.NoError(t, credentials.Seal(h, hd))
		assert.False(t, credentials.IsUsable(hd.password))

		marker := hd.password
		require.NoError(t, credentials.Seal(h, hd))
		assert.Equal(t, marker, hd.password)
	})

	t.Run("hashes raw values that look unusable", func(t *testing.T) {
		marker := credentials.Unusable()
		for _, raw := range []string{"!hunter2", "!", "!!", marker + "x", marker[:len(marker)-1], "!" + strings.Repeat("$", 40)} {
			hd := &holder{password: raw}
			require.NoError(t, credentials.Seal(h, hd))
			assert.NotEqual(t, raw, hd.password, raw)
			assert.True(t, h.IsHashed(hd.password), raw)
			assert.True(t, h.Verify(raw, hd.password), raw)
		}
	})
}
