// Package codes holds the cryptographic primitives of the verification
// engine: code generation, one-way hashing, and expiry arithmetic.
package codes

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	dErrors "verity/pkg/domain-errors"
)

// Length is the number of digits in a verification code.
const Length = 6

var codeSpace = big.NewInt(1_000_000)

// Generate draws a 6-digit code from a cryptographically secure uniform
// generator over [0, 1,000,000), left-padded with zeros. Collisions are not
// checked; their probability is accepted as negligible.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate verification code")
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Hash creates a bcrypt hash of the code. Each call salts independently, so
// hashing the same code twice yields different hashes; Verify relies on the
// salt embedded in the hash.
func Hash(code string) (string, error) {
	if code == "" {
		return "", dErrors.New(dErrors.CodeValidation, "code cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash verification code")
	}
	return string(hashed), nil
}

// Verify checks a plaintext code against a stored hash. bcrypt's comparison
// is constant-time with respect to the code's content.
func Verify(code, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		// Malformed hash. Treat as mismatch; the caller cannot recover.
		return false
	}
	return false
}

// IsExpired reports whether expiry lies strictly in the past. A code checked
// at exactly its expiry instant is still valid.
func IsExpired(now, expiry time.Time) bool {
	return now.After(expiry)
}
