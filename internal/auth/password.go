package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/tinoosan/fintrack/internal/errs"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 8

// HashPassword validates and hashes a plaintext password.
func HashPassword(plain string) (string, error) {
	if len(plain) < MinPasswordLen {
		return "", errs.Invalidf("password must be at least %d characters", MinPasswordLen)
	}
	// bcrypt ignores input past 72 bytes.
	if len(plain) > 72 {
		return "", errs.Invalidf("password must be at most 72 bytes")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compares a bcrypt hash with a plaintext candidate.
func CheckPassword(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return errs.ErrUnauthorized
	}
	return err
}
