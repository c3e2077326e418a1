package authpw

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CodeStatus classifies a supplied verification or reset code against the
// stored one.
type CodeStatus int

const (
	CodeOK CodeStatus = iota
	CodeExpired
	CodeMismatch
)

// GenerateCode creates a random six digit numeric code, zero padded.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ClassifyCode compares a supplied code against the stored code and expiry.
// A missing stored code or a wrong supplied code is a mismatch; a matching
// code past its expiry is expired. Expiry is only reported for the right
// code so a guesser learns nothing about whether a code is pending.
func ClassifyCode(stored *string, expires *time.Time, supplied string, now time.Time) CodeStatus {
	if stored == nil || expires == nil || supplied == "" {
		return CodeMismatch
	}
	if *stored != supplied {
		return CodeMismatch
	}
	if now.After(*expires) {
		return CodeExpired
	}
	return CodeOK
}
