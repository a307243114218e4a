// Package internal holds the random material generators shared by the
// verification-code and session layers.
package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
)

const linkTokenBytes = 32

// NewLinkToken returns a high-entropy random hex string for link-based
// verification (256 bits).
func NewLinkToken() (string, error) {
	raw := make([]byte, linkTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// NewOTP returns a numeric code of exactly the given width, uniformly drawn
// from [10^(digits-1), 10^digits - 1]. Leading zeros never occur, so every
// code a user types back has the full width.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	low := int64(1)
	for i := 1; i < digits; i++ {
		low *= 10
	}
	span := big.NewInt(low * 9) // size of [low, 10*low-1]

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(low+n.Int64(), 10), nil
}
