// Package totp generates and verifies the time-based one-time codes used by
// email verification and two-factor login.
package totp

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultCharSet is recorded alongside every verification so the stored
// parameters fully describe the code format. Codes are always decimal digits.
const DefaultCharSet = "0123456789"

const secretBytes = 20

// Params configures code generation.
type Params struct {
	Algorithm string
	Period    time.Duration
	Digits    int
}

// Key holds everything needed to verify a code later.
type Key struct {
	Secret    string
	Algorithm string
	Digits    int
	Period    time.Duration
	CharSet   string
}

// Engine produces and checks TOTP codes. The zero value is ready to use.
type Engine struct {
	// now is swapped in tests to pin the clock.
	now func() time.Time
}

// New returns an Engine using the wall clock.
func New() *Engine {
	return &Engine{now: time.Now}
}

// Generate creates a fresh random secret and the code currently valid for it.
func (e *Engine) Generate(params Params) (string, Key, error) {
	if params.Period <= 0 {
		return "", Key{}, fmt.Errorf("totp: period must be positive")
	}
	digits := params.Digits
	if digits == 0 {
		digits = 6
	}

	algorithm, err := parseAlgorithm(params.Algorithm)
	if err != nil {
		return "", Key{}, err
	}

	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", Key{}, fmt.Errorf("totp: generate secret: %w", err)
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	key := Key{
		Secret:    secret,
		Algorithm: algorithm.String(),
		Digits:    digits,
		Period:    params.Period,
		CharSet:   DefaultCharSet,
	}

	code, err := e.Code(key)
	if err != nil {
		return "", Key{}, err
	}

	return code, key, nil
}

// Code returns the code currently valid for key, the same one an
// authenticator app holding the secret would display.
func (e *Engine) Code(key Key) (string, error) {
	algorithm, err := parseAlgorithm(key.Algorithm)
	if err != nil {
		return "", err
	}
	if key.Period <= 0 {
		return "", fmt.Errorf("totp: period must be positive")
	}

	code, err := totp.GenerateCodeCustom(key.Secret, e.clock(), totp.ValidateOpts{
		Period:    uint(key.Period.Seconds()),
		Digits:    otp.Digits(key.Digits),
		Algorithm: algorithm,
	})
	if err != nil {
		return "", fmt.Errorf("totp: generate code: %w", err)
	}
	return code, nil
}

// Verify reports whether code is valid for key. A skew of one period step in
// either direction is accepted so codes do not falsely expire right at a
// window boundary. Malformed or mismatched codes return false, never an error.
func (e *Engine) Verify(code string, key Key) bool {
	algorithm, err := parseAlgorithm(key.Algorithm)
	if err != nil {
		return false
	}
	if key.Period <= 0 {
		return false
	}

	valid, err := totp.ValidateCustom(code, key.Secret, e.clock(), totp.ValidateOpts{
		Period:    uint(key.Period.Seconds()),
		Skew:      1,
		Digits:    otp.Digits(key.Digits),
		Algorithm: algorithm,
	})
	if err != nil {
		return false
	}
	return valid
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func parseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "SHA1":
		return otp.AlgorithmSHA1, nil
	case "", "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("totp: unsupported algorithm %q", name)
	}
}
