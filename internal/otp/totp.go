// Package otp generates the time-based one-time codes used to complete the
// second-factor step of the login flow.
package otp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// Code returns the current 6-digit code for the given base32 shared secret.
func Code(secret string) (string, error) {
	return CodeAt(secret, time.Now())
}

// CodeAt returns the code valid at the given time. Whitespace is stripped and
// the secret upper-cased so secrets pasted from authenticator setup screens
// work as-is.
func CodeAt(secret string, t time.Time) (string, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	code, err := totp.GenerateCode(normalized, t)
	if err != nil {
		return "", fmt.Errorf("generating one-time code: %w", err)
	}
	return code, nil
}
