package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// GenerateTOTPSecret creates a new TOTP secret and its otpauth:// URL.
func GenerateTOTPSecret(accountName string) (secret string, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tokenIssuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTP checks a passcode against secret at now.
func ValidateTOTP(secret, passcode string, now time.Time) bool {
	secret = strings.TrimSpace(secret)
	passcode = strings.TrimSpace(passcode)
	if secret == "" || passcode == "" {
		return false
	}
	ok, err := totp.ValidateCustom(passcode, secret, now.UTC(), totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	return err == nil && ok
}
