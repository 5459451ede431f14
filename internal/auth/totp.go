package auth

import (
	cryptoRand "crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
)

const (
	defaultIssuer     = "Atrium"
	defaultSecretSize = 20 // 160 bits, base32-encodable
	defaultQRCodeSize = 256

	totpPeriod = 30
	totpDigits = otp.DigitsSix
	// Accept the current step and its immediate neighbors to absorb clock skew.
	totpSkew = 1
)

// TOTPOption customises the engine.
type TOTPOption func(*TOTPEngine)

// WithIssuer overrides the issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) TOTPOption {
	return func(e *TOTPEngine) {
		if strings.TrimSpace(issuer) != "" {
			e.issuer = issuer
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) TOTPOption {
	return func(e *TOTPEngine) {
		if size > 0 {
			e.qrCodeSize = size
		}
	}
}

// TOTPEngine generates and validates time-based one-time codes. It is pure:
// secrets live in the credential store, and the caller supplies the clock
// reading for verification.
type TOTPEngine struct {
	issuer     string
	secretSize int
	qrCodeSize int
}

// NewTOTPEngine constructs an engine with the platform defaults.
func NewTOTPEngine(opts ...TOTPOption) *TOTPEngine {
	engine := &TOTPEngine{
		issuer:     defaultIssuer,
		secretSize: defaultSecretSize,
		qrCodeSize: defaultQRCodeSize,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// GenerateSecret returns a fresh cryptographically random secret, base32
// encoded for authenticator provisioning.
func (e *TOTPEngine) GenerateSecret() (string, error) {
	buf := make([]byte, e.secretSize)
	if _, err := cryptoRand.Read(buf); err != nil {
		return "", fmt.Errorf("totp: generate secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// ProvisioningKey builds the otpauth:// key for the secret and account label.
// Deterministic: the same inputs always produce the same URI.
func (e *TOTPEngine) ProvisioningKey(secret, accountLabel string) (*otp.Key, error) {
	accountLabel = strings.TrimSpace(accountLabel)
	if secret == "" || accountLabel == "" {
		return nil, errors.New("totp: secret and account label are required")
	}

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return nil, fmt.Errorf("totp: decode secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountLabel,
		Secret:      raw,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: build provisioning key: %w", err)
	}
	return key, nil
}

// QRCode renders the provisioning key as a PNG for authenticator enrollment.
func (e *TOTPEngine) QRCode(key *otp.Key) ([]byte, error) {
	if key == nil {
		return nil, errors.New("totp: key is required")
	}
	return qrcode.Encode(key.String(), qrcode.Medium, e.qrCodeSize)
}

// VerifyCode checks a submitted 6-digit code against the secret at the given
// instant, tolerating one period of clock skew in either direction. Malformed
// codes (wrong length, non-numeric) simply fail verification.
func (e *TOTPEngine) VerifyCode(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}
