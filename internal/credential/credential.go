// Package credential generates partner API credentials and the one-way
// digests that are persisted in their place.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

const (
	EnvLive = "live"
	EnvTest = "test"

	secretBytes = 32
	keyIDBytes  = 16
	codeSuffix  = 3
	codeBaseLen = 6

	defaultCodeBase = "PARTNR"
)

// Generator issues key/secret pairs with environment-specific prefixes so a
// leaked value can be recognised by pattern.
type Generator struct {
	env string
}

func NewGenerator(env string) *Generator {
	if env != EnvTest {
		env = EnvLive
	}
	return &Generator{env: env}
}

// KeyPrefix is the prefix of public API keys issued by g.
func (g *Generator) KeyPrefix() string {
	return "ovu_" + g.env + "_"
}

// SecretPrefix is the prefix of API secrets issued by g.
func (g *Generator) SecretPrefix() string {
	return "sk_" + g.env + "_"
}

// Credentials returns a new (public key, secret) pair.
func (g *Generator) Credentials() (string, string, error) {
	key, err := randomToken(secretBytes)
	if err != nil {
		return "", "", err
	}
	secret, err := randomToken(secretBytes)
	if err != nil {
		return "", "", err
	}
	return g.KeyPrefix() + key, g.SecretPrefix() + secret, nil
}

// Secret returns a new API secret without a public key. API key records
// authenticate by the secret alone.
func (g *Generator) Secret() (string, error) {
	secret, err := randomToken(secretBytes)
	if err != nil {
		return "", err
	}
	return g.SecretPrefix() + secret, nil
}

// KeyID returns a public identifier for an API key record.
func KeyID() (string, error) {
	b := make([]byte, keyIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return "key_" + hex.EncodeToString(b), nil
}

// Token returns a URL-safe single-use token for email verification or
// password reset.
func Token() (string, error) {
	return randomToken(secretBytes)
}

// Hash returns the hex-encoded SHA-256 digest of secret.
func Hash(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// Verify reports whether secret hashes to digest, in constant time.
func Verify(secret, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(secret)), []byte(digest)) == 1
}

// PartnerCode derives a partner code from a company name: up to six
// alphanumeric characters, uppercased, a dash, and a random hex suffix.
func PartnerCode(companyName string) (string, error) {
	var base strings.Builder
	for _, r := range companyName {
		if base.Len() == codeBaseLen {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			base.WriteRune(unicode.ToUpper(r))
		}
	}
	prefix := base.String()
	if prefix == "" {
		prefix = defaultCodeBase
	}

	b := make([]byte, codeSuffix)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(b)), nil
}

// Preview returns the first n characters of value followed by "...", for
// display and logs.
func Preview(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n] + "..."
}

// Tail masks value down to its last n characters, for showing which secret
// is configured without revealing it. Values of n characters or fewer are
// masked entirely.
func Tail(value string, n int) string {
	if len(value) <= n {
		return "..."
	}
	return "..." + value[len(value)-n:]
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
