package oauth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when required settings are missing. It is
// raised before any network call.
var ErrNotConfigured = errors.New("oauth: not configured")

// Config holds the client registration used to request tokens.
type Config struct {
	// TokenURL is the token endpoint. When empty, DiscoveryURL is used to
	// look it up.
	TokenURL string
	// DiscoveryURL is an issuer URL serving OpenID Provider metadata.
	DiscoveryURL string
	ClientID     string
	Scope        string
	// Resource is an optional RFC 8707 resource indicator.
	Resource string
	// Issuer is the assertion iss claim. Defaults to ClientID.
	Issuer string
	// PrivateKey is a base64 PKCS#8 DER RSA key. A PEM block is accepted too.
	PrivateKey string
}

// Validate reports which required settings are missing.
func (c Config) Validate() error {
	var missing []string
	if c.TokenURL == "" && c.DiscoveryURL == "" {
		missing = append(missing, "token url")
	}
	if c.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.PrivateKey == "" {
		missing = append(missing, "private key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) issuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return c.ClientID
}

// ParsePrivateKey decodes an RSA private key from base64 PKCS#8 DER or PEM.
func ParsePrivateKey(s string) (*rsa.PrivateKey, error) {
	s = strings.TrimSpace(s)

	var der []byte
	if strings.HasPrefix(s, "-----BEGIN") {
		block, _ := pem.Decode([]byte(s))
		if block == nil {
			return nil, errors.New("oauth: invalid PEM private key")
		}
		der = block.Bytes
	} else {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("oauth: private key is not valid base64: %w", err)
		}
		der = b
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("oauth: parse PKCS#8 private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("oauth: private key is %T, want RSA", key)
	}
	return rsaKey, nil
}
