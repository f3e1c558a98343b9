package oauth

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AssertionLifetime bounds the validity of a client assertion.
const AssertionLifetime = 120 * time.Second

// ClientAssertionType is the RFC 7523 client_assertion_type value.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// signAssertion builds and signs an RS256 client assertion for audience.
// The header is {"alg":"RS256","typ":"JWT"}.
func signAssertion(key *rsa.PrivateKey, issuer, clientID, audience string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": clientID,
		"aud": audience,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(AssertionLifetime).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}
