package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
)

const issuer = "keepsake"

// CredentialClaims are the JWT claims carried by a keepsake credential.
// Subject is the principal id. ActorID is set on impersonation credentials
// and records the super-principal the credential was issued to.
type CredentialClaims struct {
	jwt.RegisteredClaims
	OrgID   string `json:"org"`
	ActorID string `json:"act,omitempty"`
}

// IsImpersonation reports whether the credential was issued through the
// impersonation path.
func (c *CredentialClaims) IsImpersonation() bool {
	return c.ActorID != ""
}

// IssueCredential creates a signed ES256 credential for the given principal.
// signingKeyPEM is the PEM-encoded ECDSA private key. actorID is empty for
// ordinary credentials and the super-principal's id for impersonation grants.
func IssueCredential(signingKeyPEM string, principalID, orgID, actorID string, ttl time.Duration) (string, error) {
	signingKey, err := jwt.ParseECPrivateKeyFromPEM([]byte(signingKeyPEM))
	if err != nil {
		return "", fmt.Errorf("failed to parse signing key: %w", err)
	}

	now := time.Now()
	claims := &CredentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		OrgID:   orgID,
		ActorID: actorID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(signingKey)
}

// VerifyCredential parses and validates a credential against the PEM-encoded
// ECDSA public key, returning its claims.
func VerifyCredential(publicKeyPEM, tokenStr string) (*CredentialClaims, error) {
	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse verification key: %w", err)
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &CredentialClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, errors.New("invalid signing method")
		}
		return publicKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid credential: %w", err)
	}

	claims, ok := parsed.Claims.(*CredentialClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid credential claims")
	}

	return claims, nil
}

// Fingerprint returns a short stable identifier for a credential, suitable
// for audit details. Base58-encoded SHA256 of the signed token.
func Fingerprint(tokenStr string) string {
	sum := sha256.Sum256([]byte(tokenStr))
	return base58.Encode(sum[:])
}
