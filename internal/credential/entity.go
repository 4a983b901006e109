package credential

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/sing3demons/weather/kp/internal/apperr"
)

// Collection is the MongoDB collection holding signing credentials.
const Collection = "weather_credentials"

// Credential binds the upstream account identity to its signing key.
// PrivateKeyPEM is excluded from JSON so the key material cannot reach a log
// line or response body through serialization.
type Credential struct {
	TeamID        string    `bson:"teamId" json:"teamId"`
	ServiceID     string    `bson:"serviceId" json:"serviceId"`
	KeyID         string    `bson:"keyId" json:"keyId"`
	PrivateKeyPEM string    `bson:"privateKeyPem" json:"-"`
	TokenTTL      int       `bson:"tokenTtl,omitempty" json:"tokenTtl,omitempty"`
	Active        bool      `bson:"active" json:"active"`
	CreatedAt     time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt     time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Source loads the signing credential from wherever it lives. Implementations
// are called on every mint attempt that misses the token cache, so they may
// be hit repeatedly after a failure.
type Source interface {
	Load(ctx context.Context) (*Credential, error)
}

// Validate checks that the identity triple needed to mint a token is present.
func (c *Credential) Validate() error {
	if c == nil {
		return apperr.NewConfigError("credential not loaded", nil)
	}
	if c.TeamID == "" {
		return apperr.NewConfigError("teamId is not configured", nil)
	}
	if c.ServiceID == "" {
		return apperr.NewConfigError("serviceId is not configured", nil)
	}
	if c.KeyID == "" {
		return apperr.NewConfigError("keyId is not configured", nil)
	}
	return nil
}

// Fingerprint returns a short digest identifying the key material without
// exposing it, for audit events and log correlation.
func (c *Credential) Fingerprint() string {
	if c.PrivateKeyPEM == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(c.PrivateKeyPEM))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:8]
}
