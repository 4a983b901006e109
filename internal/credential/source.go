package credential

import (
	"context"

	"github.com/sing3demons/weather/kp/internal/config"
)

// EnvSource serves the credential fixed at process start. Missing fields are
// not an error here; the minter reports them when a token is actually needed.
type EnvSource struct {
	cred Credential
}

func NewEnvSource(cfg config.CredentialConfig) *EnvSource {
	return &EnvSource{cred: Credential{
		TeamID:        cfg.TeamID,
		ServiceID:     cfg.ServiceID,
		KeyID:         cfg.KeyID,
		PrivateKeyPEM: cfg.PrivateKeyPEM,
		TokenTTL:      cfg.TokenTTL,
		Active:        true,
	}}
}

func (s *EnvSource) Load(_ context.Context) (*Credential, error) {
	cred := s.cred
	return &cred, nil
}
