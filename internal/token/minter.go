package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/sing3demons/weather/kp/internal/apperr"
	"github.com/sing3demons/weather/kp/internal/config"
	"github.com/sing3demons/weather/kp/internal/credential"
)

const (
	minTokenTTL = 300
	maxTokenTTL = 3600
)

// Token is a minted upstream bearer token. Fingerprint identifies the key
// material that signed it, for audit events.
type Token struct {
	Value       string
	ExpiresAt   time.Time
	Fingerprint string
}

// Minter builds the signed developer token the upstream weather API expects:
// an ES256 JWT whose header carries kid and the combined team and service
// identity, signed over the compact serialization with the loaded EC key.
type Minter struct {
	source credential.Source
	loader *KeyLoader
	now    func() time.Time
}

func NewMinter(source credential.Source, loader *KeyLoader) *Minter {
	return &Minter{source: source, loader: loader, now: time.Now}
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	ID  string `json:"id"`
	Typ string `json:"typ"`
}

type tokenClaims struct {
	Iss string `json:"iss"`
	Sub string `json:"sub"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

func (m *Minter) Mint(ctx context.Context) (*Token, error) {
	cred, err := m.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	key, err := m.loader.Load(ctx, cred.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	exp := now.Add(time.Duration(clampTTL(cred.TokenTTL)) * time.Second)

	head := tokenHeader{
		Alg: "ES256",
		Kid: cred.KeyID,
		ID:  cred.TeamID + "." + cred.ServiceID,
		Typ: "JWT",
	}
	body := tokenClaims{
		Iss: cred.TeamID,
		Sub: cred.ServiceID,
		Iat: now.Unix(),
		Exp: exp.Unix(),
	}

	signingInput, err := encodeSigningInput(head, body)
	if err != nil {
		return nil, apperr.NewFormatError("encode token", err)
	}
	digest := sha256.Sum256([]byte(signingInput))
	der, err := key.Sign(digest[:])
	if err != nil {
		return nil, apperr.NewFormatError("sign token", err)
	}
	jose, err := derToJose(der, es256ComponentSize)
	if err != nil {
		return nil, err
	}

	return &Token{
		Value:       signingInput + "." + base64.RawURLEncoding.EncodeToString(jose),
		ExpiresAt:   exp,
		Fingerprint: cred.Fingerprint(),
	}, nil
}

func encodeSigningInput(head tokenHeader, body tokenClaims) (string, error) {
	hb, err := json.Marshal(head)
	if err != nil {
		return "", err
	}
	cb, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(hb) + "." + base64.RawURLEncoding.EncodeToString(cb), nil
}

// clampTTL keeps the token lifetime inside the window the upstream accepts.
// Zero means not configured and falls back to the default.
func clampTTL(ttl int) int {
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	if ttl < minTokenTTL {
		return minTokenTTL
	}
	if ttl > maxTokenTTL {
		return maxTokenTTL
	}
	return ttl
}
