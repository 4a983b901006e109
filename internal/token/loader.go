package token

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"sync"

	"github.com/sing3demons/weather/kp/internal/apperr"
)

// SigningKey wraps the parsed EC key. The key stays unexported so it cannot
// leak through serialization or formatted output.
type SigningKey struct {
	key *ecdsa.PrivateKey
}

// Sign produces an ASN.1 DER encoded ECDSA signature over digest.
func (k *SigningKey) Sign(digest []byte) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, k.key, digest)
}

// Public returns the verification half of the key.
func (k *SigningKey) Public() *ecdsa.PublicKey {
	return &k.key.PublicKey
}

func (k *SigningKey) String() string {
	return "SigningKey(ES256)"
}

type keyState int

const (
	stateNotStarted keyState = iota
	stateInFlight
	stateReady
	stateFailed
)

// KeyLoader imports PEM key material once and shares the parsed key across
// callers. Callers arriving while an import is running wait for its outcome
// instead of starting their own. A failed import is not sticky; the next call
// after the failure retries. Changed key material also triggers a fresh
// import, which is how rotation takes effect.
type KeyLoader struct {
	mu    sync.Mutex
	state keyState
	done  chan struct{}
	key   *SigningKey
	pem   string
	err   error
}

func NewKeyLoader() *KeyLoader {
	return &KeyLoader{}
}

func (l *KeyLoader) Load(ctx context.Context, pemText string) (*SigningKey, error) {
	if strings.TrimSpace(pemText) == "" {
		return nil, apperr.NewConfigError("signing key PEM is not configured", nil)
	}
	for {
		l.mu.Lock()
		if l.state == stateReady && l.pem == pemText {
			key := l.key
			l.mu.Unlock()
			return key, nil
		}
		if l.state == stateInFlight {
			done := l.done
			l.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			l.mu.Lock()
			if l.state == stateFailed && l.err != nil {
				err := l.err
				l.mu.Unlock()
				return nil, err
			}
			l.mu.Unlock()
			continue
		}

		l.state = stateInFlight
		done := make(chan struct{})
		l.done = done
		l.mu.Unlock()

		key, err := importSigningKey(pemText)

		l.mu.Lock()
		if err != nil {
			l.state, l.key, l.pem, l.err = stateFailed, nil, "", err
		} else {
			l.state, l.key, l.pem, l.err = stateReady, key, pemText, nil
		}
		close(done)
		l.mu.Unlock()
		return key, err
	}
}

// Reset discards the memoized key so the next Load imports fresh material.
// An import already in flight is left to finish.
func (l *KeyLoader) Reset() {
	l.mu.Lock()
	if l.state != stateInFlight {
		l.state = stateNotStarted
		l.key = nil
		l.pem = ""
		l.err = nil
	}
	l.mu.Unlock()
}

func importSigningKey(pemText string) (*SigningKey, error) {
	der, err := decodeKeyMaterial(pemText)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, apperr.NewFormatError("signing key is not PKCS#8", err)
	}
	ec, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, apperr.NewFormatError("signing key is not an EC key", nil)
	}
	if ec.Curve != elliptic.P256() {
		return nil, apperr.NewFormatError("signing key curve must be P-256", nil)
	}
	return &SigningKey{key: ec}, nil
}

// decodeKeyMaterial accepts full PEM armor or a bare base64 body, which is
// how the key tends to arrive when an env var loses the armor lines.
func decodeKeyMaterial(pemText string) ([]byte, error) {
	if block, _ := pem.Decode([]byte(pemText)); block != nil {
		return block.Bytes, nil
	}
	compact := strings.Join(strings.Fields(pemText), "")
	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, apperr.NewFormatError("signing key is not valid PEM", err)
	}
	return der, nil
}
