package token

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"sync"
	"testing"

	"github.com/sing3demons/weather/kp/internal/apperr"
)

func genECPEM(t *testing.T, curve elliptic.Curve) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func genEd25519PEM(t *testing.T) string {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestImportSigningKey(t *testing.T) {
	tests := []struct {
		name    string
		pemText string
		wantErr string
	}{
		{"p256", genECPEM(t, elliptic.P256()), ""},
		{"wrong curve", genECPEM(t, elliptic.P384()), "P-256"},
		{"not an EC key", genEd25519PEM(t), "EC"},
		{"not pem", "definitely not a key", "PEM"},
		{"pem but not pkcs8", string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte("junk")})), "PKCS#8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := importSigningKey(tt.pemText)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("importSigningKey() error = %v", err)
				}
				if key == nil || key.Public() == nil {
					t.Fatal("importSigningKey() returned no key")
				}
				return
			}
			if !apperr.IsFormat(err) {
				t.Fatalf("importSigningKey() error = %v, want format error", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("importSigningKey() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestImportSigningKeyBareBody(t *testing.T) {
	armored := genECPEM(t, elliptic.P256())
	var body []string
	for _, line := range strings.Split(armored, "\n") {
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		body = append(body, line)
	}

	key, err := importSigningKey(strings.Join(body, "\n"))
	if err != nil {
		t.Fatalf("importSigningKey() on armorless body error = %v", err)
	}
	if key == nil || key.Public() == nil {
		t.Fatal("importSigningKey() returned no key")
	}
}

func TestKeyLoaderMemoizes(t *testing.T) {
	pemText := genECPEM(t, elliptic.P256())
	l := NewKeyLoader()

	k1, err := l.Load(context.Background(), pemText)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	k2, err := l.Load(context.Background(), pemText)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if k1 != k2 {
		t.Error("second Load() reimported the key")
	}
}

func TestKeyLoaderEmptyPEM(t *testing.T) {
	l := NewKeyLoader()
	for _, pemText := range []string{"", "   \n\t"} {
		if _, err := l.Load(context.Background(), pemText); !apperr.IsConfig(err) {
			t.Errorf("Load(%q) error = %v, want config error", pemText, err)
		}
	}
}

func TestKeyLoaderFailureRetryable(t *testing.T) {
	l := NewKeyLoader()
	if _, err := l.Load(context.Background(), "not a key"); !apperr.IsFormat(err) {
		t.Fatalf("Load() error = %v, want format error", err)
	}
	if _, err := l.Load(context.Background(), genECPEM(t, elliptic.P256())); err != nil {
		t.Fatalf("Load() after failure = %v, want success", err)
	}
}

func TestKeyLoaderRotation(t *testing.T) {
	l := NewKeyLoader()
	kA, err := l.Load(context.Background(), genECPEM(t, elliptic.P256()))
	if err != nil {
		t.Fatalf("Load(A) error = %v", err)
	}
	kB, err := l.Load(context.Background(), genECPEM(t, elliptic.P256()))
	if err != nil {
		t.Fatalf("Load(B) error = %v", err)
	}
	if kA == kB {
		t.Error("changed material did not trigger a fresh import")
	}
}

func TestKeyLoaderReset(t *testing.T) {
	pemText := genECPEM(t, elliptic.P256())
	l := NewKeyLoader()

	k1, err := l.Load(context.Background(), pemText)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	l.Reset()
	k2, err := l.Load(context.Background(), pemText)
	if err != nil {
		t.Fatalf("Load() after Reset error = %v", err)
	}
	if k1 == k2 {
		t.Error("Reset() did not drop the memoized key")
	}
}

func TestKeyLoaderConcurrent(t *testing.T) {
	pemText := genECPEM(t, elliptic.P256())
	l := NewKeyLoader()

	keys := make([]*SigningKey, 16)
	var wg sync.WaitGroup
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := l.Load(context.Background(), pemText)
			if err != nil {
				t.Errorf("Load() error = %v", err)
				return
			}
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for i, k := range keys {
		if k != keys[0] {
			t.Errorf("goroutine %d received a different key", i)
		}
	}
}

func TestSigningKeyStringHidesMaterial(t *testing.T) {
	key, err := importSigningKey(genECPEM(t, elliptic.P256()))
	if err != nil {
		t.Fatalf("importSigningKey() error = %v", err)
	}
	if got := key.String(); got != "SigningKey(ES256)" {
		t.Errorf("String() = %q, must not expose key material", got)
	}
}
