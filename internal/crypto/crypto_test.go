package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
)

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

func newSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := New("test-secret-salt")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	s := newSealer(t)

	payloads := []tokenPayload{
		{AccessToken: "ya29.a0", RefreshToken: "1//0g", ExpiresAt: 1700000000, Scope: "https://www.googleapis.com/auth/gmail.readonly", TokenType: "Bearer"},
		{},
		{AccessToken: strings.Repeat("x", 4096), RefreshToken: "üñíçødé"},
	}

	for _, p := range payloads {
		sealed, err := s.Encrypt(p)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}

		var got tokenPayload
		if err := s.Decrypt(sealed, &got); err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !reflect.DeepEqual(got, p) {
			t.Errorf("round trip = %+v, want %+v", got, p)
		}
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	s := newSealer(t)
	p := tokenPayload{AccessToken: "same"}

	a, _ := s.Encrypt(p)
	b, _ := s.Encrypt(p)
	if a == b {
		t.Error("expected different ciphertexts for the same payload")
	}
}

func TestEnvelopeShape(t *testing.T) {
	s := newSealer(t)
	sealed, _ := s.Encrypt(tokenPayload{AccessToken: "a"})

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("outer envelope is not base64: %v", err)
	}
	var env map[string]string
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	for _, field := range []string{"iv", "data"} {
		if _, err := base64.StdEncoding.DecodeString(env[field]); err != nil || env[field] == "" {
			t.Errorf("field %s is not base64: %q", field, env[field])
		}
	}
	if env["alg"] != algGCM {
		t.Errorf("alg = %q, want %q", env["alg"], algGCM)
	}
	if strings.Contains(string(raw), "access_token") {
		t.Error("plaintext leaked into envelope")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	s := newSealer(t)
	sealed, _ := s.Encrypt(tokenPayload{AccessToken: "secret", RefreshToken: "refresh"})

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	var env envelope
	json.Unmarshal(raw, &env)

	data, _ := base64.StdEncoding.DecodeString(env.Data)
	data[0] ^= 0xff
	flipped := env
	flipped.Data = base64.StdEncoding.EncodeToString(data)
	flippedJSON, _ := json.Marshal(flipped)

	other, _ := New("another-secret")
	otherSealed, _ := other.Encrypt(tokenPayload{AccessToken: "x"})

	tests := []struct {
		name   string
		sealed string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"truncated", sealed[:len(sealed)/2]},
		{"not json", base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{"missing fields", base64.StdEncoding.EncodeToString([]byte(`{"iv":""}`))},
		{"flipped ciphertext", base64.StdEncoding.EncodeToString(flippedJSON)},
		{"wrong key", otherSealed},
		{"unknown alg", base64.StdEncoding.EncodeToString([]byte(`{"alg":"rot13","iv":"AAAA","data":"AAAA"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out tokenPayload
			err := s.Decrypt(tt.sealed, &out)
			if !errors.Is(err, mailerr.ErrCrypto) {
				t.Fatalf("Decrypt error = %v, want ErrCrypto", err)
			}
			if out != (tokenPayload{}) {
				t.Errorf("expected no partial result, got %+v", out)
			}
		})
	}
}

// sealCBC produces the legacy envelope format: no alg, AES-256-CBC with PKCS#7.
func sealCBC(t *testing.T, s *Sealer, plaintext []byte) string {
	t.Helper()
	block, _ := aes.NewCipher(s.key)
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), []byte(strings.Repeat(string(rune(pad)), pad))...)
	iv := make([]byte, aes.BlockSize)
	rand.Read(iv)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	env, _ := json.Marshal(map[string]string{
		"iv":   base64.StdEncoding.EncodeToString(iv),
		"data": base64.StdEncoding.EncodeToString(out),
	})
	return base64.StdEncoding.EncodeToString(env)
}

func TestDecryptLegacyCBC(t *testing.T) {
	s := newSealer(t)

	sealed := sealCBC(t, s, []byte(`{"access_token":"legacy","refresh_token":"r","expires_at":42}`))
	var got tokenPayload
	if err := s.Decrypt(sealed, &got); err != nil {
		t.Fatalf("Decrypt legacy failed: %v", err)
	}
	if got.AccessToken != "legacy" || got.RefreshToken != "r" || got.ExpiresAt != 42 {
		t.Errorf("unexpected legacy payload: %+v", got)
	}

	// Valid ciphertext whose plaintext is not a JSON object.
	notObject := sealCBC(t, s, []byte(`"just a string"`))
	if err := s.Decrypt(notObject, &got); !errors.Is(err, mailerr.ErrCrypto) {
		t.Errorf("expected ErrCrypto for non-object payload, got %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(""); !errors.Is(err, mailerr.ErrCrypto) {
		t.Errorf("New(\"\") error = %v, want ErrCrypto", err)
	}
}
