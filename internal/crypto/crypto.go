// Package crypto seals token payloads for storage in plain-text settings.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
)

const (
	algGCM = "aes-256-gcm"
	algCBC = "aes-256-cbc"
)

// envelope is the stored form. IV and Data are base64 on their own and the
// whole JSON document is base64 again. A missing Alg means CBC.
type envelope struct {
	Alg  string `json:"alg,omitempty"`
	IV   string `json:"iv"`
	Data string `json:"data"`
}

// Sealer encrypts and decrypts structured payloads with a key derived from
// the process secret.
type Sealer struct {
	key []byte
}

// New derives the AES-256 key from secret with SHA-256
func New(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, mailerr.New(mailerr.ErrCrypto, "An encryption secret is required to store OAuth tokens.")
	}
	sum := sha256.Sum256([]byte(secret))
	return &Sealer{key: sum[:]}, nil
}

// Encrypt marshals payload to JSON and seals it with AES-256-GCM
func (s *Sealer) Encrypt(payload any) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", mailerr.Wrap(mailerr.ErrCrypto, "Failed to encode token payload.", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", mailerr.Wrap(mailerr.ErrCrypto, "Failed to encrypt token payload.", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	env, err := json.Marshal(envelope{
		Alg:  algGCM,
		IV:   base64.StdEncoding.EncodeToString(nonce),
		Data: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", mailerr.Wrap(mailerr.ErrCrypto, "Failed to encode token payload.", err)
	}

	return base64.StdEncoding.EncodeToString(env), nil
}

// Decrypt opens sealed and unmarshals the JSON object into out
func (s *Sealer) Decrypt(sealed string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return invalid(err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return invalid(err)
	}
	if env.IV == "" || env.Data == "" {
		return invalid(errors.New("missing iv or data"))
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return invalid(err)
	}
	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return invalid(err)
	}

	var plaintext []byte
	switch env.Alg {
	case algGCM:
		plaintext, err = s.openGCM(iv, data)
	case "", algCBC:
		plaintext, err = s.openCBC(iv, data)
	default:
		err = fmt.Errorf("unsupported algorithm %q", env.Alg)
	}
	if err != nil {
		return mailerr.Wrap(mailerr.ErrCrypto, "Failed to decrypt token payload.", err)
	}

	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return mailerr.New(mailerr.ErrCrypto, "Token payload JSON is invalid.")
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return mailerr.Wrap(mailerr.ErrCrypto, "Token payload JSON is invalid.", err)
	}

	return nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.ErrCrypto, "Failed to initialise cipher.", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.ErrCrypto, "Failed to initialise cipher.", err)
	}
	return gcm, nil
}

func (s *Sealer) openGCM(nonce, data []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("nonce length %d", len(nonce))
	}
	return gcm.Open(nil, nonce, data, nil)
}

// openCBC reads envelopes written by the legacy AES-256-CBC/PKCS#7 format
func (s *Sealer) openCBC(iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv length %d", len(iv))
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d", len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("bad padding")
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, errors.New("bad padding")
		}
	}
	return out[:len(out)-pad], nil
}

func invalid(err error) error {
	return mailerr.Wrap(mailerr.ErrCrypto, "Stored token payload is invalid.", err)
}
