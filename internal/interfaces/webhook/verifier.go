package webhook

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned when a challenge carries the wrong verification token
var ErrInvalidToken = errors.New("invalid verification token")

// Verifier checks Lark callback authenticity and unwraps encrypted payloads
type Verifier struct {
	verifyToken string
	encryptKey  string
}

// NewVerifier creates a new webhook verifier. Empty values disable the
// corresponding check.
func NewVerifier(verifyToken, encryptKey string) *Verifier {
	return &Verifier{
		verifyToken: verifyToken,
		encryptKey:  encryptKey,
	}
}

// Challenge returns the challenge to echo when body is a url_verification request.
// ok is false for ordinary events.
func (v *Verifier) Challenge(body []byte) (challenge string, ok bool, err error) {
	var req struct {
		Challenge string `json:"challenge"`
		Token     string `json:"token"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal callback: %w", err)
	}
	if req.Type != "url_verification" {
		return "", false, nil
	}
	if v.verifyToken != "" && req.Token != v.verifyToken {
		return "", true, ErrInvalidToken
	}
	return req.Challenge, true, nil
}

// VerifySignature checks sha256(timestamp + nonce + encrypt_key + body)
func (v *Verifier) VerifySignature(timestamp, nonce, signature string, body []byte) bool {
	if v.encryptKey == "" {
		return true
	}
	return Sign(timestamp, nonce, v.encryptKey, body) == signature
}

// Sign computes the hex signature Lark sends in X-Lark-Signature
func Sign(timestamp, nonce, encryptKey string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(timestamp + nonce + encryptKey))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Unwrap returns the plain event JSON, decrypting {"encrypt": "..."} bodies
func (v *Verifier) Unwrap(body []byte) ([]byte, error) {
	var envelope struct {
		Encrypt string `json:"encrypt"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal callback: %w", err)
	}
	if envelope.Encrypt == "" {
		return body, nil
	}
	if v.encryptKey == "" {
		return nil, fmt.Errorf("encrypted callback received but no encrypt key configured")
	}
	return Decrypt(envelope.Encrypt, v.encryptKey)
}

// Decrypt reverses Lark's AES-256-CBC event encryption. The key is the
// SHA-256 of the encrypt key and the IV prefixes the ciphertext.
func Decrypt(encrypted, encryptKey string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext has invalid length %d", len(raw))
	}

	key := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return unpad(plaintext)
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	return data[:len(data)-n], nil
}
