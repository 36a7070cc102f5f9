// Package checkin issues and reads the encrypted tokens carried by
// registration QR codes.
package checkin

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidToken = errors.New("invalid check-in token")

type Token struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	IssuedAt       time.Time `json:"issued_at"`
}

type QRGenerator struct {
	aead cipher.AEAD
	size int
}

func NewQRGenerator(secret string, size int) (*QRGenerator, error) {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{aead: aead, size: size}, nil
}

// Encode seals the token into a URL-safe string.
func (q *QRGenerator) Encode(tok Token) (string, error) {
	data, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, q.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := q.aead.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (q *QRGenerator) Decode(code string) (Token, error) {
	raw, err := base64.URLEncoding.DecodeString(code)
	if err != nil {
		return Token{}, ErrInvalidToken
	}
	ns := q.aead.NonceSize()
	if len(raw) < ns {
		return Token{}, ErrInvalidToken
	}

	plain, err := q.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	var tok Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return Token{}, ErrInvalidToken
	}
	return tok, nil
}

// GenerateEncryptedQR renders the sealed token as a PNG.
func (q *QRGenerator) GenerateEncryptedQR(tok Token) ([]byte, error) {
	code, err := q.Encode(tok)
	if err != nil {
		return nil, fmt.Errorf("encode check-in token: %w", err)
	}
	return qrcode.Encode(code, qrcode.Medium, q.size)
}
