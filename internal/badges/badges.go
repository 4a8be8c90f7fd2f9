// Package badges renders the QR code printed on attendee badges. The QR
// carries an encrypted token naming the ticket, so a scanner can check the
// attendee in without typing the code.
package badges

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

	"github.com/skip2/go-qrcode"

	"ms-checkin/internal/models"
)

const defaultSize = 256

var ErrInvalidToken = errors.New("invalid badge token")

type Generator struct {
	aead cipher.AEAD
	size int
}

type tokenPayload struct {
	Code   string        `json:"c"`
	Source models.Source `json:"s"`
}

func NewGenerator(secret string) (*Generator, error) {
	key := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Generator{aead: aead, size: defaultSize}, nil
}

// Token encrypts the attendee's ticket identity.
func (g *Generator) Token(a *models.Attendee) (string, error) {
	data, err := json.Marshal(tokenPayload{Code: a.Code, Source: a.Source})
	if err != nil {
		return "", err
	}

	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := g.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode returns the code and source a token was issued for.
func (g *Generator) Decode(token string) (string, models.Source, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	n := g.aead.NonceSize()
	if len(raw) < n {
		return "", "", ErrInvalidToken
	}

	data, err := g.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var p tokenPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return p.Code, p.Source, nil
}

// PNG renders the badge QR code for the attendee.
func (g *Generator) PNG(a *models.Attendee) ([]byte, error) {
	token, err := g.Token(a)
	if err != nil {
		return nil, fmt.Errorf("badge token for attendee %d: %w", a.ID, err)
	}
	return qrcode.Encode(token, qrcode.Medium, g.size)
}
