package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Credentials sign requests with the account's RSA key.
type Credentials struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
}

// LoadCredentials reads the PEM key at path. The KALSHI_PRIVATE_KEY
// environment variable, when set, holds the PEM itself and wins.
func LoadCredentials(keyID, path string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("kalshi: API key ID is required")
	}
	var data []byte
	if raw := os.Getenv("KALSHI_PRIVATE_KEY"); raw != "" {
		data = []byte(raw)
	} else {
		if path == "" {
			return nil, errors.New("kalshi: private key path is required")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		data = b
	}
	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, err
	}
	return &Credentials{KeyID: keyID, PrivateKey: key}, nil
}

// ParsePrivateKey decodes a PKCS#8 or PKCS#1 PEM RSA key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("kalshi: failed to decode PEM block")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("kalshi: key is not an RSA private key")
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Headers returns the auth headers for method and path. path is the full
// URL path without the query string.
func (c *Credentials) Headers(method, path string, now time.Time) (map[string]string, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	hashed := sha256.Sum256([]byte(ts + method + path))
	sig, err := rsa.SignPSS(rand.Reader, c.PrivateKey, crypto.SHA256, hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       c.KeyID,
		"KALSHI-ACCESS-TIMESTAMP": ts,
		"KALSHI-ACCESS-SIGNATURE": base64.StdEncoding.EncodeToString(sig),
	}, nil
}
