package securechat

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
)

var (
	// ErrInvalidPublicKey is returned for keys that are not PEM encoded RSA keys.
	ErrInvalidPublicKey = fmt.Errorf("%w: public key must be a PEM encoded RSA key", broadcast.ErrInvalidPayload)
	// ErrInvalidSignature is returned when a signature does not match the message.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", broadcast.ErrUnauthorized)
)

// ParsePublicKey decodes a PEM "PUBLIC KEY" (SPKI) or "RSA PUBLIC KEY"
// (PKCS#1) block.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, ErrInvalidPublicKey
		}
		return rsaKey, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return key, nil
	default:
		return nil, ErrInvalidPublicKey
	}
}

// VerifySignature checks a base64 RSA PKCS#1 v1.5 SHA-256 signature of message.
func VerifySignature(key *rsa.PublicKey, message, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrInvalidSignature)
	}
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
