package graph

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const assertionLifetime = 10 * time.Minute

// clientAssertion builds a signed JWT for the client_credentials
// certificate flow. The certificate file must be a PEM bundle holding the
// certificate and its unencrypted RSA private key.
func (c *Client) clientAssertion(audience string) (string, error) {
	key, cert, err := loadCertificateBundle(c.certPath)
	if err != nil {
		return "", fmt.Errorf("load certificate %q: %w", c.certPath, err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"aud": audience,
		"iss": c.clientID,
		"sub": c.clientID,
		"jti": uuid.NewString(),
		"nbf": now.Unix(),
		"iat": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	thumbprint := sha1.Sum(cert.Raw)
	token.Header["x5t"] = base64.RawURLEncoding.EncodeToString(thumbprint[:])

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}
	return signed, nil
}

func loadCertificateBundle(path string) (*rsa.PrivateKey, *x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var key *rsa.PrivateKey
	var cert *x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE" && cert == nil:
			parsed, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parse certificate block: %w", err)
			}
			cert = parsed
		case strings.Contains(block.Type, "PRIVATE KEY") && key == nil:
			parsed, err := parsePrivateKey(block.Bytes)
			if err != nil {
				return nil, nil, err
			}
			key = parsed
		}
	}

	if cert == nil {
		return nil, nil, errors.New("no CERTIFICATE block found")
	}
	if key == nil {
		return nil, nil, errors.New("no PRIVATE KEY block found")
	}
	return key, cert, nil
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}
	return key, nil
}
