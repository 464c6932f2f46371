package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/LumeraProtocol/weave/pkg/errors"
)

// ParsePrivateKeyPEM decodes a PKCS#8 or PKCS#1 RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.Errorf("%w: no PEM block found", errors.ErrEncoding)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Errorf("%w: parse PKCS#1 key: %w", errors.ErrEncoding, err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Errorf("%w: parse PKCS#8 key: %w", errors.ErrEncoding, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.Errorf("%w: PKCS#8 key is %T, not RSA", errors.ErrEncoding, parsed)
		}
		return key, nil
	default:
		return nil, errors.Errorf("%w: unsupported PEM block %q", errors.ErrEncoding, block.Type)
	}
}

// LoadPrivateKeyFile reads and parses a PEM private key from path.
func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("read key file %s: %w", path, err)
	}
	return ParsePrivateKeyPEM(data)
}
