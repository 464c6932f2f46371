// Package crypto signs and verifies deep-hash digests with RSA-PSS over
// SHA-256 and derives wallet identities from RSA moduli.
package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"math/big"

	"github.com/LumeraProtocol/weave/pkg/errors"
)

const (
	// MinKeyBits is the smallest accepted modulus.
	MinKeyBits = 2048
	// MaxKeyBits is the largest modulus accepted from a transaction owner.
	MaxKeyBits = 8192
	// PublicExponent is the fixed exponent of every owner key.
	PublicExponent = 65537
)

var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthEqualsHash,
	Hash:       stdcrypto.SHA256,
}

// Provider holds an RSA key pair and the randomness source used for signing.
type Provider struct {
	key    *rsa.PrivateKey
	random io.Reader
}

// NewProvider wraps an already-parsed key pair. A nil random falls back to
// crypto/rand.Reader.
func NewProvider(key *rsa.PrivateKey, random io.Reader) (*Provider, error) {
	if key == nil {
		return nil, errors.Errorf("%w: nil private key", errors.ErrSigning)
	}
	if bits := key.N.BitLen(); bits < MinKeyBits {
		return nil, errors.Errorf("%w: %d-bit key is below the %d-bit minimum", errors.ErrSigning, bits, MinKeyBits)
	}
	if key.E != PublicExponent {
		return nil, errors.Errorf("%w: public exponent %d, want %d", errors.ErrSigning, key.E, PublicExponent)
	}
	if random == nil {
		random = rand.Reader
	}
	return &Provider{key: key, random: random}, nil
}

// Sign returns the RSA-PSS signature of SHA256(msg). The signature is
// exactly as long as the modulus.
func (p *Provider) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPSS(p.random, p.key, stdcrypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, errors.Errorf("%w: %w", errors.ErrSigning, err)
	}
	return sig, nil
}

// Verify checks sig over msg against the provider's public key.
func (p *Provider) Verify(sig, msg []byte) error {
	return VerifyPSS(&p.key.PublicKey, sig, msg)
}

// PublicKey returns the public half of the key pair.
func (p *Provider) PublicKey() *rsa.PublicKey { return &p.key.PublicKey }

// KeypairModulus returns the big-endian modulus without leading zeros. It is
// the transaction owner field.
func (p *Provider) KeypairModulus() []byte { return p.key.N.Bytes() }

// WalletAddress returns SHA256(modulus).
func (p *Provider) WalletAddress() [sha256.Size]byte {
	return sha256.Sum256(p.KeypairModulus())
}

// Address returns the base64url form of WalletAddress.
func (p *Provider) Address() string {
	addr := p.WalletAddress()
	return base64.RawURLEncoding.EncodeToString(addr[:])
}

// FillRand fills dst from the provider's randomness source.
func (p *Provider) FillRand(dst []byte) error {
	if _, err := io.ReadFull(p.random, dst); err != nil {
		return errors.Errorf("%w: read randomness: %w", errors.ErrSigning, err)
	}
	return nil
}

// PublicKeyFromOwner rebuilds the verifying key from a transaction owner.
// Owners outside MinKeyBits..MaxKeyBits are rejected before any modular
// arithmetic runs on them.
func PublicKeyFromOwner(owner []byte) (*rsa.PublicKey, error) {
	if len(owner) == 0 {
		return nil, errors.Errorf("%w: empty owner", errors.ErrSigning)
	}
	if bits := len(owner) * 8; bits < MinKeyBits || bits > MaxKeyBits {
		return nil, errors.Errorf("%w: %d-bit owner outside %d..%d", errors.ErrSigning, bits, MinKeyBits, MaxKeyBits)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(owner), E: PublicExponent}, nil
}

// VerifyPSS checks an RSA-PSS/SHA-256 signature of msg. Every failure is
// reported as ErrSigning.
func VerifyPSS(pub *rsa.PublicKey, sig, msg []byte) error {
	if pub == nil {
		return errors.Errorf("%w: nil public key", errors.ErrSigning)
	}
	digest := sha256.Sum256(msg)
	if err := rsa.VerifyPSS(pub, stdcrypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return errors.Errorf("%w: %w", errors.ErrSigning, err)
	}
	return nil
}
