package transaction

import (
	"bytes"
	"crypto/sha256"
	"strconv"

	"github.com/LumeraProtocol/weave/pkg/crypto"
	"github.com/LumeraProtocol/weave/pkg/deephash"
	"github.com/LumeraProtocol/weave/pkg/errors"
)

// ToDeepHashItem maps tx to the structure its signature covers.
//
//	format 1: [owner, target, data, quantity, reward, last_tx, tags]
//	format 2: ["2", owner, target, quantity, reward, last_tx, tags, data_size, data_root]
func (tx *Transaction) ToDeepHashItem() (deephash.Item, error) {
	dec := func(v uint64) deephash.Blob { return deephash.String(strconv.FormatUint(v, 10)) }

	switch tx.Format {
	case 1:
		return deephash.List{
			deephash.Blob(tx.Owner),
			deephash.Blob(tx.Target),
			deephash.Blob(tx.Data),
			dec(tx.Quantity),
			dec(tx.Reward),
			deephash.Blob(tx.LastTx),
			tagsItem(tx.Tags),
		}, nil
	case 2:
		return deephash.List{
			deephash.String("2"),
			deephash.Blob(tx.Owner),
			deephash.Blob(tx.Target),
			dec(tx.Quantity),
			dec(tx.Reward),
			deephash.Blob(tx.LastTx),
			tagsItem(tx.Tags),
			dec(tx.DataSize),
			deephash.Blob(tx.DataRoot),
		}, nil
	default:
		return nil, errors.Errorf("%w: format %d", errors.ErrUnsupportedFormat, tx.Format)
	}
}

// SignatureData returns the deep hash the signature is computed over.
func (tx *Transaction) SignatureData() ([deephash.Size]byte, error) {
	item, err := tx.ToDeepHashItem()
	if err != nil {
		return [deephash.Size]byte{}, err
	}
	return deephash.Hash(item)
}

// Sign sets owner from p, signs the deep hash and derives the id as
// SHA256(signature).
func (tx *Transaction) Sign(p *crypto.Provider) error {
	if p == nil {
		return errors.Errorf("%w: nil provider", errors.ErrSigning)
	}
	tx.Owner = p.KeypairModulus()

	digest, err := tx.SignatureData()
	if err != nil {
		return err
	}
	sig, err := p.Sign(digest[:])
	if err != nil {
		return errors.Errorf("sign transaction: %w", err)
	}
	id := sha256.Sum256(sig)
	tx.Signature = sig
	tx.ID = id[:]
	return nil
}

// Verify checks the signature against the key in owner and that id matches
// the signature.
func (tx *Transaction) Verify() error {
	pub, err := crypto.PublicKeyFromOwner(tx.Owner)
	if err != nil {
		return err
	}
	digest, err := tx.SignatureData()
	if err != nil {
		return err
	}
	if err := crypto.VerifyPSS(pub, tx.Signature, digest[:]); err != nil {
		return errors.Errorf("verify transaction: %w", err)
	}
	if id := sha256.Sum256(tx.Signature); !bytes.Equal(id[:], tx.ID) {
		return errors.Errorf("%w: id does not match signature", errors.ErrSigning)
	}
	return nil
}
