// Package storage maintains the transaction and block types that make up
// the chain, including the fingerprint and POW support.
package storage

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/slushlabs/snowledger/foundation/chain/signature"
)

// Tx is the transactional information between two parties.
type Tx struct {
	ChainID uint16    `json:"chain_id"` // The chain id that is listed in the genesis file.
	Nonce   uint64    `json:"nonce"`    // Unique id for the transaction supplied by the sender.
	ToID    AccountID `json:"to"`       // Account receiving the benefit of the transaction.
	Value   uint64    `json:"value"`    // Monetary value received from this transaction.
}

// NewTx constructs a new transaction.
func NewTx(chainID uint16, nonce uint64, toID AccountID, value uint64) (Tx, error) {
	if !toID.IsAccountID() {
		return Tx{}, fmt.Errorf("to account is not properly formatted")
	}

	tx := Tx{
		ChainID: chainID,
		Nonce:   nonce,
		ToID:    toID,
		Value:   value,
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {

	// Validate the to account address is a valid address.
	if !tx.ToID.IsAccountID() {
		return SignedTx{}, fmt.Errorf("to account is not properly formatted")
	}

	// Sign the transaction with the private key to produce a signature.
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	// Construct the signed transaction by adding the signature
	// in the [R|S|V] format.
	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the chain. The signature
// doubles as the authorization token: an unsigned or badly signed
// transaction is never admitted into a proposal.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier, either 31 or 32 with snowID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction has a proper signature that conforms to
// our standards and is associated with the data claimed to be signed. It
// also checks the format of the to account.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("invalid chain id, got %d, exp %d", tx.ChainID, chainID)
	}

	if !tx.ToID.IsAccountID() {
		return errors.New("invalid account for to account")
	}

	if err := signature.VerifySignature(tx.Tx, tx.V, tx.R, tx.S); err != nil {
		return err
	}

	return nil
}

// FromAccount extracts the account id that signed the transaction.
func (tx SignedTx) FromAccount() (AccountID, error) {
	address, err := signature.FromAddress(tx.Tx, tx.V, tx.R, tx.S)
	return AccountID(address), err
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// UniqueKey returns a key that uniquely identifies the transaction in the
// pending queue.
func (tx SignedTx) UniqueKey() string {
	from, err := tx.FromAccount()
	if err != nil {
		from = "unknown"
	}

	return fmt.Sprintf("%s:%d", from, tx.Nonce)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return tx.UniqueKey()
}

// Hash implements the merkle Hashable interface for providing a hash
// of a signed transaction.
func (tx SignedTx) Hash() ([]byte, error) {
	str := signature.Hash(tx)
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions. If the nonce and signatures are the same,
// the two transactions are the same.
func (tx SignedTx) Equals(otherTx SignedTx) bool {
	txSig := signature.ToSignatureBytes(tx.V, tx.R, tx.S)
	otherTxSig := signature.ToSignatureBytes(otherTx.V, otherTx.R, otherTx.S)

	return tx.Nonce == otherTx.Nonce && bytes.Equal(txSig, otherTxSig)
}
