// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tx defines the transaction type.
package tx

import (
	"crypto/ecdsa"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/aetherlab/aether/aether"
)

// ErrInvalidSignature is returned when signature values fail validation
// or sender recovery.
var ErrInvalidSignature = errors.New("invalid signature")

// Transaction is an immutable tx type.
type Transaction struct {
	body body

	cache struct {
		signingHash *aether.Bytes32
		hash        *aether.Bytes32
		sender      *aether.Address
	}
}

// body describes details of a tx.
type body struct {
	AccountNonce uint64
	Price        *big.Int
	GasLimit     uint64
	Recipient    *aether.Address `rlp:"nil"` // nil means contract creation
	Amount       *big.Int
	Payload      []byte

	V *big.Int
	R *big.Int
	S *big.Int
}

// New creates an unsigned transaction.
func New(nonce uint64, price *big.Int, gasLimit uint64, recipient *aether.Address, amount *big.Int, payload []byte) *Transaction {
	if price == nil {
		price = new(big.Int)
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if recipient != nil {
		cpy := *recipient
		recipient = &cpy
	}
	return &Transaction{body: body{
		AccountNonce: nonce,
		Price:        new(big.Int).Set(price),
		GasLimit:     gasLimit,
		Recipient:    recipient,
		Amount:       new(big.Int).Set(amount),
		Payload:      append([]byte(nil), payload...),
		V:            new(big.Int),
		R:            new(big.Int),
		S:            new(big.Int),
	}}
}

// Nonce returns the account nonce carried by the tx.
func (t *Transaction) Nonce() uint64 {
	return t.body.AccountNonce
}

// GasPrice returns gas price.
func (t *Transaction) GasPrice() *big.Int {
	return new(big.Int).Set(t.body.Price)
}

// Gas returns gas provision for this tx.
func (t *Transaction) Gas() uint64 {
	return t.body.GasLimit
}

// Recipient returns the recipient address.
// A nil recipient means contract creation.
func (t *Transaction) Recipient() *aether.Address {
	if t.body.Recipient == nil {
		return nil
	}
	cpy := *t.body.Recipient
	return &cpy
}

// Amount returns the value transferred by the tx.
func (t *Transaction) Amount() *big.Int {
	return new(big.Int).Set(t.body.Amount)
}

// Payload returns the input data.
func (t *Transaction) Payload() []byte {
	return append([]byte(nil), t.body.Payload...)
}

// Hash returns hash of tx, the keccak of the full RLP encoding.
func (t *Transaction) Hash() aether.Bytes32 {
	if cached := t.cache.hash; cached != nil {
		return *cached
	}

	hw := aether.NewKeccak()
	rlp.Encode(hw, t)

	var h aether.Bytes32
	hw.Sum(h[:0])
	t.cache.hash = &h
	return h
}

// SigningHash returns hash of tx excluding signature values.
func (t *Transaction) SigningHash() aether.Bytes32 {
	if cached := t.cache.signingHash; cached != nil {
		return *cached
	}

	hw := aether.NewKeccak()
	rlp.Encode(hw, []interface{}{
		t.body.AccountNonce,
		t.body.Price,
		t.body.GasLimit,
		t.body.Recipient,
		t.body.Amount,
		t.body.Payload,
	})

	var h aether.Bytes32
	hw.Sum(h[:0])
	t.cache.signingHash = &h
	return h
}

// Sender recovers the sender address from the signature.
func (t *Transaction) Sender() (aether.Address, error) {
	if cached := t.cache.sender; cached != nil {
		return *cached, nil
	}

	if t.body.V.BitLen() > 8 {
		return aether.Address{}, ErrInvalidSignature
	}
	v := byte(t.body.V.Uint64())
	if v < 27 || !crypto.ValidateSignatureValues(v-27, t.body.R, t.body.S, true) {
		return aether.Address{}, ErrInvalidSignature
	}

	r, s := t.body.R.Bytes(), t.body.S.Bytes()
	sig := make([]byte, 65)
	copy(sig[32-len(r):32], r)
	copy(sig[64-len(s):64], s)
	sig[64] = v - 27

	hash := t.SigningHash()
	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return aether.Address{}, errors.Wrap(err, "recover sender")
	}
	sender := aether.Address(crypto.PubkeyToAddress(*pub))
	t.cache.sender = &sender
	return sender, nil
}

// WithSignature creates a new tx with the 65-byte signature set.
func (t *Transaction) WithSignature(sig []byte) (*Transaction, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidSignature
	}
	newTx := Transaction{body: t.body}
	newTx.body.R = new(big.Int).SetBytes(sig[:32])
	newTx.body.S = new(big.Int).SetBytes(sig[32:64])
	newTx.body.V = new(big.Int).SetUint64(uint64(sig[64]) + 27)
	return &newTx, nil
}

// Sign signs the transaction with the given private key.
func (t *Transaction) Sign(key *ecdsa.PrivateKey) (*Transaction, error) {
	hash := t.SigningHash()
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, errors.Wrap(err, "sign tx")
	}
	return t.WithSignature(sig)
}

// IntrinsicGas returns the gas floor charged before execution starts.
func (t *Transaction) IntrinsicGas(params *aether.Params) uint64 {
	return params.IntrinsicGas(len(t.body.Payload), t.body.Recipient == nil)
}

// EncodeRLP implements rlp.Encoder
func (t *Transaction) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &t.body)
}

// DecodeRLP implements rlp.Decoder
func (t *Transaction) DecodeRLP(s *rlp.Stream) error {
	var body body
	if err := s.Decode(&body); err != nil {
		return err
	}
	*t = Transaction{body: body}
	return nil
}
