package blockchain

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ledgerd/ledgerd/hashutil"
	"github.com/ledgerd/ledgerd/wallet"
)

// MiningReward is the fixed amount a successful MineBlock call pays to
// the miner via a coinbase transaction.
const MiningReward = 10.0

// Transaction is the account-model transfer this ledger replicates:
// sender pays recipient amount, authorized by signature. Field order
// matches the wire/JSON contract in spec.md §3.
type Transaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Signature string  `json:"signature"`
}

// NewTransaction builds and signs a transfer from sender to recipient.
func NewTransaction(ks *wallet.KeyStore, recipient string, amount float64) (*Transaction, error) {
	sender := ks.PublicKeyHex()
	sig, err := wallet.Sign(ks, sender, recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("blockchain: sign transaction: %w", err)
	}
	return &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Signature: sig,
	}, nil
}

// CoinbaseTransaction is the unsigned reward transaction a miner
// appends to a block it mines. Its sender is the MiningSender sentinel
// and it carries no signature.
func CoinbaseTransaction(recipient string) *Transaction {
	return &Transaction{
		Sender:    wallet.MiningSender,
		Recipient: recipient,
		Amount:    MiningReward,
		Signature: "",
	}
}

// IsCoinbase reports whether tx is a mining reward, identified by its
// sentinel sender rather than any cryptographic property.
func (tx *Transaction) IsCoinbase() bool {
	return tx.Sender == wallet.MiningSender
}

// Canonical converts tx to the fixed field ordering used for hashing
// and proof-of-work.
func (tx *Transaction) Canonical() hashutil.CanonicalTransaction {
	return hashutil.CanonicalTransaction{
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Signature: tx.Signature,
		Amount:    tx.Amount,
	}
}

// Equal compares the four transaction fields directly; used for
// mempool de-duplication and removing chained transactions from the
// mempool once a block carrying them lands.
func (tx *Transaction) Equal(other *Transaction) bool {
	if tx == nil || other == nil {
		return tx == other
	}
	return tx.Sender == other.Sender &&
		tx.Recipient == other.Recipient &&
		tx.Amount == other.Amount &&
		tx.Signature == other.Signature
}

// Serialize gob-encodes tx for the alt binary snapshot mirror (C12).
func (tx *Transaction) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tx); err != nil {
		return nil, fmt.Errorf("blockchain: serialize transaction: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeTransaction reverses Serialize.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&tx); err != nil {
		return nil, fmt.Errorf("blockchain: deserialize transaction: %w", err)
	}
	return &tx, nil
}
