package blockchain

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ledgerd/ledgerd/hashutil"
)

// Block is one link in the chain: an index, the previous block's
// hash, the transactions it carries, the proof-of-work nonce that
// satisfies ValidProof against those transactions, and the mining
// timestamp. Field order matches the wire/JSON contract in spec.md §3.
type Block struct {
	Index        uint64         `json:"index"`
	PreviousHash string         `json:"previous_hash"`
	Transactions []*Transaction `json:"transactions"`
	Proof        uint64         `json:"proof"`
	Timestamp    int64          `json:"timestamp"`
}

// GenesisBlock is the fixed first block every chain starts from:
// index 0, no predecessor, no transactions, a hard-coded proof, and a
// zero timestamp so every node derives the identical genesis hash.
func GenesisBlock() *Block {
	return &Block{
		Index:        0,
		PreviousHash: "",
		Transactions: []*Transaction{},
		Proof:        100,
		Timestamp:    0,
	}
}

// NewBlock assembles a mined block from its components.
func NewBlock(index uint64, previousHash string, txs []*Transaction, proof uint64, timestamp int64) *Block {
	return &Block{
		Index:        index,
		PreviousHash: previousHash,
		Transactions: txs,
		Proof:        proof,
		Timestamp:    timestamp,
	}
}

// CanonicalTransactions converts b's transactions to the fixed field
// ordering (sender, recipient, signature, amount) spec.md §4.5 and §9
// mandate for hashing and for the authoritative snapshot file.
func (b *Block) CanonicalTransactions() []hashutil.CanonicalTransaction {
	out := make([]hashutil.CanonicalTransaction, len(b.Transactions))
	for i, tx := range b.Transactions {
		out[i] = tx.Canonical()
	}
	return out
}

// Hash returns the hex SHA3-512 digest identifying this block, used as
// the PreviousHash of whatever block follows it.
func (b *Block) Hash() string {
	return hashutil.HashBlock(b.Index, b.PreviousHash, b.Proof, b.Timestamp, b.CanonicalTransactions())
}

// Serialize gob-encodes b for the alt binary snapshot mirror (C12).
func (b *Block) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("blockchain: serialize block: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeBlock reverses Serialize.
func DeserializeBlock(data []byte) (*Block, error) {
	var b Block
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, fmt.Errorf("blockchain: deserialize block: %w", err)
	}
	return &b, nil
}
