// Package hashutil holds the canonical encodings shared by signing,
// block hashing and proof-of-work so that every caller that needs to
// agree on a digest — a sender signing a transaction, a verifier
// checking it, a miner searching for a proof — goes through the same
// function.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

// CanonicalTransaction is the fixed field ordering used whenever a
// transaction is folded into a hash: sender, recipient, signature,
// amount. Field declaration order drives json.Marshal's key order, so
// this struct IS the encoding, not just a description of it.
type CanonicalTransaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Signature string  `json:"signature"`
	Amount    float64 `json:"amount"`
}

// canonicalBlock mirrors a block for hashing purposes. Field order here
// happens to already be lexicographic ("index" < "previous_hash" <
// "proof" < "timestamp" < "transactions"), which is what hash_block
// requires.
type canonicalBlock struct {
	Index        uint64                 `json:"index"`
	PreviousHash string                 `json:"previous_hash"`
	Proof        uint64                 `json:"proof"`
	Timestamp    int64                  `json:"timestamp"`
	Transactions []CanonicalTransaction `json:"transactions"`
}

// AmountString renders amount the way a signer and a verifier must
// agree on bit-exactly: a decimal string that always carries a
// fractional part, mirroring the str(float) rendering of the node this
// module replicates (str(10.0) == "10.0", not "10").
func AmountString(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// HashTransactionFields is the payload a sender signs and a verifier
// checks: SHA3-512 over sender || recipient || AmountString(amount).
func HashTransactionFields(sender, recipient string, amount float64) [64]byte {
	payload := sender + recipient + AmountString(amount)
	return sha3.Sum512([]byte(payload))
}

// HashBlock returns the hex SHA3-512 digest of a block's canonical JSON
// encoding: block fields in lexicographic key order, transactions
// rendered as ordered (sender, recipient, signature, amount) objects.
func HashBlock(index uint64, previousHash string, proof uint64, timestamp int64, txs []CanonicalTransaction) string {
	if txs == nil {
		txs = []CanonicalTransaction{}
	}
	encoded, err := json.Marshal(canonicalBlock{
		Index:        index,
		PreviousHash: previousHash,
		Proof:        proof,
		Timestamp:    timestamp,
		Transactions: txs,
	})
	if err != nil {
		// canonicalBlock only has marshalable fields; this cannot fail.
		panic(err)
	}
	digest := sha3.Sum512(encoded)
	return hex.EncodeToString(digest[:])
}

// ProofDigest is the SHA-256 hex digest proof-of-work difficulty is
// measured against: the canonical JSON array of pending transactions,
// the previous block's hash, and the candidate proof, encoded the same
// way on every call so mining and validation always agree.
func ProofDigest(txs []CanonicalTransaction, lastHash string, proof uint64) string {
	if txs == nil {
		txs = []CanonicalTransaction{}
	}
	encodedTxs, err := json.Marshal(txs)
	if err != nil {
		panic(err)
	}
	guess := string(encodedTxs) + lastHash + strconv.FormatUint(proof, 10)
	sum := sha256.Sum256([]byte(guess))
	return hex.EncodeToString(sum[:])
}
