package blockchain

import (
	"fmt"
	"strings"

	"github.com/ledgerd/ledgerd/hashutil"
	"github.com/ledgerd/ledgerd/wallet"
)

// proofDifficulty is the number of leading hex-zero characters
// ValidProof requires, matching spec.md §4.3's "00" prefix rule.
const proofDifficulty = 2

var proofPrefix = strings.Repeat("0", proofDifficulty)

// canonicalize converts txs to the fixed field ordering used for PoW
// hashing.
func canonicalize(txs []*Transaction) []hashutil.CanonicalTransaction {
	out := make([]hashutil.CanonicalTransaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.Canonical()
	}
	return out
}

// ValidProof reports whether proof is a valid nonce for transactions
// chained after lastHash: SHA-256(canonicalJSON(transactions) ||
// lastHash || proof) must begin with proofPrefix.
func ValidProof(transactions []*Transaction, lastHash string, proof uint64) bool {
	digest := hashutil.ProofDigest(canonicalize(transactions), lastHash, proof)
	return strings.HasPrefix(digest, proofPrefix)
}

// dropLast returns txs without its final element, mirroring the
// reference node's practice of excluding the not-yet-rewarded
// coinbase entry from the value hashed for proof-of-work. Applied
// unconditionally, as the reference implementation does.
func dropLast(txs []*Transaction) []*Transaction {
	if len(txs) == 0 {
		return txs
	}
	return txs[:len(txs)-1]
}

// VerifyChain walks chain from its second block onward, checking that
// each block correctly references its predecessor's hash and carries
// a valid proof for the transactions it was mined with (excluding its
// own coinbase reward, per dropLast).
func VerifyChain(chain []*Block) bool {
	for i := 1; i < len(chain); i++ {
		block := chain[i]
		prev := chain[i-1]
		if block.PreviousHash != prev.Hash() {
			return false
		}
		if !ValidProof(dropLast(block.Transactions), block.PreviousHash, block.Proof) {
			return false
		}
	}
	return true
}

// BalanceFunc resolves a participant's spendable balance, used by
// VerifyTransaction to reject transfers that would overdraw.
type BalanceFunc func(participant string) (float64, error)

// VerifyTransaction checks tx's signature (skipped for coinbase
// transactions, which carry none) and, when checkFunds is true, that
// the sender's balance as reported by balanceOf covers the amount.
func VerifyTransaction(tx *Transaction, balanceOf BalanceFunc, checkFunds bool) (bool, error) {
	if !tx.IsCoinbase() {
		ok, err := wallet.VerifySignature(tx.Sender, tx.Recipient, tx.Amount, tx.Signature)
		if err != nil {
			return false, fmt.Errorf("blockchain: verify transaction: %w", err)
		}
		if !ok {
			return false, nil
		}
	}
	if checkFunds && !tx.IsCoinbase() {
		balance, err := balanceOf(tx.Sender)
		if err != nil {
			return false, err
		}
		if balance < tx.Amount {
			return false, nil
		}
	}
	return true, nil
}

// VerifyOpenTransactions checks every pending transaction in mempool
// against VerifyTransaction, signature only. Fund sufficiency was
// already checked against the sender's balance at add-time (spec.md
// §4.3); re-checking funds here against a balance that already
// accounts for every other pending send would reject legitimate
// mempools with more than one spend from the same sender.
func VerifyOpenTransactions(mempool []*Transaction, balanceOf BalanceFunc) (bool, error) {
	for _, tx := range mempool {
		ok, err := VerifyTransaction(tx, balanceOf, false)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
