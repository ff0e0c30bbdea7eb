package blockchain

import (
	"testing"

	"github.com/ledgerd/ledgerd/wallet"
	"github.com/stretchr/testify/require"
)

func ampleBalance(string) (float64, error) { return 1000, nil }

func TestValidProofAgreesWithMining(t *testing.T) {
	txs := []*Transaction{CoinbaseTransaction("alice")}
	var proof uint64
	for !ValidProof(dropLast(txs), "genesis", proof) {
		proof++
	}
	require.True(t, ValidProof(dropLast(txs), "genesis", proof))
}

func TestDropLastHandlesEmpty(t *testing.T) {
	require.Empty(t, dropLast(nil))
}

func TestVerifyChainDetectsTamperedLink(t *testing.T) {
	genesis := GenesisBlock()
	block := NewBlock(1, genesis.Hash(), []*Transaction{CoinbaseTransaction("alice")}, 0, 0)
	chain := []*Block{genesis, block}
	require.False(t, VerifyChain(chain), "block with an unmined proof must fail verification")

	var proof uint64
	for !ValidProof(dropLast(block.Transactions), genesis.Hash(), proof) {
		proof++
	}
	valid := NewBlock(1, genesis.Hash(), block.Transactions, proof, 0)
	require.True(t, VerifyChain([]*Block{genesis, valid}))

	tampered := NewBlock(1, "not-the-real-hash", block.Transactions, proof, 0)
	require.False(t, VerifyChain([]*Block{genesis, tampered}))
}

func TestVerifyTransactionCoinbaseSkipsSignature(t *testing.T) {
	tx := CoinbaseTransaction("alice")
	ok, err := VerifyTransaction(tx, ampleBalance, true)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyTransactionRejectsBadSignature(t *testing.T) {
	ks, err := wallet.Generate(wallet.DefaultKeyBits)
	require.NoError(t, err)
	tx, err := NewTransaction(ks, "bob", 5)
	require.NoError(t, err)
	tx.Amount = 999 // tamper after signing

	ok, err := VerifyTransaction(tx, ampleBalance, false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyTransactionRejectsOverdraft(t *testing.T) {
	ks, err := wallet.Generate(wallet.DefaultKeyBits)
	require.NoError(t, err)
	tx, err := NewTransaction(ks, "bob", 5)
	require.NoError(t, err)

	broke := func(string) (float64, error) { return 0, nil }
	ok, err := VerifyTransaction(tx, broke, true)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyOpenTransactions(t *testing.T) {
	ks, err := wallet.Generate(wallet.DefaultKeyBits)
	require.NoError(t, err)
	tx, err := NewTransaction(ks, "bob", 5)
	require.NoError(t, err)

	ok, err := VerifyOpenTransactions([]*Transaction{tx}, ampleBalance)
	require.NoError(t, err)
	require.True(t, ok)
}
