package blockchain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *BalanceIndex {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "balances")
	index, err := OpenBalanceIndex(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func TestBalanceIndexReindexAndGet(t *testing.T) {
	index := openTestIndex(t)

	genesis := GenesisBlock()
	block := NewBlock(1, genesis.Hash(), []*Transaction{
		CoinbaseTransaction("alice"),
		{Sender: "alice", Recipient: "bob", Amount: 3},
	}, 0, 0)

	require.NoError(t, index.Reindex([]*Block{genesis, block}))

	aliceBalance, found, err := index.Get("alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, MiningReward-3, aliceBalance)

	bobBalance, found, err := index.Get("bob")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 3.0, bobBalance)
}

func TestBalanceIndexGetMissingParticipant(t *testing.T) {
	index := openTestIndex(t)
	_, found, err := index.Get("nobody")
	require.NoError(t, err)
	require.False(t, found)
}

func TestBalanceIndexApplyBlockIsIncremental(t *testing.T) {
	index := openTestIndex(t)

	first := NewBlock(1, "genesis", []*Transaction{CoinbaseTransaction("alice")}, 0, 0)
	require.NoError(t, index.ApplyBlock(first))

	second := NewBlock(2, first.Hash(), []*Transaction{
		{Sender: "alice", Recipient: "bob", Amount: 2},
	}, 0, 0)
	require.NoError(t, index.ApplyBlock(second))

	aliceBalance, _, err := index.Get("alice")
	require.NoError(t, err)
	require.Equal(t, MiningReward-2, aliceBalance)
}
