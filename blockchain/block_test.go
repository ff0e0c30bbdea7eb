package blockchain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenesisBlockIsFixed(t *testing.T) {
	a := GenesisBlock()
	b := GenesisBlock()
	require.Equal(t, a.Hash(), b.Hash())
	require.Equal(t, uint64(0), a.Index)
	require.Equal(t, "", a.PreviousHash)
	require.Empty(t, a.Transactions)
}

func TestBlockHashChangesWithContent(t *testing.T) {
	base := NewBlock(1, "prev", []*Transaction{CoinbaseTransaction("alice")}, 0, 0)
	changed := NewBlock(1, "prev", []*Transaction{CoinbaseTransaction("bob")}, 0, 0)
	require.NotEqual(t, base.Hash(), changed.Hash())
}

func TestBlockSerializeRoundTrip(t *testing.T) {
	block := NewBlock(3, "prevhash", []*Transaction{CoinbaseTransaction("alice")}, 7, 1234)
	data, err := block.Serialize()
	require.NoError(t, err)

	restored, err := DeserializeBlock(data)
	require.NoError(t, err)
	require.Equal(t, block.Hash(), restored.Hash())
}

func TestTransactionSerializeRoundTrip(t *testing.T) {
	tx := CoinbaseTransaction("alice")
	data, err := tx.Serialize()
	require.NoError(t, err)

	restored, err := DeserializeTransaction(data)
	require.NoError(t, err)
	require.True(t, tx.Equal(restored))
}
