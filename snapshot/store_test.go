package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/blockchain"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "node-1", "")
	require.NoError(t, err)

	genesis := blockchain.GenesisBlock()
	block := blockchain.NewBlock(1, genesis.Hash(), []*blockchain.Transaction{
		blockchain.CoinbaseTransaction("alice"),
	}, 7, 42)

	state := blockchain.State{
		Chain:   []*blockchain.Block{genesis, block},
		Mempool: []*blockchain.Transaction{{Sender: "alice", Recipient: "bob", Amount: 2}},
		Peers:   []string{"http://peer-a:5000"},
	}

	require.NoError(t, store.Save(state))

	loaded, found, err := store.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, loaded.Chain, 2)
	require.Equal(t, genesis.Hash(), loaded.Chain[0].Hash())
	require.Equal(t, block.Hash(), loaded.Chain[1].Hash())
	require.Len(t, loaded.Mempool, 1)
	require.Equal(t, []string{"http://peer-a:5000"}, loaded.Peers)
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "node-1", "")
	require.NoError(t, err)

	state, found, err := store.Load()
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, state.Chain)
}

func TestLoadCorruptFileDegradesNonFatally(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "node-1", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "blockchain-node-1.txt"), []byte("not json\n"), 0o644))

	state, found, err := store.Load()
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, state.Chain)
}

func TestSaveWithAltMirrorDoesNotFailJSONSave(t *testing.T) {
	dir := t.TempDir()
	altDir := filepath.Join(dir, "alt")
	store, err := Open(dir, "node-1", altDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	state := blockchain.State{
		Chain:   []*blockchain.Block{blockchain.GenesisBlock()},
		Mempool: nil,
		Peers:   nil,
	}
	require.NoError(t, store.Save(state))

	loaded, found, err := store.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, loaded.Chain, 1)
}
