// Package snapshot durably persists a node's ledger state: the chain,
// the open mempool, and the peer set. The authoritative format is the
// line-oriented JSON text file spec.md §4.5 describes; a best-effort
// binary mirror in badger coexists alongside it as an alternate,
// non-authoritative serialisation.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/ledgerd/ledgerd/blockchain"
	"github.com/ledgerd/ledgerd/hashutil"
)

// canonicalBlock mirrors blockchain.Block but renders its transactions
// in the canonical (sender, recipient, signature, amount) field order
// spec.md §4.5 requires of the authoritative snapshot, rather than the
// wire order blockchain.Transaction uses for the REST façade.
type canonicalBlock struct {
	Index        uint64                          `json:"index"`
	PreviousHash string                          `json:"previous_hash"`
	Transactions []hashutil.CanonicalTransaction `json:"transactions"`
	Proof        uint64                          `json:"proof"`
	Timestamp    int64                           `json:"timestamp"`
}


func canonicalizeChain(chain []*blockchain.Block) []canonicalBlock {
	out := make([]canonicalBlock, len(chain))
	for i, block := range chain {
		out[i] = canonicalBlock{
			Index:        block.Index,
			PreviousHash: block.PreviousHash,
			Transactions: block.CanonicalTransactions(),
			Proof:        block.Proof,
			Timestamp:    block.Timestamp,
		}
	}
	return out
}

// Store is the JSON snapshot file plus its optional binary mirror, both
// namespaced by node ID the way the reference node names
// "blockchain-<node-id>.txt" per-instance.
type Store struct {
	path string
	alt  *badger.DB // nil when no alt mirror was configured
}

// Open prepares a Store writing to dir/blockchain-<nodeID>.txt. When
// altDir is non-empty, a badger-backed binary mirror is also opened
// there (component C12); pass an empty altDir to skip it entirely.
func Open(dir, nodeID, altDir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create %s: %w", dir, err)
	}
	store := &Store{path: filepath.Join(dir, fmt.Sprintf("blockchain-%s.txt", nodeID))}

	if altDir != "" {
		opts := badger.DefaultOptions(altDir).WithLoggingLevel(badger.ERROR)
		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("snapshot: open alt mirror: %w", err)
		}
		store.alt = db
	}

	return store, nil
}

// Close releases the alt mirror's badger handles, if one is open.
func (s *Store) Close() error {
	if s.alt == nil {
		return nil
	}
	if err := s.alt.Close(); err != nil {
		return fmt.Errorf("snapshot: close alt mirror: %w", err)
	}
	return nil
}

// Save writes state as three JSON lines: chain, mempool, peers. Write
// failures are returned to the caller but never roll back in-memory
// ledger state (spec.md §7) — the caller logs and continues. A failed
// alt-mirror write never fails the overall Save; JSON is authoritative.
func (s *Store) Save(state blockchain.State) error {
	chainJSON, err := json.Marshal(canonicalizeChain(state.Chain))
	if err != nil {
		return fmt.Errorf("snapshot: marshal chain: %w", err)
	}
	mempoolJSON, err := json.Marshal(state.Mempool)
	if err != nil {
		return fmt.Errorf("snapshot: marshal mempool: %w", err)
	}
	peers := state.Peers
	if peers == nil {
		peers = []string{}
	}
	peersJSON, err := json.Marshal(peers)
	if err != nil {
		return fmt.Errorf("snapshot: marshal peers: %w", err)
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", s.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range [][]byte{chainJSON, mempoolJSON, peersJSON} {
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("snapshot: write %s: %w", s.path, err)
		}
		if _, err := w.WriteString("\n"); err != nil {
			return fmt.Errorf("snapshot: write %s: %w", s.path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("snapshot: flush %s: %w", s.path, err)
	}

	if s.alt != nil {
		if err := s.saveAlt(state); err != nil {
			fmt.Fprintf(os.Stderr, "snapshot: alt mirror write failed: %v\n", err)
		}
	}

	return nil
}

// Load reads the three-line JSON snapshot. A missing file, a short
// file, or a parse error is not fatal: it is reported via the bool
// return (found=false) so the caller falls back to a fresh genesis
// state, per spec.md §4.5.
func (s *Store) Load() (blockchain.State, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return blockchain.State{}, false, nil
	}
	if err != nil {
		return blockchain.State{}, false, nil
	}

	lines := splitLines(data)
	if len(lines) < 3 {
		return blockchain.State{}, false, nil
	}

	var state blockchain.State
	if err := json.Unmarshal(lines[0], &state.Chain); err != nil {
		return blockchain.State{}, false, nil
	}
	if err := json.Unmarshal(lines[1], &state.Mempool); err != nil {
		return blockchain.State{}, false, nil
	}
	if err := json.Unmarshal(lines[2], &state.Peers); err != nil {
		return blockchain.State{}, false, nil
	}

	return state, true, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

var (
	altChainKey   = []byte("chain")
	altMempoolKey = []byte("mempool")
)

// saveAlt writes the binary mirror: the chain and the mempool are each
// stored as one badger value (under the "chain" and "mempool" keys) of
// length-prefixed gob-encoded records. The peer set is not mirrored.
// It is purely
// an accelerator for tooling that prefers Go's native encoding over
// JSON; nothing in this repo reads it back, matching spec.md §4.5's
// "only the JSON form is authoritative".
func (s *Store) saveAlt(state blockchain.State) error {
	return s.alt.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(altChainKey); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		chainBlob, err := encodeBlocks(state.Chain)
		if err != nil {
			return err
		}
		if err := txn.Set(altChainKey, chainBlob); err != nil {
			return err
		}

		mempoolBlob, err := encodeTransactions(state.Mempool)
		if err != nil {
			return err
		}
		return txn.Set(altMempoolKey, mempoolBlob)
	})
}

func encodeBlocks(chain []*blockchain.Block) ([]byte, error) {
	var buf []byte
	for _, block := range chain {
		encoded, err := block.Serialize()
		if err != nil {
			return nil, err
		}
		buf = appendFramed(buf, encoded)
	}
	return buf, nil
}

func encodeTransactions(txs []*blockchain.Transaction) ([]byte, error) {
	var buf []byte
	for _, tx := range txs {
		encoded, err := tx.Serialize()
		if err != nil {
			return nil, err
		}
		buf = appendFramed(buf, encoded)
	}
	return buf, nil
}

// appendFramed appends data prefixed by its own length so the alt
// mirror can hold a variable number of gob-encoded records in one
// badger value.
func appendFramed(buf, data []byte) []byte {
	length := len(data)
	buf = append(buf,
		byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
	return append(buf, data...)
}
