package blockchain

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
)

// balancePrefix namespaces every balance entry this index stores,
// mirroring the teacher's utxo-prefixed key layout.
var balancePrefix = []byte("balance-")

// BalanceIndex is a badger-backed accelerator for participant
// balances. It is never authoritative — Ledger.Balance always folds
// the full chain and mempool on a miss or when the index is absent —
// but it turns repeated balance lookups on a long chain from an O(n)
// rescan into an O(1) read, the same role the teacher's UTXOSet played
// against its own slower FindUnspentTransactions path.
type BalanceIndex struct {
	db *badger.DB
}

// OpenBalanceIndex opens (creating if necessary) the badger database
// at dir that backs the balance index.
func OpenBalanceIndex(dir string) (*BalanceIndex, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("blockchain: open balance index: %w", err)
	}
	return &BalanceIndex{db: db}, nil
}

// Close releases the underlying badger handles.
func (bi *BalanceIndex) Close() error {
	if bi == nil {
		return nil
	}
	if err := bi.db.Close(); err != nil {
		return fmt.Errorf("blockchain: close balance index: %w", err)
	}
	return nil
}

func balanceKey(participant string) []byte {
	return append(append([]byte{}, balancePrefix...), []byte(participant)...)
}

func encodeBalance(amount float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(amount))
	return buf
}

func decodeBalance(data []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(data))
}

// Reindex rebuilds the entire balance index from scratch by folding
// every transaction in chain, the same full-rescan role the teacher's
// UTXOSet.Reindex played against FindUTXO.
func (bi *BalanceIndex) Reindex(chain []*Block) error {
	balances := make(map[string]float64)
	for _, block := range chain {
		for _, tx := range block.Transactions {
			if !tx.IsCoinbase() {
				balances[tx.Sender] -= tx.Amount
			}
			balances[tx.Recipient] += tx.Amount
		}
	}
	return bi.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var stale [][]byte
		for it.Seek(balancePrefix); it.ValidForPrefix(balancePrefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for participant, balance := range balances {
			if err := txn.Set(balanceKey(participant), encodeBalance(balance)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns a participant's indexed balance. The bool is false when
// the participant has no entry (never transacted), in which case the
// caller should treat the balance as 0 rather than an error.
func (bi *BalanceIndex) Get(participant string) (float64, bool, error) {
	var balance float64
	found := false
	err := bi.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(balanceKey(participant))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			balance = decodeBalance(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("blockchain: read balance index: %w", err)
	}
	return balance, found, nil
}

// ApplyBlock incrementally folds one newly chained block's
// transactions into the index, the incremental counterpart to the
// teacher's UTXOSet.Update called once per mined/received block
// instead of rescanning the whole chain.
func (bi *BalanceIndex) ApplyBlock(block *Block) error {
	return bi.db.Update(func(txn *badger.Txn) error {
		delta := make(map[string]float64)
		for _, tx := range block.Transactions {
			if !tx.IsCoinbase() {
				delta[tx.Sender] -= tx.Amount
			}
			delta[tx.Recipient] += tx.Amount
		}
		for participant, change := range delta {
			current := 0.0
			item, err := txn.Get(balanceKey(participant))
			if err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			if err == nil {
				if verr := item.Value(func(val []byte) error {
					current = decodeBalance(val)
					return nil
				}); verr != nil {
					return verr
				}
			}
			if err := txn.Set(balanceKey(participant), encodeBalance(current+change)); err != nil {
				return err
			}
		}
		return nil
	})
}
