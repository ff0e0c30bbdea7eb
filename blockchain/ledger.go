package blockchain

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// State is the full persisted shape of a ledger: the chain, the
// pending mempool, and the peer set, in the order the snapshot file
// stores them (spec.md §4.5).
type State struct {
	Chain   []*Block      `json:"chain"`
	Mempool []*Transaction `json:"mempool"`
	Peers   []string      `json:"peers"`
}

// SnapshotStore persists and restores a Ledger's State. Implemented by
// the snapshot package; declared here so Ledger can depend on it
// without blockchain importing snapshot (which itself depends on
// blockchain's types).
type SnapshotStore interface {
	Save(State) error
	Load() (State, bool, error)
}

// PeerClient performs the outbound side of gossip: telling peers about
// new transactions and blocks, and fetching a peer's chain for
// conflict resolution. Implemented by the peer package. The returned
// status code is the peer's HTTP response status; a connection error
// that never reaches the peer is reported via err instead and carries
// no status code the caller should act on.
type PeerClient interface {
	BroadcastTransaction(peer string, tx *Transaction) (statusCode int, err error)
	BroadcastBlock(peer string, block *Block) (statusCode int, err error)
	FetchChain(peer string) ([]*Block, error)
}

// Ledger is the single piece of mutable state this node owns: its
// chain, mempool and peer set, guarded by one coarse lock per
// spec.md §5 ("a single mutex guards chain+mempool+peers as one unit;
// no finer-grained locking"). Every mutating method takes the lock,
// mutates in memory and triggers a snapshot while still holding it;
// AddTransaction and MineBlock broadcast to peers only after releasing
// it, and Resolve fetches peer chains before taking it.
type Ledger struct {
	mu sync.Mutex

	chain   []*Block
	mempool []*Transaction
	peers   map[string]struct{}

	publicKey string
	nodeID    string

	store      SnapshotStore
	peerClient PeerClient
	index      *BalanceIndex

	resolveConflicts bool
}

// New constructs a Ledger seeded with state restored from store (or a
// fresh genesis chain when nothing was restored), owned by the node
// whose public key is publicKey.
func New(publicKey, nodeID string, store SnapshotStore, peerClient PeerClient, index *BalanceIndex) (*Ledger, error) {
	l := &Ledger{
		chain:      []*Block{GenesisBlock()},
		mempool:    nil,
		peers:      make(map[string]struct{}),
		publicKey:  publicKey,
		nodeID:     nodeID,
		store:      store,
		peerClient: peerClient,
		index:      index,
	}

	state, found, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("blockchain: load snapshot: %w", err)
	}
	if found && len(state.Chain) > 0 {
		l.chain = state.Chain
		l.mempool = state.Mempool
		for _, peer := range state.Peers {
			l.peers[peer] = struct{}{}
		}
	}

	if l.index != nil {
		if err := l.index.Reindex(l.chain); err != nil {
			return nil, fmt.Errorf("blockchain: reindex balances: %w", err)
		}
	}

	return l, nil
}

// Chain returns a snapshot copy of the current chain.
func (l *Ledger) Chain() []*Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Block{}, l.chain...)
}

// Mempool returns a snapshot copy of the pending transaction set.
func (l *Ledger) Mempool() []*Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Transaction{}, l.mempool...)
}

// Balance returns participant's spendable balance: every amount received
// in the settled chain, minus every amount sent in the settled chain and
// in the open mempool. Pending receipts are not counted.
func (l *Ledger) Balance(participant string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(participant)
}

func (l *Ledger) balanceLocked(participant string) (float64, error) {
	balance, err := l.chainedBalance(participant)
	if err != nil {
		return 0, err
	}
	for _, tx := range l.mempool {
		if tx.Sender == participant {
			balance -= tx.Amount
		}
	}
	return balance, nil
}

// chainedBalance is participant's balance from settled blocks only,
// preferring the BalanceIndex accelerator when one is configured and
// it already has an entry, and falling back to a full fold over the
// chain otherwise.
func (l *Ledger) chainedBalance(participant string) (float64, error) {
	if l.index != nil {
		if balance, found, err := l.index.Get(participant); err != nil {
			return 0, fmt.Errorf("blockchain: balance index lookup: %w", err)
		} else if found {
			return balance, nil
		}
	}

	var balance float64
	for _, block := range l.chain {
		for _, tx := range block.Transactions {
			if tx.Sender == participant && !tx.IsCoinbase() {
				balance -= tx.Amount
			}
			if tx.Recipient == participant {
				balance += tx.Amount
			}
		}
	}
	return balance, nil
}

// AddTransaction validates and queues tx. When isReceiving is false
// (a local submission, not a peer broadcast) it is also fanned out to
// every known peer via POST /broadcast-transaction; a peer responding
// 400 or 500 causes this call to return false — "needs resolving" —
// without undoing the local append, per spec.md §4.4.
func (l *Ledger) AddTransaction(tx *Transaction, isReceiving bool) (bool, error) {
	var peers []string

	ok, err := func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		valid, err := VerifyTransaction(tx, l.balanceLocked, true)
		if err != nil {
			return false, err
		}
		if !valid {
			return false, nil
		}
		for _, existing := range l.mempool {
			if existing.Equal(tx) {
				return false, nil
			}
		}

		l.mempool = append(l.mempool, tx)
		if err := l.snapshotLocked(); err != nil {
			return false, err
		}
		peers = l.peerList()
		return true, nil
	}()
	if err != nil || !ok || isReceiving {
		return ok, err
	}

	needsResolve := false
	for _, peer := range peers {
		status, err := l.peerClient.BroadcastTransaction(peer, tx)
		if err != nil {
			continue
		}
		if status == 400 || status == 500 {
			needsResolve = true
		}
	}
	return !needsResolve, nil
}

// MineBlock assembles every currently open transaction plus a coinbase
// reward into a new block, searches for a valid proof, chains it, and
// broadcasts it to every known peer.
func (l *Ledger) MineBlock() (*Block, error) {
	var peers []string
	var mined *Block

	err := func() error {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.publicKey == "" {
			return nil
		}

		valid, err := VerifyOpenTransactions(l.mempool, l.balanceLocked)
		if err != nil {
			return err
		}
		if !valid {
			return fmt.Errorf("blockchain: mempool contains an invalid transaction")
		}

		last := l.chain[len(l.chain)-1]
		txs := append(append([]*Transaction{}, l.mempool...), CoinbaseTransaction(l.publicKey))

		lastHash := last.Hash()
		var proof uint64
		for {
			if ValidProof(dropLast(txs), lastHash, proof) {
				break
			}
			proof++
		}

		block := NewBlock(last.Index+1, lastHash, txs, proof, time.Now().Unix())
		l.chain = append(l.chain, block)
		l.mempool = nil

		if l.index != nil {
			if err := l.index.ApplyBlock(block); err != nil {
				return fmt.Errorf("blockchain: update balance index: %w", err)
			}
		}

		if err := l.snapshotLocked(); err != nil {
			return err
		}
		peers = l.peerList()
		mined = block
		return nil
	}()
	if err != nil {
		return nil, err
	}

	needsResolve := false
	for _, peer := range peers {
		status, err := l.peerClient.BroadcastBlock(peer, mined)
		if err != nil {
			continue
		}
		if status == 409 {
			needsResolve = true
		}
	}
	if needsResolve {
		l.mu.Lock()
		l.resolveConflicts = true
		l.mu.Unlock()
	}
	return mined, nil
}

// AddBlock accepts a block gossiped from a peer: it must extend the
// current tip, reference the correct previous hash, and carry a valid
// proof. Transactions it settles are removed from the mempool.
func (l *Ledger) AddBlock(block *Block) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.chain[len(l.chain)-1]
	if block.Index != last.Index+1 {
		return false, nil
	}
	if block.PreviousHash != last.Hash() {
		return false, nil
	}
	if !ValidProof(dropLast(block.Transactions), block.PreviousHash, block.Proof) {
		return false, nil
	}

	l.chain = append(l.chain, block)
	l.removeChainedFromMempool(block)

	if l.index != nil {
		if err := l.index.ApplyBlock(block); err != nil {
			return false, fmt.Errorf("blockchain: update balance index: %w", err)
		}
	}

	if err := l.snapshotLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) removeChainedFromMempool(block *Block) {
	if len(l.mempool) == 0 {
		return
	}
	remaining := l.mempool[:0]
	for _, pending := range l.mempool {
		chained := false
		for _, settled := range block.Transactions {
			if pending.Equal(settled) {
				chained = true
				break
			}
		}
		if !chained {
			remaining = append(remaining, pending)
		}
	}
	l.mempool = remaining
}

// Resolve implements the longest-chain conflict rule of spec.md §5:
// fetch every peer's chain, and if any validated chain is strictly
// longer than ours, adopt the first one seen at the winning length.
func (l *Ledger) Resolve() (bool, error) {
	peers := l.Peers()

	var winner []*Block
	for _, peer := range peers {
		candidate, err := l.peerClient.FetchChain(peer)
		if err != nil {
			continue
		}
		if len(candidate) == 0 || !VerifyChain(candidate) {
			continue
		}
		if winner == nil || len(candidate) > len(winner) {
			winner = candidate
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if winner == nil || len(winner) <= len(l.chain) {
		return false, nil
	}

	l.chain = winner
	l.mempool = nil
	l.resolveConflicts = false
	if l.index != nil {
		if err := l.index.Reindex(l.chain); err != nil {
			return false, fmt.Errorf("blockchain: reindex balances: %w", err)
		}
	}
	if err := l.snapshotLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// AddPeer registers a peer address for future gossip and conflict
// resolution.
func (l *Ledger) AddPeer(peer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[peer] = struct{}{}
	_ = l.snapshotLocked()
}

// RemovePeer unregisters a peer address.
func (l *Ledger) RemovePeer(peer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.peers, peer)
	_ = l.snapshotLocked()
}

// Peers returns the current peer set as a slice.
func (l *Ledger) Peers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peerList()
}

func (l *Ledger) peerList() []string {
	out := make([]string, 0, len(l.peers))
	for peer := range l.peers {
		out = append(out, peer)
	}
	return out
}

// snapshotLocked persists the current state. Must be called with mu
// held. A snapshot write failure is logged and swallowed, so it always
// returns nil: a failed snapshot does not roll back in-memory state, it
// only risks losing the latest change on restart.
func (l *Ledger) snapshotLocked() error {
	state := State{
		Chain:   l.chain,
		Mempool: l.mempool,
		Peers:   l.peerList(),
	}
	if err := l.store.Save(state); err != nil {
		log.Printf("blockchain: save snapshot: %v", err)
	}
	return nil
}

// Snapshot forces an immediate save of the current state, independent
// of any mutation. Used by the process shutdown path to attempt a
// final write before exit; a failed write is logged like any other.
func (l *Ledger) Snapshot() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// ResolveConflicts reports whether a peer flagged this node's chain as
// stale (a 409 from /broadcast-block) since the last successful
// Resolve, meaning a conflict-resolution pass is now due.
func (l *Ledger) ResolveConflicts() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolveConflicts
}

// PublicKey returns the owning node's signing identity, the address
// coinbase rewards are paid to.
func (l *Ledger) PublicKey() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.publicKey
}

// Rebind points the ledger's coinbase destination at a newly
// provisioned wallet, leaving chain, mempool and peers untouched. The
// façade calls this after POST/GET /wallet creates or loads a keypair.
func (l *Ledger) Rebind(publicKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.publicKey = publicKey
}

// NodeID returns the node's local identifier, used to namespace its
// on-disk snapshot and balance-index directories.
func (l *Ledger) NodeID() string {
	return l.nodeID
}
