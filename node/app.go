// Package node is the HTTP façade (C9): it translates the REST surface
// in spec.md §6 into calls against the core Ledger and the local
// wallet. It is deliberately thin — validation of field shapes and
// status-code selection only; every actual rule (signatures, funds,
// proof-of-work, chain admission) lives in blockchain.Ledger.
package node

import (
	"sync"

	"github.com/ledgerd/ledgerd/blockchain"
	"github.com/ledgerd/ledgerd/wallet"
)

// App holds the façade's mutable front-end state: the local wallet,
// which may not exist yet when the node starts. The Ledger itself
// already serialises its own state behind one mutex; App adds a
// second, narrower lock just for the keystore, since provisioning a
// wallet (POST/GET /wallet) and reading it (every other handler) can
// race across concurrent requests.
type App struct {
	mu        sync.RWMutex
	keyStore  *wallet.KeyStore
	walletPath string

	ledger *blockchain.Ledger
}

// NewApp constructs a façade bound to ledger, persisting any
// provisioned wallet at walletPath. No wallet is loaded automatically;
// callers wanting to resume an existing one should call LoadWallet.
func NewApp(ledger *blockchain.Ledger, walletPath string) *App {
	return &App{ledger: ledger, walletPath: walletPath}
}

// LoadWallet attempts to load a previously saved keypair at startup,
// binding it to the ledger on success. A missing file is not an error
// here — the node simply starts with no wallet provisioned yet, the
// same "may be absent before a wallet is provisioned" state spec.md §3
// allows.
func (a *App) LoadWallet() error {
	ks, err := wallet.Load(a.walletPath)
	if err != nil {
		return nil
	}
	a.mu.Lock()
	a.keyStore = ks
	a.mu.Unlock()
	a.ledger.Rebind(ks.PublicKeyHex())
	return nil
}

func (a *App) keys() (*wallet.KeyStore, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.keyStore, a.keyStore != nil
}

func (a *App) setKeys(ks *wallet.KeyStore) {
	a.mu.Lock()
	a.keyStore = ks
	a.mu.Unlock()
	a.ledger.Rebind(ks.PublicKeyHex())
}
