package node

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/ledgerd/ledgerd/blockchain"
	"github.com/ledgerd/ledgerd/wallet"
)

const indexHTML = `<!doctype html>
<html><head><title>ledgerd</title></head>
<body><h1>ledgerd node</h1><p>See /chain, /balance, /wallet.</p></body></html>`

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleIndex serves the minimal HTML landing page.
func (a *App) handleIndex(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexHTML))
}

type walletResponse struct {
	PublicKey  string  `json:"public_key"`
	PrivateKey string  `json:"private_key"`
	Funds      float64 `json:"funds"`
}

// handleCreateWallet generates a fresh keypair, persists it, and rebinds
// the ledger's coinbase destination to it (spec.md §6 POST /wallet).
func (a *App) handleCreateWallet(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	ks, err := wallet.Generate(wallet.DefaultKeyBits)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := wallet.Save(a.walletPath, ks); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.setKeys(ks)

	funds, err := a.ledger.Balance(ks.PublicKeyHex())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, walletResponse{
		PublicKey:  ks.PublicKeyHex(),
		PrivateKey: ks.PrivateKeyHex(),
		Funds:      funds,
	})
}

// handleLoadWallet loads the on-disk keypair and rebinds the ledger to
// it (spec.md §6 GET /wallet).
func (a *App) handleLoadWallet(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	ks, err := wallet.Load(a.walletPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.setKeys(ks)

	funds, err := a.ledger.Balance(ks.PublicKeyHex())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, walletResponse{
		PublicKey:  ks.PublicKeyHex(),
		PrivateKey: ks.PrivateKeyHex(),
		Funds:      funds,
	})
}

// handleBalance reports the local wallet's current funds (spec.md §6
// GET /balance).
func (a *App) handleBalance(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	ks, ok := a.keys()
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]bool{"wallet_set_up": false})
		return
	}
	funds, err := a.ledger.Balance(ks.PublicKeyHex())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"funds": funds})
}

type transactionRequest struct {
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
}

type transactionResponse struct {
	Transaction *blockchain.Transaction `json:"transaction"`
	Funds       float64                 `json:"funds"`
}

// handleSubmitTransaction signs a locally originated transfer with the
// node's own wallet, queues it, and fans it out to peers (spec.md §6
// POST /transaction).
func (a *App) handleSubmitTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ks, ok := a.keys()
	if !ok {
		writeError(w, http.StatusBadRequest, "no wallet set up")
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Recipient == "" || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "recipient and a positive amount are required")
		return
	}

	tx, err := blockchain.NewTransaction(ks, req.Recipient, req.Amount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ok, err = a.ledger.AddTransaction(tx, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusInternalServerError, "transaction rejected: insufficient funds or needs resolving")
		return
	}

	funds, err := a.ledger.Balance(ks.PublicKeyHex())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, transactionResponse{Transaction: tx, Funds: funds})
}

type broadcastTransactionRequest struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Signature string  `json:"signature"`
}

// handleBroadcastTransaction admits a peer-originated transaction
// without re-broadcasting it (spec.md §6 POST /broadcast-transaction,
// is_receiving=true).
func (a *App) handleBroadcastTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req broadcastTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Sender == "" || req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "sender and recipient are required")
		return
	}

	tx := &blockchain.Transaction{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Signature: req.Signature,
	}

	ok, err := a.ledger.AddTransaction(tx, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "transaction failed validation")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "transaction accepted"})
}

type blockResponse struct {
	Block *blockchain.Block `json:"block"`
	Funds float64           `json:"funds"`
}

// handleMine mines one block from the current mempool (spec.md §6
// POST /mine).
func (a *App) handleMine(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	ks, ok := a.keys()
	if !ok {
		writeError(w, http.StatusInternalServerError, "no wallet set up")
		return
	}

	block, err := a.ledger.MineBlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	funds, err := a.ledger.Balance(ks.PublicKeyHex())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, blockResponse{Block: block, Funds: funds})
}

type broadcastBlockRequest struct {
	Block *blockchain.Block `json:"block"`
}

// handleBroadcastBlock admits a peer-mined block. A rejected block whose
// index is at or below the local tip's is treated as arriving from a
// shorter or stale chain (409, triggering the peer's own resolve); any
// other admission failure (an index further ahead than tip+1, a hash
// mismatch, a bad proof) is 400.
func (a *App) handleBroadcastBlock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req broadcastBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Block == nil {
		writeError(w, http.StatusBadRequest, "malformed block payload")
		return
	}

	tip := a.ledger.Chain()
	lastIndex := tip[len(tip)-1].Index

	ok, err := a.ledger.AddBlock(req.Block)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		if req.Block.Index <= lastIndex {
			writeError(w, http.StatusConflict, "block is from a shorter or stale chain")
			return
		}
		writeError(w, http.StatusBadRequest, "block failed validation")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "block accepted"})
}

// handleChain returns the full local chain (spec.md §6 GET /chain).
func (a *App) handleChain(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, a.ledger.Chain())
}

type nodeRequest struct {
	Node string `json:"node"`
}

// handleAddNode registers a peer endpoint (spec.md §6 POST /node).
func (a *App) handleAddNode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req nodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Node == "" {
		writeError(w, http.StatusBadRequest, "node endpoint is required")
		return
	}
	a.ledger.AddPeer(req.Node)
	writeJSON(w, http.StatusCreated, map[string]string{"message": fmt.Sprintf("node %s added", req.Node)})
}

// handleRemoveNode unregisters a peer endpoint (spec.md §6
// DELETE /node/<url>).
func (a *App) handleRemoveNode(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	url := strings.TrimPrefix(ps.ByName("url"), "/")
	if url == "" {
		writeError(w, http.StatusBadRequest, "node endpoint is required")
		return
	}
	a.ledger.RemovePeer(url)
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("node %s removed", url)})
}

// handleListNodes returns the current peer set (spec.md §6 GET /nodes).
func (a *App) handleListNodes(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string][]string{"nodes": a.ledger.Peers()})
}

// handleResolve runs conflict resolution against every known peer. Not
// part of the minimal §6 table but needed for S5; kept alongside the
// rest of the façade since nothing else drives resolve() automatically.
func (a *App) handleResolve(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	replaced, err := a.ledger.Resolve()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"replaced": replaced,
		"chain":    a.ledger.Chain(),
	})
}
