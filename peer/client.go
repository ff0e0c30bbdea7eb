// Package peer implements the outbound side of gossip: the three RPCs
// a node makes to another node's HTTP façade (spec.md §4.6). Every
// call is best-effort — a peer that cannot be reached is skipped, the
// same "connection errors are non-fatal, continue to the next peer"
// policy the reference node's SendData followed for raw TCP.
package peer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ledgerd/ledgerd/blockchain"
)

// DefaultTimeout bounds every outbound peer call so one slow or
// unreachable peer cannot stall mining or conflict resolution
// (spec.md §5).
const DefaultTimeout = 3 * time.Second

// Client is the net/http-backed blockchain.PeerClient implementation.
type Client struct {
	httpClient *http.Client
}

// New returns a Client whose requests time out after timeout. A
// timeout of 0 selects DefaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

type transactionPayload struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Signature string  `json:"signature"`
}

type blockBroadcastPayload struct {
	Block *blockchain.Block `json:"block"`
}

// BroadcastTransaction POSTs tx to peer's /broadcast-transaction
// endpoint and reports the HTTP status it returned. A connection
// error (peer unreachable) is returned as err with statusCode 0; the
// caller treats that as "skip this peer", not a rejection.
func (c *Client) BroadcastTransaction(peer string, tx *blockchain.Transaction) (int, error) {
	body, err := json.Marshal(transactionPayload{
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Amount:    tx.Amount,
		Signature: tx.Signature,
	})
	if err != nil {
		return 0, fmt.Errorf("peer: marshal transaction: %w", err)
	}
	return c.post(peer+"/broadcast-transaction", body)
}

// BroadcastBlock POSTs block to peer's /broadcast-block endpoint.
func (c *Client) BroadcastBlock(peer string, block *blockchain.Block) (int, error) {
	body, err := json.Marshal(blockBroadcastPayload{Block: block})
	if err != nil {
		return 0, fmt.Errorf("peer: marshal block: %w", err)
	}
	return c.post(peer+"/broadcast-block", body)
}

// FetchChain GETs peer's full chain for conflict resolution.
func (c *Client) FetchChain(peer string) ([]*blockchain.Block, error) {
	resp, err := c.httpClient.Get(peer + "/chain")
	if err != nil {
		return nil, fmt.Errorf("peer: fetch chain from %s: %w", peer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: %s returned status %d for /chain", peer, resp.StatusCode)
	}

	var chain []*blockchain.Block
	if err := json.NewDecoder(resp.Body).Decode(&chain); err != nil {
		return nil, fmt.Errorf("peer: decode chain from %s: %w", peer, err)
	}
	return chain, nil
}

func (c *Client) post(url string, body []byte) (int, error) {
	resp, err := c.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("peer: post to %s: %w", url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
