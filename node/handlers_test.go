package node

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/blockchain"
)

type fakeStore struct {
	state blockchain.State
	saved bool
}

func (f *fakeStore) Save(s blockchain.State) error { f.state = s; f.saved = true; return nil }
func (f *fakeStore) Load() (blockchain.State, bool, error) {
	return f.state, f.saved, nil
}

type fakePeerClient struct{}

func (fakePeerClient) BroadcastTransaction(string, *blockchain.Transaction) (int, error) {
	return 201, nil
}
func (fakePeerClient) BroadcastBlock(string, *blockchain.Block) (int, error) { return 201, nil }
func (fakePeerClient) FetchChain(string) ([]*blockchain.Block, error)        { return nil, nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ledger, err := blockchain.New("", "test-node", &fakeStore{}, fakePeerClient{}, nil)
	require.NoError(t, err)
	app := NewApp(ledger, filepath.Join(t.TempDir(), "wallet.txt"))
	return httptest.NewServer(app.Router())
}

func TestIndexServesHTML(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateWalletThenBalance(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/wallet", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var wr walletResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wr))
	require.NotEmpty(t, wr.PublicKey)
	require.Equal(t, 0.0, wr.Funds)

	balResp, err := http.Get(srv.URL + "/balance")
	require.NoError(t, err)
	defer balResp.Body.Close()
	require.Equal(t, http.StatusOK, balResp.StatusCode)
}

func TestBalanceWithNoWalletIs500(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestMineWithoutWalletIs500(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mine", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestMineAfterWalletPaysCoinbase(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	_, err := http.Post(srv.URL+"/wallet", "application/json", nil)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/mine", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var br blockResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&br))
	require.Equal(t, blockchain.MiningReward, br.Funds)
}

func TestSubmitTransactionWithoutWalletIs400(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body, _ := json.Marshal(transactionRequest{Recipient: "bob", Amount: 1})
	resp, err := http.Post(srv.URL+"/transaction", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChainEndpointReturnsGenesis(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chain")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chain []*blockchain.Block
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chain))
	require.Len(t, chain, 1)
}

func TestNodeAddListAndRemove(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body, _ := json.Marshal(nodeRequest{Node: "http://peer-a:5001"})
	addResp, err := http.Post(srv.URL+"/node", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer addResp.Body.Close()
	require.Equal(t, http.StatusCreated, addResp.StatusCode)

	listResp, err := http.Get(srv.URL + "/nodes")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var listed map[string][]string
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
	require.Contains(t, listed["nodes"], "http://peer-a:5001")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/node/http://peer-a:5001", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)
}
