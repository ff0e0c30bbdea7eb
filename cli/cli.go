// Package cli wires the ledgerd binary's three front ends — wallet
// management, the HTTP façade, and an interactive menu — onto the
// core Ledger. It is the thin operator surface spec.md §6 calls
// "not contractual": nothing here is part of the replicated protocol.
package cli

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"github.com/vrecan/death/v3"

	"github.com/ledgerd/ledgerd/blockchain"
	"github.com/ledgerd/ledgerd/node"
	"github.com/ledgerd/ledgerd/peer"
	"github.com/ledgerd/ledgerd/snapshot"
	"github.com/ledgerd/ledgerd/wallet"
)

// New builds the ledgerd command-line application: wallet, serve, menu.
func New() *cli.App {
	return &cli.App{
		Name:  "ledgerd",
		Usage: "a peer-to-peer replicated ledger node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "node-id", Usage: "this node's identifier, namespaces its on-disk state (default: the bound port for serve, a fresh uuid4 otherwise)"},
			&cli.StringFlag{Name: "data-dir", Value: "./data", Usage: "directory holding wallet and snapshot files"},
			&cli.StringSliceFlag{Name: "peer", Usage: "peer endpoint to register at startup (repeatable)"},
		},
		Commands: []*cli.Command{
			walletCommand(),
			serveCommand(),
			menuCommand(),
		},
	}
}

func walletPath(dataDir, nodeID string) string {
	return filepath.Join(dataDir, fmt.Sprintf("wallet-%s.txt", nodeID))
}

// resolveNodeID mirrors the reference node's commented-out self.id =
// str(uuid4()) for commands with no natural default of their own
// (wallet, menu). serve instead defaults --node-id to its bound port
// (spec.md §3), since that's stable across restarts, where a fresh
// uuid per run would never find the previous run's snapshot/wallet.
func resolveNodeID(c *cli.Context) string {
	if id := c.String("node-id"); id != "" {
		return id
	}
	return uuid.New().String()
}

func walletCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "create or inspect this node's signing keypair",
		Subcommands: []*cli.Command{
			{
				Name:  "new",
				Usage: "generate a fresh keypair and persist it",
				Action: func(c *cli.Context) error {
					dataDir, nodeID := c.String("data-dir"), resolveNodeID(c)
					if err := os.MkdirAll(dataDir, 0o755); err != nil {
						return err
					}
					ks, err := wallet.Generate(wallet.DefaultKeyBits)
					if err != nil {
						return err
					}
					path := walletPath(dataDir, nodeID)
					if err := wallet.Save(path, ks); err != nil {
						return err
					}
					color.Green("wallet created at %s", path)
					fmt.Println("public key:", ks.PublicKeyHex())
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "print the persisted public key",
				Action: func(c *cli.Context) error {
					ks, err := wallet.Load(walletPath(c.String("data-dir"), resolveNodeID(c)))
					if err != nil {
						return err
					}
					fmt.Println("public key:", ks.PublicKeyHex())
					return nil
				},
			},
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the HTTP façade on --port (default 5000)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Value: 5000},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			nodeID := c.String("node-id")
			if nodeID == "" {
				nodeID = strconv.Itoa(port)
			}
			app, stack, err := bootstrap(c, nodeID)
			if err != nil {
				return err
			}
			defer stack.close()

			srv := node.NewApp(stack.ledger, app.walletFile)
			_ = srv.LoadWallet()

			addr := fmt.Sprintf("0.0.0.0:%d", port)
			color.Cyan("ledgerd node %s listening on %s", stack.ledger.NodeID(), addr)

			listening := make(chan struct{})
			go func() {
				close(listening)
				if err := startHTTP(addr, srv.Router()); err != nil {
					color.Red("server error: %v", err)
				}
			}()
			<-listening

			waitForShutdown(stack)
			return nil
		},
	}
}

func menuCommand() *cli.Command {
	return &cli.Command{
		Name:  "menu",
		Usage: "interactive console: add a transaction, mine, print the chain, verify the mempool",
		Action: func(c *cli.Context) error {
			app, stack, err := bootstrap(c, resolveNodeID(c))
			if err != nil {
				return err
			}
			defer stack.close()
			ks, _ := wallet.Load(app.walletFile) // nil is fine; addTransactionInteractive reports it
			runMenu(stack.ledger, ks)
			return nil
		},
	}
}

type bootstrapped struct {
	walletFile string
}

type stack struct {
	ledger  *blockchain.Ledger
	store   *snapshot.Store
	balance *blockchain.BalanceIndex
}

func (s *stack) close() {
	if s.balance != nil {
		_ = s.balance.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

func bootstrap(c *cli.Context, nodeID string) (*bootstrapped, *stack, error) {
	dataDir := c.String("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, err
	}

	walletFile := walletPath(dataDir, nodeID)
	publicKey := ""
	if ks, err := wallet.Load(walletFile); err == nil {
		publicKey = ks.PublicKeyHex()
	}

	store, err := snapshot.Open(dataDir, nodeID, filepath.Join(dataDir, "alt-"+nodeID))
	if err != nil {
		return nil, nil, err
	}

	balanceIndex, err := blockchain.OpenBalanceIndex(filepath.Join(dataDir, "balance-"+nodeID))
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	peerClient := peer.New(0)
	ledger, err := blockchain.New(publicKey, nodeID, store, peerClient, balanceIndex)
	if err != nil {
		_ = balanceIndex.Close()
		_ = store.Close()
		return nil, nil, err
	}
	for _, p := range c.StringSlice("peer") {
		ledger.AddPeer(p)
	}

	return &bootstrapped{walletFile: walletFile}, &stack{ledger: ledger, store: store, balance: balanceIndex}, nil
}

// runMenu is the interactive loop, modeled on the reference node's
// listen_for_input: add a transaction, mine, print the chain, verify
// the mempool, quit.
func runMenu(ledger *blockchain.Ledger, ks *wallet.KeyStore) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Println("\nPlease choose")
		fmt.Println("1: Add a new transaction value")
		fmt.Println("2: Mine a new block")
		fmt.Println("3: Output the blockchain blocks")
		fmt.Println("4: Check open transaction validity")
		fmt.Println("q: Quit")

		choice := readLine(reader)
		switch choice {
		case "1":
			addTransactionInteractive(ledger, ks, reader)
		case "2":
			if _, err := ledger.MineBlock(); err != nil {
				color.Red("mining failed: %v", err)
			} else {
				color.Green("mined a new block")
			}
		case "3":
			printChain(ledger)
		case "4":
			verifyMempool(ledger)
		case "q":
			return
		default:
			color.Yellow("input was invalid, please pick a value from the list")
		}

		if !blockchain.VerifyChain(ledger.Chain()) {
			printChain(ledger)
			color.Red("invalid blockchain!")
			return
		}
		balance, err := ledger.Balance(ledger.PublicKey())
		if err == nil {
			fmt.Printf("balance of %s is %.2f\n", ledger.NodeID(), balance)
		}
	}
}

func addTransactionInteractive(ledger *blockchain.Ledger, ks *wallet.KeyStore, reader *bufio.Reader) {
	if ks == nil {
		color.Red("no wallet set up; run `ledgerd wallet new` first")
		return
	}
	fmt.Print("recipient: ")
	recipient := readLine(reader)
	fmt.Print("amount: ")
	amountStr := readLine(reader)
	amount, err := strconv.ParseFloat(strings.TrimSpace(amountStr), 64)
	if err != nil {
		color.Red("invalid amount: %v", err)
		return
	}

	tx, err := blockchain.NewTransaction(ks, recipient, amount)
	if err != nil {
		color.Red("failed to sign transaction: %v", err)
		return
	}
	ok, err := ledger.AddTransaction(tx, false)
	if err != nil {
		color.Red("transaction failed: %v", err)
		return
	}
	if ok {
		color.Green("added transaction!")
	} else {
		color.Red("transaction failed!")
	}
	fmt.Println(ledger.Mempool())
}

func printChain(ledger *blockchain.Ledger) {
	iter := blockchain.Iterator(ledger.Chain())
	for {
		block := iter.Next()
		if block == nil {
			break
		}
		fmt.Printf("index %d hash %s previous %s\n", block.Index, block.Hash(), block.PreviousHash)
		for _, tx := range block.Transactions {
			fmt.Printf("  %s -> %s : %.2f\n", tx.Sender, tx.Recipient, tx.Amount)
		}
		if block.PreviousHash == "" {
			break
		}
	}
}

func verifyMempool(ledger *blockchain.Ledger) {
	valid, err := blockchain.VerifyOpenTransactions(ledger.Mempool(), func(p string) (float64, error) { return ledger.Balance(p) })
	if err != nil {
		color.Red("verification error: %v", err)
		return
	}
	if valid {
		color.Green("all transactions are valid!")
	} else {
		color.Red("there are invalid transactions!")
	}
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then flushes a final
// snapshot before returning so serve's deferred stack.close() runs on
// a quiescent ledger.
func waitForShutdown(s *stack) {
	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM)
	d.WaitForDeathWithFunc(func() {
		color.Yellow("shutting down, flushing snapshot")
		if err := s.ledger.Snapshot(); err != nil {
			color.Red("final snapshot failed: %v", err)
		}
	})
}

func startHTTP(addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServe()
}
