// Command node starts a latticenode representative/ledger node.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tolelom/latticenode/active"
	"github.com/tolelom/latticenode/config"
	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
	"github.com/tolelom/latticenode/crypto/certgen"
	"github.com/tolelom/latticenode/election"
	"github.com/tolelom/latticenode/epoch"
	"github.com/tolelom/latticenode/gossip"
	"github.com/tolelom/latticenode/ledger"
	"github.com/tolelom/latticenode/observers"
	"github.com/tolelom/latticenode/repweight"
	"github.com/tolelom/latticenode/store"
	"github.com/tolelom/latticenode/vote"
	"github.com/tolelom/latticenode/wallet"
	"github.com/tolelom/latticenode/workproof"
)

const (
	tickInterval         = 1 * time.Second
	onlineWeightInterval = 5 * time.Minute
	frontierScanInterval = 15 * time.Second
	expiredRetryInterval = 30 * time.Second
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	walletPath := flag.String("wallet", "wallet.json", "path to wallet keystore file")
	genWallet := flag.Bool("genwallet", false, "create a new wallet keystore and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	flag.Parse()

	// Read wallet password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("LATTICE_WALLET_PASSWORD")
	if password == "" {
		log.Println("WARNING: LATTICE_WALLET_PASSWORD not set — keystore will use an empty password")
	}

	// ---- generate wallet mode ----
	if *genWallet {
		w, err := wallet.Create(*walletPath, password)
		if err != nil {
			log.Fatal(err)
		}
		acct, err := w.InsertDeterministic(password)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated wallet. First account: %s\n", acct)
		fmt.Printf("Saved to: %s\n", *walletPath)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- generate certs mode ----
	if *genCerts != "" {
		if err := certgen.GenerateAll(*genCerts, cfg.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfg.NodeID)
		return
	}

	// ---- open store ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	kv, err := store.NewLevelKV(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer kv.Close()
	st := store.New(kv)

	// ---- epoch registry ----
	epochs := epoch.NewRegistry()
	for _, e := range cfg.Epochs {
		signer, err := crypto.PubKeyFromHex(e.SignerPub)
		if err != nil {
			log.Fatalf("epoch %s: signer_pub: %v", e.Tier, err)
		}
		sentinel, err := core.HashFromHex(e.Sentinel)
		if err != nil {
			log.Fatalf("epoch %s: sentinel: %v", e.Tier, err)
		}
		epochs.Register(e.Tier, signer, sentinel)
	}

	// ---- representative weight cache ----
	weights := repweight.New(cfg.BootstrapMaxBlocks)

	// ---- ledger ----
	ledgerProc := ledger.New(st, weights, epochs, workproof.Blake2Validator{})

	// ---- genesis (if fresh chain) ----
	genesisAcct, err := core.AccountFromHex(cfg.Genesis.Account)
	if err != nil {
		log.Fatalf("genesis.account: %v", err)
	}
	if info, _ := ledgerProc.AccountInfo(genesisAcct); info == nil {
		if _, err := config.InstallGenesis(ledgerProc, cfg.Genesis); err != nil {
			log.Fatalf("install genesis: %v", err)
		}
		log.Printf("Genesis account opened: %s", genesisAcct)
	}

	// ---- online weight trending / quorum delta ----
	onlineMinimum, err := config.ParseAmount(cfg.OnlineWeightMinimum)
	if err != nil {
		log.Fatalf("online_weight_minimum: %v", err)
	}
	onlineTracker := repweight.NewOnlineWeightTracker(st, weights, onlineMinimum)
	quorumDelta := onlineTracker.QuorumDelta(cfg.QuorumPercent)
	hintedWeightFraction := onlineTracker.QuorumDelta(cfg.ElectionHintWeightPercent)

	// ---- observers ----
	obs := observers.New()

	// ---- inactive vote cache ----
	inactive := vote.NewInactiveCache(vote.Thresholds{
		QuorumDelta:             quorumDelta,
		MinVoterCount:           cfg.MinVoterCount,
		HintedWeightFraction:    hintedWeightFraction,
		BootstrapTallyThreshold: onlineMinimum,
	})

	// ---- wallet ----
	work := workproof.NewCPUGenerator(0)
	var w *wallet.Wallet
	var actions *wallet.ActionQueue
	ownRep := core.ZeroAccount
	if _, err := os.Stat(*walletPath); err == nil {
		walletStore, err := wallet.Load(*walletPath, password)
		if err != nil {
			log.Fatalf("load wallet: %v", err)
		}
		receiveMinimum, err := config.ParseAmount(cfg.ReceiveMinimum)
		if err != nil {
			log.Fatalf("receive_minimum: %v", err)
		}
		w = wallet.New(walletStore, password, ledgerProc, work, receiveMinimum)
		if rep := walletStore.Representative(); !rep.IsZero() {
			ownRep = rep
		}
		actions = wallet.NewActionQueue()
	} else {
		log.Println("no wallet keystore found; run with -genwallet to create one")
	}

	// ---- active elections container ----
	activeCfg := active.Config{
		ActiveElectionsSize:   cfg.ActiveElectionsSize,
		ConfirmationHistSize:  cfg.ConfirmationHistorySize,
		RecentlyConfirmedSize: cfg.ConfirmationHistorySize,
		NormalTTL:             5 * time.Minute,
		OptimisticTTL:         30 * time.Second,
		QuorumDelta:           quorumDelta,
		EnableVoting:          cfg.EnableVoting,
		OwnRepresentative:     ownRep,
	}
	container := active.New(activeCfg, weights, func(status election.Status, winner *core.Block) {
		if err := ledgerProc.ConfirmBlock(winner.Hash()); err != nil {
			log.Printf("[ledger] confirm %s: %v", winner.Hash(), err)
			return
		}
		obs.FireActiveStopped(observers.ActiveStoppedEvent{Hash: winner.Hash(), Status: status})
		obs.FireAccountBalance(observers.BalanceEvent{Account: winner.Sideband.Account, Balance: winner.Sideband.Balance})
		container.ActivateNext(ledgerProc, winner.Sideband.Account, inactive)
		if winner.Sideband.Details.IsSend {
			dest := winner.Destination
			if winner.Type == core.State {
				dest = core.Account(winner.Link)
			}
			container.ActivateNext(ledgerProc, dest, inactive)
		}
	})

	// ---- frontier-confirmation scheduler ----
	frontiers := active.NewFrontierScheduler(ledgerProc, container, inactive)

	// ---- vote processor ----
	voteMinimum, err := config.ParseAmount(cfg.VoteMinimum)
	if err != nil {
		log.Fatalf("vote_minimum: %v", err)
	}
	voteProc := vote.NewProcessor(container, weights, inactive, voteMinimum)

	// ---- TLS ----
	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for peering")
	}

	// ---- gossip ----
	exclusion := gossip.NewExclusion()
	peeringAddr := fmt.Sprintf(":%d", cfg.PeeringPort)
	node := gossip.NewNode(cfg.NodeID, peeringAddr, tlsCfg, exclusion)
	node.OnBlock = func(_ *gossip.Peer, blk *core.Block) {
		if _, err := ledgerProc.Process(blk); err != nil {
			log.Printf("[ledger] process %s: %v", blk.Hash(), err)
			return
		}
		obs.FireBlock(observers.BlockEvent{Block: blk, Account: blk.Sideband.Account, Amount: blk.Sideband.Balance})
		if inserted, _ := container.Insert(blk, election.NormalBehavior, inactive); !inserted {
			container.Publish(blk)
		}
	}
	node.OnVote = func(_ *gossip.Peer, v *core.Vote) {
		voteProc.Process(v)
	}
	if err := node.Start(); err != nil {
		log.Fatalf("gossip start: %v", err)
	}
	defer node.Stop()
	log.Printf("Peering listening on %s", peeringAddr)

	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
			continue
		}
		log.Printf("Connected to seed peer %s (%s)", sp.ID, sp.Addr)
	}

	// ---- background loops ----
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				container.Tick(node)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(onlineWeightInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := onlineTracker.Sample(); err != nil {
					log.Printf("[onlineweight] sample: %v", err)
				}
			}
		}
	}()

	if cfg.FrontiersConfirmation != config.FrontiersConfirmationDisabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(frontierScanInterval)
			defer ticker.Stop()
			retry := time.NewTicker(expiredRetryInterval)
			defer retry.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					belowBarrier := cfg.FrontiersConfirmation == config.FrontiersConfirmationAlways
					frontiers.Prioritize(walletAccounts(w), belowBarrier)
				case <-retry.C:
					frontiers.RetryExpired()
				}
			}
		}()
	}

	if actions != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actions.Run()
		}()
	}

	log.Printf("Node %s running (representative: %s)", cfg.NodeID, ownRep)

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// 1. Stop background loops first (no new elections/ticks).
	close(done)
	if actions != nil {
		actions.Stop()
	}
	wg.Wait()

	// 2. Deferred calls run in LIFO: node.Stop → kv.Close.
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func walletAccounts(w *wallet.Wallet) []core.Account {
	if w == nil {
		return nil
	}
	return w.Accounts()
}
