// Command mwcnode wires the connection layer, peer registry and sync engine
// into a runnable node. Chain validation/storage, the handshake codec and
// inbound message decoding are external collaborators (see p2p/iface). This
// binary links in internal/devchain's minimal implementations of all three
// so the p2p+sync composition root is independently runnable; a production
// deployment replaces that import with a real chain/wallet backend.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwc-project/mwc-node/admin"
	"github.com/mwc-project/mwc-node/internal/devchain"
	"github.com/mwc-project/mwc-node/internal/store/peerstore"
	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/peers"
	"github.com/mwc-project/mwc-node/p2p/server"
	"github.com/mwc-project/mwc-node/p2p/types"
	"github.com/mwc-project/mwc-node/sync"
)

// Node is the composition root: every in-repo component wired together
// around the devchain collaborators.
type Node struct {
	cfg Config

	store    *peerstore.Store
	registry *peers.Registry
	srv      *server.Server
	syncMgr  *sync.Manager
	runner   *sync.Runner
	admin    *admin.Server
}

func noMissing() []types.Hash { return nil }

// NewNode wires the registry, server, sync manager/runner and (if enabled)
// the admin HTTP surface against a devchain backend.
func NewNode(cfg Config) (*Node, error) {
	store, err := peerstore.Open(cfg.DataDir + "/peers")
	if err != nil {
		return nil, err
	}

	chain := devchain.New()
	registry := peers.New(store, cfg.Peers, nil)
	mgr := sync.NewManager(peers.WrapChainAdapter(chain, registry), cfg.Sync, noMissing, noMissing)
	handler := devchain.NewHandler(registry, mgr)
	handshake := &devchain.Handshake{UserAgent: "mwcnode/0.1", Capabilities: types.CapFullHist | types.CapPeerList}

	srv := server.New(cfg.Server, registry, handshake, handler)
	runner := sync.NewRunner(mgr, cfg.Sync, registry)

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.NewServer(devchain.NewPool(chain), registry, mgr)
	}

	return &Node{
		cfg:      cfg,
		store:    store,
		registry: registry,
		srv:      srv,
		syncMgr:  mgr,
		runner:   runner,
		admin:    adminSrv,
	}, nil
}

// Start binds the listener, launches the sync runner, and (if enabled)
// serves the admin HTTP surface in the background.
func (n *Node) Start() error {
	if err := n.srv.Listen(); err != nil {
		return err
	}
	n.runner.Start()
	if n.admin != nil {
		go func() {
			if err := http.ListenAndServe(n.cfg.Admin.Addr, n.admin); err != nil {
				log.Error("mwcnode: admin server stopped", "err", err)
			}
		}()
	}
	return nil
}

// Stop tears down the runner, the server and the peer store, in that order.
func (n *Node) Stop() {
	n.runner.Stop()
	n.srv.Stop()
	if err := n.store.Close(); err != nil {
		log.Error("mwcnode: failed to close peer store", "err", err)
	}
}

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))

	cfg := DefaultConfig()
	node, err := NewNode(cfg)
	if err != nil {
		log.Crit("mwcnode: failed to initialize node", "err", err)
	}
	if err := node.Start(); err != nil {
		log.Crit("mwcnode: failed to start node", "err", err)
	}
	log.Info("mwcnode: listening", "addr", cfg.Server.Host, "port", cfg.Server.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("mwcnode: shutting down")
	node.Stop()
}
