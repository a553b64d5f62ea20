// Package admin exposes the node's HTTP surface for submitting transactions
// and observing sync/peer state, grounded on
// original_source/api/src/handlers/pool_api.rs's PoolPushHandler contract and
// routed with julienschmidt/httprouter.
package admin

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/peers"
	"github.com/mwc-project/mwc-node/p2p/types"
	"github.com/mwc-project/mwc-node/sync"
)

// TxPool is the subset of pool behavior PoolPushHandler needs: resolve the
// current chain head and hand the decoded transaction to the pool,
// mirroring tx_pool.add_to_pool(source, tx, !fluff, &header) in pool_api.rs.
type TxPool interface {
	ChainHead() ([]byte, error)
	AddToPool(tx []byte, stem bool, head []byte) error
}

// Server wires the admin HTTP surface: POST /v1/pool/push_tx, GET /v1/pool,
// GET /v1/peers, GET /v1/sync/status, and GET /v1/ws, a websocket that
// sends the sync status on connect and again after each client message.
type Server struct {
	router   *httprouter.Router
	pool     TxPool
	registry *peers.Registry
	mgr      *sync.Manager
	upgrader websocket.Upgrader
}

// NewServer builds the admin surface; registry and mgr may be nil in tests
// that only exercise the pool endpoints.
func NewServer(pool TxPool, registry *peers.Registry, mgr *sync.Manager) *Server {
	s := &Server{
		router:   httprouter.New(),
		pool:     pool,
		registry: registry,
		mgr:      mgr,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	s.router.POST("/v1/pool/push_tx", s.handlePushTx)
	s.router.GET("/v1/pool", s.handlePoolInfo)
	s.router.GET("/v1/peers", s.handlePeers)
	s.router.GET("/v1/sync/status", s.handleSyncStatus)
	s.router.GET("/v1/ws", s.handleWS)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// txWrapper mirrors pool_api.rs's TxWrapper: a hex-encoded serialized
// transaction, optionally fluffed via the ?fluff query parameter.
type txWrapper struct {
	TxHex string `json:"tx_hex"`
}

func (s *Server) handlePushTx(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fluff := r.URL.Query().Get("fluff") != ""

	var wrapper txWrapper
	if err := json.NewDecoder(r.Body).Decode(&wrapper); err != nil {
		http.Error(w, "failed: malformed request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	txBin, err := hex.DecodeString(wrapper.TxHex)
	if err != nil {
		http.Error(w, "failed: unable to decode transaction hex: "+err.Error(), http.StatusBadRequest)
		return
	}

	head, err := s.pool.ChainHead()
	if err != nil {
		http.Error(w, "failed: failed to get chain head: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.pool.AddToPool(txBin, !fluff, head); err != nil {
		log.Warn("admin: push_tx rejected", "err", err)
		http.Error(w, "failed: failed to update pool: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type poolInfo struct {
	PoolSize int `json:"pool_size"`
}

func (s *Server) handlePoolInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Pool size accounting lives with the embedder's pool implementation;
	// this surface only proxies the push path the sync layer depends on.
	_ = json.NewEncoder(w).Encode(poolInfo{PoolSize: 0})
}

type peerView struct {
	Addr         string `json:"addr"`
	Direction    string `json:"direction"`
	Height       uint64 `json:"height"`
	Capabilities string `json:"capabilities"`
	Banned       bool   `json:"banned"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.registry == nil {
		_ = json.NewEncoder(w).Encode([]peerView{})
		return
	}
	all := s.registry.All()
	out := make([]peerView, 0, len(all))
	for _, p := range all {
		live := p.Info.Live()
		out = append(out, peerView{
			Addr:         p.Addr().String(),
			Direction:    p.Info.Direction.String(),
			Height:       live.Height,
			Capabilities: p.Info.Capabilities.String(),
			Banned:       p.IsBanned(),
		})
	}
	_ = json.NewEncoder(w).Encode(out)
}

type syncStatusView struct {
	Status string `json:"status"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := types.NoSync
	if s.mgr != nil {
		status = s.mgr.Status()
	}
	_ = json.NewEncoder(w).Encode(syncStatusView{Status: status.String()})
}

// handleWS upgrades to a websocket, writes the current sync status, then
// writes it again each time the client sends a message, until the client
// disconnects. Status changes are not pushed on their own, and no peer
// state is sent.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("admin: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for {
		status := types.NoSync
		if s.mgr != nil {
			status = s.mgr.Status()
		}
		if err := conn.WriteJSON(syncStatusView{Status: status.String()}); err != nil {
			return
		}
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
