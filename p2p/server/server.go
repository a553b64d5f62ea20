// Package server implements the Server component of §4.4: accepts inbound
// connections, initiates outbound connections, enforces admission caps,
// bridges to the handshake collaborator, and hands established peers to
// the Registry.
package server

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mwc-project/mwc-node/log"
	"github.com/mwc-project/mwc-node/p2p/conn"
	"github.com/mwc-project/mwc-node/p2p/iface"
	"github.com/mwc-project/mwc-node/p2p/peer"
	"github.com/mwc-project/mwc-node/p2p/peers"
	"github.com/mwc-project/mwc-node/p2p/types"
)

// Server owns the listener and dials outbound connections.
type Server struct {
	cfg       Config
	registry  *peers.Registry
	handshake iface.Handshake
	handler   iface.MessageHandler
	th        peer.Thresholds

	listener net.Listener
	stopped  int32
	paused   int32

	acceptLimiter *rate.Limiter

	natStop chan struct{}
	group   *errgroup.Group
}

// New builds a server bound to registry, using handshake for connection
// negotiation and handler for decoded inbound messages.
func New(cfg Config, registry *peers.Registry, handshake iface.Handshake, handler iface.MessageHandler) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		handshake: handshake,
		handler:   handler,
		th:        peer.DefaultThresholds(),
	}
	if cfg.AcceptRatePerSec > 0 {
		s.acceptLimiter = rate.NewLimiter(rate.Limit(cfg.AcceptRatePerSec), cfg.AcceptBurst)
	}
	return s
}

// Listen binds the TCP listener and starts the accept loop and, if
// enabled, the NAT-refresh helper, per §4.4.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(int(s.cfg.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = ln

	s.group = &errgroup.Group{}
	s.group.Go(func() error {
		s.acceptLoop()
		return nil
	})

	if s.cfg.NATEnabled {
		s.natStop = make(chan struct{})
		s.group.Go(func() error {
			s.natLoop()
			return nil
		})
	}
	return nil
}

// acceptLoop accepts in non-blocking-equivalent fashion: a short poll
// timeout stands in for the source's WouldBlock-with-sleep pattern, since
// Go's net.Listener has no native non-blocking mode.
func (s *Server) acceptLoop() {
	for {
		if s.isStopped() || s.isPaused() {
			if s.isStopped() {
				return
			}
			time.Sleep(s.cfg.AcceptPollInterval)
			continue
		}
		if tl, ok := s.listener.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(s.cfg.AcceptPollInterval))
		}
		c, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if s.isStopped() {
				return
			}
			log.Debug("server: accept error", "err", err)
			time.Sleep(s.cfg.AcceptPollInterval)
			continue
		}
		go s.handleAccepted(c)
	}
}

func (s *Server) handleAccepted(c net.Conn) {
	if s.acceptLimiter != nil && !s.acceptLimiter.Allow() {
		log.Debug("server: dropping inbound connection, accept rate exceeded", "addr", c.RemoteAddr())
		_ = c.Close()
		return
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetReadDeadline(time.Now().Add(s.cfg.InitialSocketTimeout))
		_ = tc.SetWriteDeadline(time.Now().Add(s.cfg.InitialSocketTimeout))
	}

	remote := normalizeAddr(c.RemoteAddr())
	if err := s.checkUndesirable(remote); err != nil {
		log.Debug("server: rejecting inbound peer", "addr", remote, "err", err)
		_ = c.Close()
		return
	}

	info, _, err := s.handshake.Accept(c, remote)
	if err != nil {
		log.Debug("server: handshake failed", "addr", remote, "err", err)
		_ = s.registry.AddBanned(remote, types.BanBadHandshake)
		_ = c.Close()
		return
	}
	info.Direction = types.Inbound
	s.registerPeer(remote, c, info)
}

// checkUndesirable rejects over-limit, banned or already-known peers.
func (s *Server) checkUndesirable(addr types.PeerAddr) error {
	if s.isStopped() {
		return ErrStopping
	}
	if s.registry.Count() >= s.cfg.MaxInbound+s.cfg.ListenerBufferCount {
		return ErrTooManyConns
	}
	if s.registry.AddrBanned(addr) {
		return fmt.Errorf("server: %s is banned", addr)
	}
	if _, connected := s.registry.Get(addr); connected {
		return fmt.Errorf("server: already connected to %s", addr)
	}
	return nil
}

// Connect dials addr, applying the outbound refusal policy of §4.4.
func (s *Server) Connect(addr types.PeerAddr) (*peer.Peer, error) {
	if s.isStopped() {
		return nil, ErrStopping
	}
	if s.registry == nil {
		return nil, ErrStopping
	}
	if existing, ok := s.registry.Get(addr); ok {
		return existing, nil
	}
	total := s.registry.Count()
	if total > s.cfg.MaxInbound+s.cfg.MaxOutbound+10 {
		return nil, ErrTooManyConns
	}
	for _, self := range s.cfg.SelfAddrs {
		if self == addr.Key() {
			return nil, ErrPeerWithSelf
		}
	}
	if addr.IsLoopback() && !s.cfg.AllowLoopback {
		return nil, ErrLoopbackDenied
	}

	c, err := s.dial(addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetReadDeadline(time.Now().Add(s.cfg.InitialSocketTimeout))
		_ = tc.SetWriteDeadline(time.Now().Add(s.cfg.InitialSocketTimeout))
	}

	info, _, err := s.handshake.Connect(c, addr)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("server: handshake: %w", err)
	}
	info.Direction = types.Outbound
	return s.registerPeer(addr, c, info), nil
}

func (s *Server) dial(addr types.PeerAddr) (net.Conn, error) {
	if addr.IsOnion() {
		if s.cfg.SocksPort == 0 {
			return nil, fmt.Errorf("server: onion target %s requires socks_port", addr)
		}
		proxyAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(s.cfg.SocksPort)))
		return dialSocks5(proxyAddr, addr.Onion, addr.Port, s.cfg.InitialSocketTimeout)
	}
	return net.DialTimeout("tcp", addr.String(), s.cfg.InitialSocketTimeout)
}

func (s *Server) registerPeer(addr types.PeerAddr, c net.Conn, info types.PeerInfo) *peer.Peer {
	infoCopy := info
	worker := conn.New(addr, c, s.handler)
	worker.Start()
	p := peer.New(&infoCopy, worker, s.th)
	if err := s.registry.AddConnected(p); err != nil {
		log.Error("server: failed to register peer", "addr", addr, "err", err)
		p.Stop()
		return nil
	}
	log.Info("server: peer connected", "addr", addr, "direction", info.Direction)
	return p
}

// Pause (test-only) stops all current peers while keeping the listener
// bound.
func (s *Server) Pause() {
	atomic.StoreInt32(&s.paused, 1)
	for _, p := range s.registry.All() {
		p.Stop()
	}
}

// Resume clears Pause.
func (s *Server) Resume() {
	atomic.StoreInt32(&s.paused, 0)
}

// Stop halts the listener and all peers.
func (s *Server) Stop() {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.natStop != nil {
		close(s.natStop)
	}
	for _, p := range s.registry.All() {
		p.Stop()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
}

func (s *Server) isStopped() bool { return atomic.LoadInt32(&s.stopped) == 1 }
func (s *Server) isPaused() bool  { return atomic.LoadInt32(&s.paused) == 1 }

func normalizeAddr(a net.Addr) types.PeerAddr {
	tcp, ok := a.(*net.TCPAddr)
	if !ok {
		return types.PeerAddr{}
	}
	return types.NewIPAddr(tcp.IP, uint16(tcp.Port))
}
