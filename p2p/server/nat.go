package server

import (
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/mwc-project/mwc-node/log"
)

// natRefreshInterval matches common NAT-PMP/UPnP lease lifetimes; NAT-PMP
// leases are requested for twice this interval, so mappings are renewed
// well before they would otherwise expire.
const natRefreshInterval = 10 * time.Minute

// natLoop obtains and periodically refreshes an external port mapping for
// the listen port, per §4.4's supplemented NAT traversal: NAT-PMP first,
// falling back to UPnP IGD. Failure to map is logged once and is
// non-fatal — the node continues operating inbound-restricted.
func (s *Server) natLoop() {
	mapped := s.tryMap()
	if !mapped {
		log.Warn("server: NAT mapping unavailable, continuing inbound-restricted")
	}

	ticker := time.NewTicker(natRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.natStop:
			return
		case <-ticker.C:
			s.tryMap()
		}
	}
}

func (s *Server) tryMap() bool {
	if s.tryNATPMP() {
		return true
	}
	return s.tryUPnP()
}

func (s *Server) tryNATPMP() bool {
	gw := natpmp.NewClient(defaultGatewayIP())
	_, err := gw.AddPortMapping("tcp", int(s.cfg.Port), int(s.cfg.Port), int((2 * natRefreshInterval).Seconds()))
	if err != nil {
		log.Debug("server: NAT-PMP mapping failed", "err", err)
		return false
	}
	log.Info("server: NAT-PMP mapping established", "port", s.cfg.Port)
	return true
}

func (s *Server) tryUPnP() bool {
	ok, err := upnpAddPortMapping(s.cfg.Port)
	if err != nil || !ok {
		log.Debug("server: UPnP mapping failed", "err", err)
		return false
	}
	log.Info("server: UPnP mapping established", "port", s.cfg.Port)
	return true
}
