package server

import (
	"net"
	"time"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/dcps/internetgateway2"
)

// upnpAddPortMapping discovers a UPnP Internet Gateway Device on the LAN
// and requests a TCP port mapping for port, mirroring the fallback path
// NAT-PMP-based nodes take when NAT-PMP itself is unavailable (most home
// routers speak one or the other, rarely both).
func upnpAddPortMapping(port uint16) (bool, error) {
	devs, err := goupnp.DiscoverDevices(internetgateway2.URN_WANIPConnection_1)
	if err != nil {
		return false, err
	}
	for _, d := range devs {
		if d.Root == nil {
			continue
		}
		clients, err := internetgateway2.NewWANIPConnection1ClientsByURL(d.Location)
		if err != nil || len(clients) == 0 {
			continue
		}
		for _, c := range clients {
			localIP, err := localAddrFor(d.Location.Host)
			if err != nil {
				continue
			}
			if err := c.AddPortMapping("", port, "TCP", port, localIP.String(), true, "mwc-node", 0); err == nil {
				return true, nil
			}
		}
	}
	return false, nil
}

func localAddrFor(hostport string) (net.IP, error) {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	conn, err := net.DialTimeout("udp", net.JoinHostPort(host, "1"), 2*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

func defaultGatewayIP() net.IP {
	conn, err := net.DialTimeout("udp", "224.0.0.1:1900", 2*time.Second)
	if err != nil {
		return net.IPv4(192, 168, 1, 1)
	}
	defer conn.Close()
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)
	if ip == nil {
		return net.IPv4(192, 168, 1, 1)
	}
	return ip
}
