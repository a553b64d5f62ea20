package main

import (
	"github.com/mwc-project/mwc-node/p2p/peers"
	"github.com/mwc-project/mwc-node/p2p/server"
	"github.com/mwc-project/mwc-node/sync"
)

// Config is the node's top-level configuration: a plain struct assembled by
// the embedder (there is no flag/TOML parser in this layer; see §10 of the
// design notes), composed of each subsystem's own Default*Config().
type Config struct {
	Server server.Config
	Peers  peers.Config
	Sync   sync.Config

	DataDir string
	Admin   AdminConfig
}

// AdminConfig controls the optional HTTP admin surface.
type AdminConfig struct {
	Enabled bool
	Addr    string
}

// DefaultConfig returns the node's default configuration, mirroring the
// source's conservative defaults across every subsystem.
func DefaultConfig() Config {
	return Config{
		Server:  server.DefaultConfig(),
		Peers:   peers.DefaultConfig(),
		Sync:    sync.DefaultConfig(),
		DataDir: "./data",
		Admin: AdminConfig{
			Enabled: true,
			Addr:    "127.0.0.1:3415",
		},
	}
}
