package peers

import "time"

// Config holds the admission/eviction tunables named in §6's Configuration
// table. It is a plain struct populated by the embedding program; no flag
// or file parser is part of this core.
type Config struct {
	MaxInbound            int
	MaxOutbound           int
	MinPreferredOutbound  int
	Preferred             []string // addr.Key() values exempt from eviction

	LockTimeout  time.Duration
	BoostWindow  time.Duration
}

// DefaultConfig is a constructor function setting literal defaults.
func DefaultConfig() Config {
	return Config{
		MaxInbound:           64,
		MaxOutbound:          12,
		MinPreferredOutbound: 8,
		LockTimeout:          2 * time.Second,
		BoostWindow:          120 * time.Second,
	}
}
