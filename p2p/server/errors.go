package server

import "errors"

// Policy-rejection sentinel errors, per §7's typed ConnectionClose taxonomy.
var (
	ErrStopping        = errors.New("server: stopping")
	ErrDenylisted      = errors.New("server: address denylisted")
	ErrTooManyConns    = errors.New("server: too many connections")
	ErrPeerWithSelf    = errors.New("server: refusing self-loop connection")
	ErrLoopbackDenied  = errors.New("server: loopback connections disabled in production")
	ErrAlreadyStopped  = errors.New("server: already stopped")
)
