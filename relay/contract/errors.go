package contract

import "errors"

var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrInvalidArguments  = errors.New("invalid tool arguments")
	ErrUpstreamHandshake = errors.New("upstream handshake failed")
	ErrTransportClosed   = errors.New("client transport closed")
)
