// Package proxy defines the HTTP server that exposes the services of a node,
// such as the ledger endpoint and the metrics.
package proxy

import (
	"net"
	"net/http"
)

// Proxy defines the primitives of the HTTP server of a node.
type Proxy interface {
	// Listen starts the server. This call is blocking until Stop is called or
	// the server fails.
	Listen() error

	// Stop stops the server.
	Stop()

	// GetAddr returns the address the server is listening on, or nil if it is
	// not listening yet.
	GetAddr() net.Addr

	// RegisterHandler registers a new handler for the path.
	RegisterHandler(path string, handler http.Handler)
}
