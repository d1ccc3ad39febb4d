package transports

import "context"

// Transport is a client-facing I/O boundary. Implementations own their own
// network lifecycle and bridge wire events to session operations.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// ReadyReporter exposes readiness metadata for informational logging.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
