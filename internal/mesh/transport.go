package mesh

import (
	"context"
	"fmt"
)

// NodeInfo identifies the synthetic radio node an alert is published as.
type NodeInfo struct {
	// ID is the node token, e.g. "!1a2b3c4d".
	ID        string
	LongName  string
	ShortName string
}

// Position is a node position report.
type Position struct {
	Latitude       float64
	Longitude      float64
	AltitudeMeters int
}

// Transport is the outbound mesh-radio channel.
//
// Sends are fire-and-forget: there is no delivery acknowledgment. Text and
// position packets are attributed to the identity most recently announced
// via AnnounceIdentity.
type Transport interface {
	AnnounceIdentity(ctx context.Context, node NodeInfo) error
	SendText(ctx context.Context, message string) error
	SendPosition(ctx context.Context, pos Position) error
}

// TransportError wraps any failure raised by a transport send.
type TransportError struct {
	Op  string
	err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("mesh %s: %v", e.Op, e.err) }
func (e *TransportError) Unwrap() error { return e.err }

func transportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, err: err}
}
