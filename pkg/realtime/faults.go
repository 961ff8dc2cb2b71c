package realtime

import (
	"fmt"
)

// DecodeFault is an inbound body that its route could not decode. It is logged and the
// subscription keeps delivering.
type DecodeFault struct {
	Topic string
	Err   error
}

func (e *DecodeFault) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Topic, e.Err)
}

func (e *DecodeFault) Unwrap() error { return e.Err }

// TransportFault is an error reported by the transport. It is logged only; the transport
// decides whether the session survives.
type TransportFault struct {
	Err error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportFault) Unwrap() error { return e.Err }
