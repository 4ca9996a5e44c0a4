package zrpc

import "fmt"

// ConnectionError wraps a transport-level failure reaching the node. The
// request may never have left this host; callers may retry with backoff.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("node unreachable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError is an HTTP-level non-2xx answer from the node endpoint.
type TransportError struct {
	StatusCode int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("node http error: status=%d", e.StatusCode)
}

// RPCError is an error reported by the node inside the JSON-RPC envelope.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// TimeoutError means PollUntilTerminal exhausted its attempts without the
// operation reaching a terminal status. The operation outcome is unknown, not
// failed: the node may still complete it.
type TimeoutError struct {
	OperationID string
	Attempts    int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s not terminal after %d attempts", e.OperationID, e.Attempts)
}
