// Package transport performs exactly one delivery attempt of an encoded
// submission. It never retries, backs off or queues; callers decide what
// to do with a failure.
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/formsync/internal/client/codec"
)

// Transport delivers one submission. Send returns nil, *ServerError or
// *NetworkError.
type Transport interface {
	Send(ctx context.Context, p *codec.TransportPayload) error
}

// ServerError means the remote side answered with a non-success status.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// NetworkError means the remote side could not be reached or did not answer
// in time.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
