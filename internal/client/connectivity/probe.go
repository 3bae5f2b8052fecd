package connectivity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

var (
	ErrUnavailable = errors.New("endpoint unavailable")
	ErrNotServing  = errors.New("endpoint not serving")
)

// HTTPProbe treats any HTTP response from URL as reachable.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func (p *HTTPProbe) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// GRPCProbe runs the standard grpc.health.v1 check; SERVING is reachable.
type GRPCProbe struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	service string
}

// NewGRPCProbe connects lazily to target. Without dial options the
// connection is insecure.
func NewGRPCProbe(target, service string, opts ...grpc.DialOption) (*GRPCProbe, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}

	return &GRPCProbe{conn: conn, health: healthpb.NewHealthClient(conn), service: service}, nil
}

func (p *GRPCProbe) Ping(ctx context.Context) error {
	resp, err := p.health.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return fmt.Errorf("%w: unknown service %q", ErrNotServing, p.service)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus())
	}
	return nil
}

func (p *GRPCProbe) Close() error {
	return p.conn.Close()
}
