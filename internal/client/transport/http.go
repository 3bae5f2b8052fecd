package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/formsync/internal/client/codec"
	"github.com/dmitrijs2005/formsync/internal/common"
)

const maxErrorBody = 4 << 10

// HTTPTransport posts the JSON body to a fixed endpoint.
type HTTPTransport struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	signer   *TokenSigner
}

type HTTPOption func(*HTTPTransport)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithTokenSigner adds an Authorization: Bearer header to every request.
func WithTokenSigner(s *TokenSigner) HTTPOption {
	return func(t *HTTPTransport) { t.signer = s }
}

func NewHTTPTransport(endpoint string, timeout time.Duration, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{endpoint: endpoint, timeout: timeout, client: http.DefaultClient}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *HTTPTransport) Send(ctx context.Context, p *codec.TransportPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return &NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.IdempotencyKeyHeader, p.SubmissionID)

	if t.signer != nil {
		token, err := t.signer.Sign(p.SubmissionID)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServerError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
