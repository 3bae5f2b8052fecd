package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/formsync/internal/client/codec"
	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/client/transport"
	"github.com/dmitrijs2005/formsync/internal/common"
)

// memQueue is an in-memory queue.Repository.
type memQueue struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]models.QueueEntry
	failAll error
	failGet map[int64]error
}

func newMemQueue() *memQueue {
	return &memQueue{entries: map[int64]models.QueueEntry{}}
}

func (q *memQueue) Append(ctx context.Context, p models.Payload) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failAll != nil {
		return 0, q.failAll
	}
	for _, a := range p.Attachments {
		if _, err := a.Content.Open(); err != nil {
			return 0, fmt.Errorf("%w: %v", common.ErrAttachmentRead, err)
		}
	}
	q.nextID++
	q.entries[q.nextID] = models.QueueEntry{ID: q.nextID, Payload: p}
	return q.nextID, nil
}

func (q *memQueue) ListAll(ctx context.Context) ([]models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failAll != nil {
		return nil, q.failAll
	}
	out := make([]models.QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQueue) Get(ctx context.Context, id int64) (*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failAll != nil {
		return nil, q.failAll
	}
	if err := q.failGet[id]; err != nil {
		return nil, err
	}
	e, ok := q.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %d: %w", id, common.ErrNotFound)
	}
	return &e, nil
}

func (q *memQueue) Remove(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failAll != nil {
		return q.failAll
	}
	delete(q.entries, id)
	return nil
}

func (q *memQueue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

// fakeTransport records deliveries; fail decides per submission whether the
// send fails.
type fakeTransport struct {
	mu        sync.Mutex
	delivered map[string]int
	calls     atomic.Int64
	fail      func(p *codec.TransportPayload) error
	gate      chan struct{}
}

func newFakeTransport(fail func(p *codec.TransportPayload) error) *fakeTransport {
	return &fakeTransport{delivered: map[string]int{}, fail: fail}
}

func (t *fakeTransport) Send(ctx context.Context, p *codec.TransportPayload) error {
	t.calls.Add(1)
	if t.gate != nil {
		select {
		case <-t.gate:
		case <-ctx.Done():
			return &transport.NetworkError{Err: ctx.Err()}
		}
	}
	if t.fail != nil {
		if err := t.fail(p); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.delivered[p.SubmissionID]++
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) deliveries(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delivered[id]
}

func (t *fakeTransport) total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.delivered {
		n += c
	}
	return n
}

func alwaysOK(*codec.TransportPayload) error { return nil }

func alwaysServerError(*codec.TransportPayload) error {
	return &transport.ServerError{StatusCode: 500}
}

func alwaysNetworkError(*codec.TransportPayload) error {
	return &transport.NetworkError{Err: errors.New("connection refused")}
}

type staticConn struct{ online atomic.Bool }

func online(v bool) *staticConn {
	c := &staticConn{}
	c.online.Store(v)
	return c
}

func (c *staticConn) Online() bool { return c.online.Load() }
