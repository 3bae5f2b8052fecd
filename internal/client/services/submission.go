package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/formsync/internal/client/codec"
	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/formsync/internal/client/transport"
	"github.com/dmitrijs2005/formsync/internal/clock"
	"github.com/dmitrijs2005/formsync/internal/common"
	"github.com/dmitrijs2005/formsync/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

type Status string

const (
	StatusDelivered          Status = "delivered"
	StatusQueuedForRetry     Status = "queuedForRetry"
	StatusValidationRejected Status = "validationRejected"
)

// SubmitResult is the outcome of Submit or SaveDraft. Err carries the
// recoverable cause behind a queued or rejected result.
type SubmitResult struct {
	Status  Status
	EntryID int64
	Message string
	Err     error
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped means another attempt owned the entry, or it was
	// already gone when this attempt looked it up.
	OutcomeSkipped Outcome = "skipped"
)

// Attempt is the result of one send of one queued entry.
type Attempt struct {
	EntryID int64
	Outcome Outcome
	Err     error
}

// DrainReport summarizes one pass over the queue.
type DrainReport struct {
	Attempts []Attempt
}

func (r DrainReport) Count(o Outcome) int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == o {
			n++
		}
	}
	return n
}

// Connectivity reports the last known network state.
type Connectivity interface {
	Online() bool
}

type SubmissionService interface {
	Submit(ctx context.Context, p models.Payload) (SubmitResult, error)
	SaveDraft(ctx context.Context, p models.Payload) (SubmitResult, error)
	Drain(ctx context.Context) (DrainReport, error)
	Retry(ctx context.Context, id int64) (Attempt, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]models.QueueEntry, error)
	Pending(ctx context.Context) (int, error)
}

type submissionService struct {
	queue     queue.Repository
	transport transport.Transport
	conn      Connectivity
	clock     clock.Clock
	limiter   *rate.Limiter
	log       logging.Logger

	inflight singleflight.Group
}

type Option func(*submissionService)

func WithClock(c clock.Clock) Option {
	return func(s *submissionService) { s.clock = c }
}

// WithRateLimit paces drain sends. A nil limiter means unlimited.
func WithRateLimit(l *rate.Limiter) Option {
	return func(s *submissionService) { s.limiter = l }
}

func NewSubmissionService(q queue.Repository, t transport.Transport, conn Connectivity, log logging.Logger, opts ...Option) SubmissionService {
	s := &submissionService{
		queue:     q,
		transport: t,
		conn:      conn,
		clock:     clock.RealClock{},
		log:       log.With("module", "sync"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit sends p now when online and queues it otherwise or on failure.
// The returned error is reserved for storage failures.
func (s *submissionService) Submit(ctx context.Context, p models.Payload) (SubmitResult, error) {
	p, res, ok := s.prepare(ctx, p)
	if !ok {
		return res, nil
	}

	if !s.conn.Online() {
		return s.enqueue(ctx, p, MsgQueuedOffline, nil)
	}

	enc, err := codec.EncodeForTransport(ctx, p)
	if err == nil {
		err = s.transport.Send(ctx, enc)
	}
	if err == nil {
		s.log.Info(ctx, "submission delivered", "submission_id", p.SubmissionID)
		return SubmitResult{Status: StatusDelivered, Message: MsgDelivered}, nil
	}

	s.log.Warn(ctx, "send failed, queuing", "submission_id", p.SubmissionID, "error", err, "class", failureClass(err))
	return s.enqueue(ctx, p, MsgQueuedServerError, err)
}

// SaveDraft always queues p without a network attempt.
func (s *submissionService) SaveDraft(ctx context.Context, p models.Payload) (SubmitResult, error) {
	p, res, ok := s.prepare(ctx, p)
	if !ok {
		return res, nil
	}
	return s.enqueue(ctx, p, MsgDraftSaved, nil)
}

// Drain attempts every entry present at the start, in queue order.
// Failures keep the entry and the pass continues; a per-entry storage error
// is recorded as a failed attempt. Only listing the queue or cancellation
// ends the pass early.
func (s *submissionService) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport

	entries, err := s.queue.ListAll(ctx)
	if err != nil {
		return report, err
	}
	if len(entries) == 0 {
		return report, nil
	}

	s.log.Info(ctx, "draining queue", "entries", len(entries))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return report, err
			}
		}

		a, err := s.attempt(ctx, e.ID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			a = Attempt{EntryID: e.ID, Outcome: OutcomeFailed, Err: err}
		}
		report.Attempts = append(report.Attempts, a)
	}

	s.log.Info(ctx, "drain finished",
		"delivered", report.Count(OutcomeDelivered),
		"failed", report.Count(OutcomeFailed),
		"skipped", report.Count(OutcomeSkipped))

	return report, nil
}

// Retry makes one attempt for a single queued entry.
func (s *submissionService) Retry(ctx context.Context, id int64) (Attempt, error) {
	if _, err := s.queue.Get(ctx, id); err != nil {
		return Attempt{EntryID: id}, err
	}
	return s.attempt(ctx, id)
}

func (s *submissionService) Delete(ctx context.Context, id int64) error {
	if err := s.queue.Remove(ctx, id); err != nil {
		return err
	}
	s.log.Info(ctx, "queued entry deleted", "entry_id", id)
	return nil
}

func (s *submissionService) List(ctx context.Context) ([]models.QueueEntry, error) {
	return s.queue.ListAll(ctx)
}

func (s *submissionService) Pending(ctx context.Context) (int, error) {
	return s.queue.Count(ctx)
}

// prepare fills capture defaults, materializes file attachments and
// validates. ok is false when the payload was rejected.
func (s *submissionService) prepare(ctx context.Context, p models.Payload) (models.Payload, SubmitResult, bool) {
	if p.SubmissionID == "" {
		p.SubmissionID = uuid.NewString()
	}
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = s.clock.Now()
	}

	m, err := p.Materialize(ctx)
	if err == nil {
		err = Validate(m)
	}
	if err != nil {
		s.log.Warn(ctx, "submission rejected", "submission_id", p.SubmissionID, "error", err)
		return p, SubmitResult{Status: StatusValidationRejected, Message: MsgRejected + err.Error(), Err: err}, false
	}
	return m, SubmitResult{}, true
}

func (s *submissionService) enqueue(ctx context.Context, p models.Payload, msg string, cause error) (SubmitResult, error) {
	id, err := s.queue.Append(ctx, p)
	if errors.Is(err, common.ErrAttachmentRead) {
		return SubmitResult{Status: StatusValidationRejected, Message: MsgRejected + err.Error(), Err: err}, nil
	}
	if err != nil {
		s.log.Error(ctx, "cannot queue submission", "submission_id", p.SubmissionID, "error", err)
		return SubmitResult{}, err
	}

	s.log.Info(ctx, "submission queued", "entry_id", id, "submission_id", p.SubmissionID)
	return SubmitResult{Status: StatusQueuedForRetry, EntryID: id, Message: msg, Err: cause}, nil
}

// attempt runs one send of entry id. Concurrent attempts on the same id are
// collapsed: only the first caller sends, the others report skipped.
func (s *submissionService) attempt(ctx context.Context, id int64) (Attempt, error) {
	owner := false
	v, err, _ := s.inflight.Do(strconv.FormatInt(id, 10), func() (any, error) {
		owner = true
		return s.sendEntry(ctx, id)
	})
	if !owner {
		return Attempt{EntryID: id, Outcome: OutcomeSkipped}, nil
	}
	if err != nil {
		return Attempt{EntryID: id}, err
	}
	return v.(Attempt), nil
}

func (s *submissionService) sendEntry(ctx context.Context, id int64) (Attempt, error) {
	e, err := s.queue.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return Attempt{EntryID: id, Outcome: OutcomeSkipped}, nil
	}
	if err != nil {
		return Attempt{EntryID: id}, err
	}

	if !e.Readable() {
		s.log.Error(ctx, "queued entry is unreadable", "entry_id", id, "error", e.ReadErr)
		return Attempt{EntryID: id, Outcome: OutcomeFailed, Err: e.ReadErr}, nil
	}

	s.log.Debug(ctx, "sending queued entry", "entry_id", id, "submission_id", e.Payload.SubmissionID)

	enc, err := codec.EncodeForTransport(ctx, e.Payload)
	if err == nil {
		err = s.transport.Send(ctx, enc)
	}
	if err != nil {
		s.log.Warn(ctx, "could not send queued entry", "entry_id", id, "error", err, "class", failureClass(err))
		return Attempt{EntryID: id, Outcome: OutcomeFailed, Err: err}, nil
	}

	if err := s.queue.Remove(ctx, id); err != nil {
		return Attempt{EntryID: id}, fmt.Errorf("remove delivered entry %d: %w", id, err)
	}

	s.log.Info(ctx, "queued entry delivered", "entry_id", id)
	return Attempt{EntryID: id, Outcome: OutcomeDelivered}, nil
}

func failureClass(err error) string {
	var se *transport.ServerError
	var ne *transport.NetworkError
	switch {
	case errors.As(err, &se):
		return "server"
	case errors.As(err, &ne):
		return "network"
	case errors.Is(err, common.ErrAttachmentRead):
		return "attachment"
	default:
		return "other"
	}
}
