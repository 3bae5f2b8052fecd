package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/client/services"
	"github.com/dmitrijs2005/formsync/internal/common"
)

const (
	listTimeLayout = "2006-01-02 15:04:05"
	unreadableName = "(unreadable, check the storage passphrase)"
)

// Submit captures a form and sends it, queuing it when that is not possible.
func (a *App) Submit(ctx context.Context) error {
	p, ok, err := a.capture()
	if err != nil || !ok {
		return err
	}
	res, err := a.service.Submit(ctx, p)
	if err != nil {
		return err
	}
	a.printResult(res)
	return nil
}

// Draft captures a form and queues it without a network attempt.
func (a *App) Draft(ctx context.Context) error {
	p, ok, err := a.capture()
	if err != nil || !ok {
		return err
	}
	res, err := a.service.SaveDraft(ctx, p)
	if err != nil {
		return err
	}
	a.printResult(res)
	return nil
}

func (a *App) List(ctx context.Context) error {
	entries, err := a.service.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "Queue is empty.")
		return nil
	}
	for _, e := range entries {
		name := e.Payload.DisplayName()
		if !e.Readable() {
			name = unreadableName
		}
		fmt.Fprintf(a.out, "[%d] Queued at %s — %s\n", e.ID, e.CreatedAt.Local().Format(listTimeLayout), name)
	}
	return nil
}

func (a *App) Retry(ctx context.Context, id int64) error {
	att, err := a.service.Retry(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		fmt.Fprintf(a.out, "No queued item with id %d.\n", id)
		return nil
	}
	if err != nil {
		return err
	}

	switch att.Outcome {
	case services.OutcomeDelivered:
		fmt.Fprintln(a.out, services.MsgRetryDelivered)
	case services.OutcomeFailed:
		fmt.Fprintln(a.out, services.MsgRetryFailed)
	case services.OutcomeSkipped:
		fmt.Fprintln(a.out, "Item is already being sent.")
	}
	return nil
}

func (a *App) Delete(ctx context.Context, id int64) error {
	if err := a.service.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Queued item %d deleted.\n", id)
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	report, err := a.service.Drain(ctx)
	if err != nil {
		return err
	}
	if len(report.Attempts) == 0 {
		fmt.Fprintln(a.out, "Nothing to send.")
		return nil
	}
	fmt.Fprintf(a.out, "Delivered: %d, failed: %d, skipped: %d\n",
		report.Count(services.OutcomeDelivered),
		report.Count(services.OutcomeFailed),
		report.Count(services.OutcomeSkipped))
	return nil
}

func (a *App) Status(ctx context.Context) error {
	n, err := a.service.Pending(ctx)
	if err != nil {
		return err
	}
	mode := "unknown"
	if a.conn != nil {
		mode = string(a.conn.Mode())
	}
	fmt.Fprintf(a.out, "Connectivity: %s\nQueued submissions: %d\n", mode, n)
	return nil
}

// capture reads form fields and attachment paths. ok is false when the input
// was unusable; the reason has already been printed.
func (a *App) capture() (models.Payload, bool, error) {
	lines, err := GetLines(a.reader, "Enter form fields in the format name=value", a.out)
	if err != nil {
		return models.Payload{}, false, err
	}
	fields, err := models.FieldsFromStrings(lines)
	if err != nil {
		fmt.Fprintln(a.out, err)
		return models.Payload{}, false, nil
	}

	paths, err := GetLines(a.reader, "Attach files: one path per line", a.out)
	if err != nil {
		return models.Payload{}, false, err
	}

	attachments := make([]models.Attachment, 0, len(paths))
	for _, path := range paths {
		att, err := models.AttachmentFromFile(strings.TrimSpace(path), "")
		if err != nil {
			fmt.Fprintln(a.out, err)
			return models.Payload{}, false, nil
		}
		attachments = append(attachments, att)
	}

	return models.NewPayload(fields, attachments, a.now()), true, nil
}

func (a *App) printResult(res services.SubmitResult) {
	switch res.Status {
	case services.StatusQueuedForRetry:
		fmt.Fprintf(a.out, "%s (queue id %d)\n", res.Message, res.EntryID)
	default:
		fmt.Fprintln(a.out, res.Message)
	}
}

func (a *App) now() time.Time {
	if a.clock == nil {
		return time.Now().UTC()
	}
	return a.clock.Now()
}
