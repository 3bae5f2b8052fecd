package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/client/services"
	"github.com/dmitrijs2005/formsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_CapturesFieldsAndAttachments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	svc := &fakeService{submitRes: services.SubmitResult{Status: services.StatusDelivered, Message: services.MsgDelivered}}
	app, out := newTestApp(svc, readerFromLines(
		"p1_complainant_fullnames=Jane Doe",
		"details=noise = every night",
		"",
		path,
		"",
	))

	require.NoError(t, app.Submit(context.Background()))
	require.Len(t, svc.submitted, 1)

	p := svc.submitted[0]
	assert.Equal(t, "Jane Doe", p.Fields["p1_complainant_fullnames"])
	assert.Equal(t, "noise = every night", p.Fields["details"])
	assert.Equal(t, testNow, p.SubmittedAt)
	assert.NotEmpty(t, p.SubmissionID)
	require.Len(t, p.Attachments, 1)
	assert.Equal(t, "photo.png", p.Attachments[0].Name)
	assert.Equal(t, "image/png", p.Attachments[0].Type)
	assert.EqualValues(t, 10, p.Attachments[0].Size)

	assert.Contains(t, out.String(), services.MsgDelivered)
}

func TestSubmit_QueuedShowsEntryID(t *testing.T) {
	svc := &fakeService{submitRes: services.SubmitResult{
		Status:  services.StatusQueuedForRetry,
		EntryID: 4,
		Message: services.MsgQueuedOffline,
	}}
	app, out := newTestApp(svc, readerFromLines("a=1", "", ""))

	require.NoError(t, app.Submit(context.Background()))
	assert.Contains(t, out.String(), services.MsgQueuedOffline+" (queue id 4)")
}

func TestSubmit_BadInputIsReportedNotSent(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"field without equals", []string{"oops", "", ""}, models.ErrIncorrectField.Error()},
		{"missing attachment", []string{"a=1", "", "/does/not/exist.pdf", ""}, common.ErrAttachmentRead.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			app, out := newTestApp(svc, readerFromLines(tt.lines...))

			require.NoError(t, app.Submit(context.Background()))
			assert.Empty(t, svc.submitted)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestSubmit_StorageErrorIsReturned(t *testing.T) {
	svc := &fakeService{submitErr: common.ErrStorageUnavailable}
	app, _ := newTestApp(svc, readerFromLines("a=1", "", ""))

	err := app.Submit(context.Background())
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestDraft(t *testing.T) {
	svc := &fakeService{}
	app, out := newTestApp(svc, readerFromLines("a=1", "", ""))

	require.NoError(t, app.Draft(context.Background()))
	require.Len(t, svc.drafts, 1)
	assert.Empty(t, svc.submitted)
	assert.Contains(t, out.String(), services.MsgDraftSaved+" (queue id 9)")
}

func TestList(t *testing.T) {
	svc := &fakeService{}
	app, out := newTestApp(svc, readerFromLines())
	ctx := context.Background()

	require.NoError(t, app.List(ctx))
	assert.Equal(t, "Queue is empty.\n", out.String())

	out.Reset()
	svc.entries = []models.QueueEntry{
		{ID: 1, CreatedAt: testNow, Payload: models.Payload{Fields: map[string]string{common.ComplainantNameField: "Jane Doe"}}},
		{ID: 2, CreatedAt: testNow, Payload: models.Payload{Fields: map[string]string{"x": "y"}}},
	}
	require.NoError(t, app.List(ctx))

	ts := testNow.Local().Format(listTimeLayout)
	assert.Equal(t,
		"[1] Queued at "+ts+" — Jane Doe\n"+
			"[2] Queued at "+ts+" — No name\n",
		out.String())

	out.Reset()
	svc.entries = []models.QueueEntry{
		{ID: 3, CreatedAt: testNow, ReadErr: common.ErrStorageUnavailable},
		{ID: 4, CreatedAt: testNow, Payload: models.Payload{Fields: map[string]string{common.ComplainantNameField: "Ann"}}},
	}
	require.NoError(t, app.List(ctx))
	assert.Equal(t,
		"[3] Queued at "+ts+" — "+unreadableName+"\n"+
			"[4] Queued at "+ts+" — Ann\n",
		out.String())

	svc.listErr = common.ErrStorageUnavailable
	assert.ErrorIs(t, app.List(ctx), common.ErrStorageUnavailable)
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name string
		out  services.Attempt
		err  error
		want string
	}{
		{"delivered", services.Attempt{Outcome: services.OutcomeDelivered}, nil, services.MsgRetryDelivered},
		{"failed", services.Attempt{Outcome: services.OutcomeFailed}, nil, services.MsgRetryFailed},
		{"skipped", services.Attempt{Outcome: services.OutcomeSkipped}, nil, "Item is already being sent."},
		{"not found", services.Attempt{}, common.ErrNotFound, "No queued item with id 5."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{retryOut: tt.out, retryErr: tt.err}
			app, out := newTestApp(svc, readerFromLines())

			require.NoError(t, app.Retry(context.Background(), 5))
			assert.EqualValues(t, 5, svc.retryID)
			assert.Equal(t, tt.want+"\n", out.String())
		})
	}

	svc := &fakeService{retryErr: errors.New("boom")}
	app, _ := newTestApp(svc, readerFromLines())
	assert.Error(t, app.Retry(context.Background(), 1))
}

func TestDelete(t *testing.T) {
	svc := &fakeService{}
	app, out := newTestApp(svc, readerFromLines())

	require.NoError(t, app.Delete(context.Background(), 3))
	assert.Equal(t, []int64{3}, svc.deleted)
	assert.Equal(t, "Queued item 3 deleted.\n", out.String())
}

func TestSync(t *testing.T) {
	svc := &fakeService{}
	app, out := newTestApp(svc, readerFromLines())
	ctx := context.Background()

	require.NoError(t, app.Sync(ctx))
	assert.Equal(t, "Nothing to send.\n", out.String())

	out.Reset()
	svc.drainOut = services.DrainReport{Attempts: []services.Attempt{
		{EntryID: 1, Outcome: services.OutcomeDelivered},
		{EntryID: 2, Outcome: services.OutcomeFailed},
		{EntryID: 3, Outcome: services.OutcomeDelivered},
	}}
	require.NoError(t, app.Sync(ctx))
	assert.Equal(t, "Delivered: 2, failed: 1, skipped: 0\n", out.String())
}

func TestStatus(t *testing.T) {
	app, out := newTestApp(&fakeService{pending: 2}, readerFromLines())

	require.NoError(t, app.Status(context.Background()))
	assert.Equal(t, "Connectivity: online\nQueued submissions: 2\n", out.String())
}
