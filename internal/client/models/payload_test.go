package models

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/formsync/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, b Blob) []byte {
	t.Helper()
	rc, err := b.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestFieldsFromStrings_OK(t *testing.T) {
	in := []string{"a=1", "b=two", "name = value", "expr=x=y"}
	f, err := FieldsFromStrings(in)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"a":    "1",
		"b":    "two",
		"name": " value",
		"expr": "x=y",
	}, f)
}

func TestFieldsFromStrings_ErrorOnMalformed(t *testing.T) {
	_, err := FieldsFromStrings([]string{"x=y", "justname"})
	require.ErrorIs(t, err, ErrIncorrectField)
}

func TestNewPayload_AssignsIDAndDropsEmptyAttachments(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fields := map[string]string{"p1_complainant_fullnames": "Jane"}
	atts := []Attachment{
		{Name: "empty.txt", Type: "text/plain", Size: 0, Content: BytesBlob(nil)},
		{Name: "photo.jpg", Type: "image/jpeg", Size: 3, Content: BytesBlob("abc")},
	}

	p := NewPayload(fields, atts, at)

	_, err := uuid.Parse(p.SubmissionID)
	require.NoError(t, err)
	require.Equal(t, at, p.SubmittedAt)
	require.Len(t, p.Attachments, 1)
	require.Equal(t, "photo.jpg", p.Attachments[0].Name)

	fields["p1_complainant_fullnames"] = "changed"
	require.Equal(t, "Jane", p.Fields["p1_complainant_fullnames"], "fields must be copied")

	p2 := NewPayload(fields, nil, at)
	require.NotEqual(t, p.SubmissionID, p2.SubmissionID)
	require.NotNil(t, p2.Attachments)
}

func TestAttachmentFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	a, err := AttachmentFromFile(path, "")
	require.NoError(t, err)
	require.Equal(t, "scan.png", a.Name)
	require.Equal(t, "image/png", a.Type)
	require.EqualValues(t, 10, a.Size)
	require.Equal(t, []byte("0123456789"), readAll(t, a.Content))

	a, err = AttachmentFromFile(path, "application/x-custom")
	require.NoError(t, err)
	require.Equal(t, "application/x-custom", a.Type)

	_, err = AttachmentFromFile(filepath.Join(dir, "missing"), "")
	require.ErrorIs(t, err, common.ErrAttachmentRead)

	_, err = AttachmentFromFile(dir, "")
	require.ErrorIs(t, err, common.ErrAttachmentRead)
}

func TestPayload_Materialize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	a, err := AttachmentFromFile(path, "text/plain")
	require.NoError(t, err)

	p := NewPayload(map[string]string{"k": "v"}, []Attachment{
		a,
		{Name: "mem.bin", Type: "application/octet-stream", Size: 2, Content: BytesBlob{1, 2}},
	}, time.Now())

	m, err := p.Materialize(context.Background())
	require.NoError(t, err)

	_, isFile := p.Attachments[0].Content.(FileBlob)
	require.True(t, isFile, "source payload must not be mutated")

	require.NoError(t, os.Remove(path))

	got, ok := m.Attachments[0].Content.(BytesBlob)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), []byte(got))
	require.Equal(t, BytesBlob{1, 2}, m.Attachments[1].Content)
	require.Equal(t, p.SubmissionID, m.SubmissionID)
}

func TestPayload_Materialize_UnreadableFile(t *testing.T) {
	p := Payload{Attachments: []Attachment{
		{Name: "gone.txt", Size: 4, Content: FileBlob{Path: filepath.Join(t.TempDir(), "gone.txt")}},
	}}

	_, err := p.Materialize(context.Background())
	require.ErrorIs(t, err, common.ErrAttachmentRead)
}

func TestPayload_Materialize_NilContent(t *testing.T) {
	p := Payload{Attachments: []Attachment{{Name: "x", Size: 1}}}

	_, err := p.Materialize(context.Background())
	require.ErrorIs(t, err, common.ErrAttachmentRead)
}

func TestPayload_DisplayName(t *testing.T) {
	p := Payload{Fields: map[string]string{common.ComplainantNameField: " Jane Doe "}}
	require.Equal(t, "Jane Doe", p.DisplayName())

	require.Equal(t, "No name", Payload{}.DisplayName())
	require.Equal(t, "No name", Payload{Fields: map[string]string{common.ComplainantNameField: "  "}}.DisplayName())
}

func TestBytesBlob_OpenIsRepeatable(t *testing.T) {
	b := BytesBlob("abc")
	require.Equal(t, []byte("abc"), readAll(t, b))
	require.Equal(t, []byte("abc"), readAll(t, b))
}

func TestReadBlob(t *testing.T) {
	_, err := ReadBlob(nil)
	require.ErrorIs(t, err, ErrNoContent)

	got, err := ReadBlob(BytesBlob("abc"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)

	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("from disk"), 0o600))
	got, err = ReadBlob(FileBlob{Path: path})
	require.NoError(t, err)
	require.Equal(t, []byte("from disk"), got)

	_, err = ReadBlob(FileBlob{Path: filepath.Join(t.TempDir(), "missing")})
	require.ErrorIs(t, err, os.ErrNotExist)
}
