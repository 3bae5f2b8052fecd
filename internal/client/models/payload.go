// Package models defines the client-side data model of the submission queue:
// captured payloads, their attachments, persisted queue entries and cached
// asset responses.
package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/formsync/internal/common"
	"github.com/google/uuid"
)

var (
	ErrIncorrectField = errors.New("field must be name=value")
	ErrNoContent      = errors.New("no content")
)

// Blob is an owned reference to binary attachment content.
// Each Open call returns an independent reader positioned at the start.
type Blob interface {
	Open() (io.ReadCloser, error)
}

// BytesBlob is attachment content held in memory.
type BytesBlob []byte

func (b BytesBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// FileBlob is attachment content backed by a file on disk.
type FileBlob struct {
	Path string
}

func (f FileBlob) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Attachment is a named binary part of a submission.
type Attachment struct {
	Name    string
	Type    string
	Size    int64
	Content Blob
}

// Payload is the raw submission record as captured from the form.
type Payload struct {
	// SubmissionID is assigned at capture and stays the same across retries.
	SubmissionID string
	Fields       map[string]string
	Attachments  []Attachment
	SubmittedAt  time.Time
}

// NewPayload captures a submission: it assigns a fresh submission id, copies
// the fields and drops empty (size 0) attachments.
func NewPayload(fields map[string]string, attachments []Attachment, submittedAt time.Time) Payload {
	f := make(map[string]string, len(fields))
	for k, v := range fields {
		f[k] = v
	}

	atts := make([]Attachment, 0, len(attachments))
	for _, a := range attachments {
		if a.Size == 0 {
			continue
		}
		atts = append(atts, a)
	}

	return Payload{
		SubmissionID: uuid.NewString(),
		Fields:       f,
		Attachments:  atts,
		SubmittedAt:  submittedAt,
	}
}

// AttachmentFromFile describes a file on disk as a lazily read attachment.
// When mimeType is empty it is guessed from the extension.
func AttachmentFromFile(path, mimeType string) (Attachment, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", common.ErrAttachmentRead, err)
	}
	if fi.IsDir() {
		return Attachment{}, fmt.Errorf("%w: %s is a directory", common.ErrAttachmentRead, path)
	}

	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return Attachment{
		Name:    filepath.Base(path),
		Type:    mimeType,
		Size:    fi.Size(),
		Content: FileBlob{Path: path},
	}, nil
}

// Materialize returns a copy of p whose file-backed attachments are read into
// memory, so the capture survives the source file going away.
// An unreadable file fails with common.ErrAttachmentRead.
func (p Payload) Materialize(ctx context.Context) (Payload, error) {
	out := p
	out.Attachments = make([]Attachment, len(p.Attachments))

	for i, a := range p.Attachments {
		if err := ctx.Err(); err != nil {
			return Payload{}, err
		}
		if a.Content == nil {
			return Payload{}, fmt.Errorf("%w: attachment %q has no content", common.ErrAttachmentRead, a.Name)
		}
		if _, ok := a.Content.(BytesBlob); ok {
			out.Attachments[i] = a
			continue
		}

		b, err := ReadBlob(a.Content)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: attachment %q: %v", common.ErrAttachmentRead, a.Name, err)
		}
		a.Content = BytesBlob(b)
		out.Attachments[i] = a
	}

	return out, nil
}

// DisplayName is the complainant name shown in queue listings.
func (p Payload) DisplayName() string {
	if name := strings.TrimSpace(p.Fields[common.ComplainantNameField]); name != "" {
		return name
	}
	return "No name"
}

// FieldsFromStrings parses "name=value" items into a field map.
// Only the first '=' separates name and value.
func FieldsFromStrings(items []string) (map[string]string, error) {
	fields := make(map[string]string, len(items))
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, ErrIncorrectField
		}
		fields[strings.TrimSpace(name)] = value
	}
	return fields, nil
}

// ReadBlob reads all of b. A nil blob is ErrNoContent.
func ReadBlob(b Blob) ([]byte, error) {
	if b == nil {
		return nil, ErrNoContent
	}
	rc, err := b.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
